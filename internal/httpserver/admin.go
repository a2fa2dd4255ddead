package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/therapy_shop/internal/service"
	"github.com/Skotchmaster/therapy_shop/internal/transport"
	"github.com/Skotchmaster/therapy_shop/pkg/logging"
)

type AdminHTTP struct {
	Config *service.ConfigService
}

func (h *AdminHTTP) GetConfig(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.get_config")

	cfg, err := h.Config.Get(ctx)
	if err != nil {
		return fail(l, "get_config_error", err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *AdminHTTP) SaveConfig(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.save_config")

	var req transport.AdminConfigPatch
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "save_config_error", "invalid body", err)
	}

	cfg, err := h.Config.Save(ctx, req)
	if err != nil {
		return fail(l, "save_config_error", err)
	}

	l.Info("save_config_success")
	return c.JSON(http.StatusOK, cfg)
}
