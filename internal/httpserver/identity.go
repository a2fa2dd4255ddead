package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/therapy_shop/internal/service"
	middleware "github.com/Skotchmaster/therapy_shop/pkg/middleware/auth"
)

// caller returns the identity the auth gate attached, or nil for a guest.
func caller(c echo.Context) *service.Caller {
	id, role, ok := middleware.Identity(c)
	if !ok {
		return nil
	}
	return &service.Caller{UserID: id, Role: role}
}
