package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/therapy_shop/internal/service"
	"github.com/Skotchmaster/therapy_shop/internal/transport"
	"github.com/Skotchmaster/therapy_shop/pkg/logging"
	middleware "github.com/Skotchmaster/therapy_shop/pkg/middleware/auth"
)

type AuthHTTP struct {
	Svc      *service.AuthService
	Recovery *service.RecoveryService
}

func setAuthCookies(c echo.Context, res *transport.LoginResult) {
	c.SetCookie(middleware.CreateCookie(middleware.AccessCookie, res.AccessToken, "/", res.AccessExp))
	c.SetCookie(middleware.CreateCookie(middleware.RefreshCookie, res.RefreshToken, "/", res.RefreshExp))
}

func clearAuthCookies(c echo.Context) {
	c.SetCookie(middleware.DeleteCookie(middleware.AccessCookie, "/"))
	c.SetCookie(middleware.DeleteCookie(middleware.RefreshCookie, "/"))
}

// refreshFrom prefers the body over the cookie so API clients and browsers
// can share the endpoint.
func refreshFrom(c echo.Context, req transport.RefreshRequest) string {
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	if ck, err := c.Cookie(middleware.RefreshCookie); err == nil {
		return ck.Value
	}
	return ""
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "register_error", "invalid body", err)
	}

	user, err := h.Svc.Register(ctx, req)
	if err != nil {
		return fail(l, "register_error", err)
	}

	l.Info("register_success", "user_id", user.ID)
	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "login_error", "invalid body", err)
	}

	res, err := h.Svc.Login(ctx, req)
	if err != nil {
		return fail(l, "login_error", err)
	}

	setAuthCookies(c, res)
	l.Info("login_success")
	return c.JSON(http.StatusOK, res)
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.refresh")

	var req transport.RefreshRequest
	_ = c.Bind(&req)

	token := refreshFrom(c, req)
	if token == "" {
		clearAuthCookies(c)
		l.Warn("refresh_error", "status", 401, "reason", "refresh token missing")
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
	}

	res, err := h.Svc.Refresh(ctx, token)
	if err != nil {
		clearAuthCookies(c)
		return fail(l, "refresh_error", err)
	}

	setAuthCookies(c, res)
	return c.JSON(http.StatusOK, res)
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.logout")

	var req transport.RefreshRequest
	_ = c.Bind(&req)

	if err := h.Svc.Logout(ctx, refreshFrom(c, req)); err != nil {
		return fail(l, "logout_error", err)
	}

	clearAuthCookies(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHTTP) Me(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.me")

	user, err := h.Svc.Profile(ctx, caller(c).UserID)
	if err != nil {
		return fail(l, "profile_error", err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHTTP) UpdateMe(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.update_me")

	var req transport.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "update_profile_error", "invalid body", err)
	}

	user, err := h.Svc.UpdateProfile(ctx, caller(c).UserID, req)
	if err != nil {
		return fail(l, "update_profile_error", err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.change_password")

	var req transport.ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "change_password_error", "invalid body", err)
	}

	if err := h.Svc.ChangePassword(ctx, caller(c).UserID, req); err != nil {
		return fail(l, "change_password_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHTTP) Recover(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.recover")

	var req transport.RecoverRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "recover_error", "invalid body", err)
	}

	if err := h.Recovery.RequestReset(ctx, req.Email); err != nil {
		return fail(l, "recover_error", err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "reset code sent"})
}

func (h *AuthHTTP) Reset(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.reset")

	var req transport.ResetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "reset_error", "invalid body", err)
	}

	if err := h.Recovery.Reset(ctx, req.Token, req.Password); err != nil {
		return fail(l, "reset_error", err)
	}

	l.Info("reset_success")
	return c.NoContent(http.StatusNoContent)
}
