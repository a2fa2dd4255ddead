package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/therapy_shop/pkg/logging"
	"github.com/Skotchmaster/therapy_shop/pkg/tokens"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"

	ctxUserID = "user_id"
	ctxRole   = "role"

	roleAdmin = "admin"
)

// UserLookup reports the stored role of a user, and false when the user does
// not exist.
type UserLookup interface {
	UserRole(ctx context.Context, id uuid.UUID) (string, bool, error)
}

// Gate authenticates requests with a signed access token and authorizes them
// against the role stored for the token's subject. A role claim in the token
// is never trusted on its own.
type Gate struct {
	JWTSecret []byte
	Users     UserLookup
}

func NewGate(secret []byte, users UserLookup) *Gate {
	return &Gate{JWTSecret: secret, Users: users}
}

type checkFunc func(role string) error

func (g *Gate) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return g.gate(next, false, nil)
}

func (g *Gate) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return g.gate(next, false, func(role string) error {
		if role != roleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return nil
	})
}

// Optional lets requests without a credential through as guests. A credential
// that is present but invalid is still rejected.
func (g *Gate) Optional(next echo.HandlerFunc) echo.HandlerFunc {
	return g.gate(next, true, nil)
}

func credential(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if ck, err := c.Cookie(AccessCookie); err == nil {
		return ck.Value
	}
	return ""
}

func (g *Gate) gate(next echo.HandlerFunc, optional bool, check checkFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx).With("mw", "auth")

		raw := credential(c)
		if raw == "" {
			hasHeader := c.Request().Header.Get(echo.HeaderAuthorization) != ""
			if optional && !hasHeader {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := tokens.AccessClaimsFromToken(raw, g.JWTSecret)
		if err != nil {
			l.Warn("auth_failed", "status", 401, "reason", "invalid access token", "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			l.Warn("auth_failed", "status", 401, "reason", "bad subject", "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		role, ok, err := g.Users.UserRole(ctx, userID)
		if err != nil {
			l.Error("auth_failed", "status", 500, "reason", "user lookup failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		if !ok {
			l.Warn("auth_failed", "status", 401, "reason", "unknown user", "user_id", userID)
			return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
		}

		if check != nil {
			if err := check(role); err != nil {
				l.Warn("auth_failed", "status", 403, "reason", "role", "user_id", userID, "role", role)
				return err
			}
		}

		setUserContext(c, userID, role)
		return next(c)
	}
}

func setUserContext(c echo.Context, userID uuid.UUID, role string) {
	c.Set(ctxUserID, userID)
	c.Set(ctxRole, role)
}

// Identity returns the user attached by the gate. ok is false for guests.
func Identity(c echo.Context) (userID uuid.UUID, role string, ok bool) {
	id, ok := c.Get(ctxUserID).(uuid.UUID)
	if !ok {
		return uuid.Nil, "", false
	}
	role, _ = c.Get(ctxRole).(string)
	return id, role, true
}
