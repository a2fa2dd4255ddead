package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"
	"github.com/rs/cors"

	middleware "github.com/Skotchmaster/therapy_shop/pkg/middleware/auth"
	"github.com/Skotchmaster/therapy_shop/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/therapy_shop/pkg/middleware/logging"
)

type CommonConfig struct {
	CORSOrigins  []string
	CookieSecure bool
}

// csrfExempt lists the routes a browser reaches before it holds a session.
var csrfExempt = []string{
	"/health",
	"/api/v1/auth/login",
	"/api/v1/auth/register",
	"/api/v1/auth/recover",
	"/api/v1/auth/reset",
}

// Common is the middleware chain every request passes through, outermost first.
func Common(logger *slog.Logger, cfg CommonConfig) []echo.MiddlewareFunc {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-CSRF-Token", "X-Request-ID"},
		ExposedHeaders:   []string{"X-CSRF-Token", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           86400,
	})

	return []echo.MiddlewareFunc{
		ecM.Recover(),
		ecM.RequestID(),
		loggingmw.RequestLogger(logger),
		echo.WrapMiddleware(c.Handler),
		ecM.Secure(),
		csrf.Middleware(csrf.Config{
			Secure:         cfg.CookieSecure,
			SessionCookies: []string{middleware.AccessCookie, middleware.RefreshCookie},
			SkipPaths:      csrfExempt,
		}),
	}
}

// IPExtractor decides what c.RealIP reports, which keys the rate limiter.
// trustProxy reads X-Forwarded-For from private-network peers; only enable
// it behind a proxy that overwrites the header.
func IPExtractor(trustProxy bool) echo.IPExtractor {
	if trustProxy {
		return echo.ExtractIPFromXFFHeader()
	}
	return echo.ExtractIPDirect()
}
