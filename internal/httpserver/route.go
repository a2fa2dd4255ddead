package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/therapy_shop/pkg/logging"
	middleware "github.com/Skotchmaster/therapy_shop/pkg/middleware/auth"
	"github.com/Skotchmaster/therapy_shop/pkg/middleware/ratelimit"
)

type Deps struct {
	AuthHandler    *AuthHTTP
	CatalogHandler *CatalogHTTP
	OrderHandler   *OrderHTTP
	AdminHandler   *AdminHTTP

	Gate         *middleware.Gate
	RecoverLimit *ratelimit.Limiter
	Ready        func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := d.Ready(ctx); err != nil {
			logging.FromContext(ctx).Error("ready_check_failed", "error", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})

	api := e.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.Logout)
	if d.RecoverLimit != nil {
		auth.POST("/recover", d.AuthHandler.Recover, d.RecoverLimit.Middleware)
	} else {
		auth.POST("/recover", d.AuthHandler.Recover)
	}
	auth.POST("/reset", d.AuthHandler.Reset)
	auth.GET("/me", d.AuthHandler.Me, d.Gate.RequireAuth)
	auth.PUT("/me", d.AuthHandler.UpdateMe, d.Gate.RequireAuth)
	auth.PUT("/password", d.AuthHandler.ChangePassword, d.Gate.RequireAuth)

	products := api.Group("/products")
	products.GET("", d.CatalogHandler.GetProducts)
	products.GET("/search", d.CatalogHandler.SearchProducts)
	products.GET("/:id", d.CatalogHandler.GetProduct)

	orders := api.Group("/orders")
	orders.POST("", d.OrderHandler.CreateOrder, d.Gate.Optional)
	orders.GET("", d.OrderHandler.ListOrders, d.Gate.RequireAuth)
	orders.GET("/:id", d.OrderHandler.GetOrder, d.Gate.Optional)
	orders.PUT("/:id/status", d.OrderHandler.UpdateStatus, d.Gate.RequireAdmin)

	admin := api.Group("/admin", d.Gate.RequireAdmin)
	admin.POST("/products", d.CatalogHandler.CreateProduct)
	admin.PATCH("/products/:id", d.CatalogHandler.PatchProduct)
	admin.DELETE("/products/:id", d.CatalogHandler.DeleteProduct)
	admin.GET("/config", d.AdminHandler.GetConfig)
	admin.PUT("/config", d.AdminHandler.SaveConfig)
}
