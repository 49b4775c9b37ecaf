package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/campusclub/shop/internal/cache"
	"github.com/campusclub/shop/internal/handlers"
	mwauth "github.com/campusclub/shop/internal/middleware/auth"
)

type Deps struct {
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	CartHandler    *handlers.CartHandler
	OrderHandler   *handlers.OrderHandler
	SearchHandler  *handlers.SearchHandler
	AuthMw         *mwauth.Middleware
	Cache          *cache.Store
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if err := d.Cache.Ping(c.Request().Context()); err != nil {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})

	v1 := e.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/admin", d.AuthHandler.AdminLogin)
	auth.POST("/refresh-token", d.AuthHandler.RefreshToken)
	auth.POST("/forgot-password", d.AuthHandler.ForgotPassword)
	auth.POST("/reset-password", d.AuthHandler.ResetPassword)
	auth.POST("/logout", d.AuthHandler.Logout, d.AuthMw.RequireAuth)
	auth.GET("/profile", d.AuthHandler.Profile, d.AuthMw.RequireAuth)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	admin := v1.Group("/admin", d.AuthMw.RequireAdmin)
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	admin.PATCH("/orders/:id/status", d.OrderHandler.UpdateStatus)

	v1.GET("/search", d.SearchHandler.Search)

	cartGroup := v1.Group("/cart", d.AuthMw.RequireAuth)
	cartGroup.GET("", d.CartHandler.GetCart)
	cartGroup.POST("", d.CartHandler.AddToCart)
	cartGroup.DELETE("/:id", d.CartHandler.RemoveFromCart)
	cartGroup.POST("/order", d.OrderHandler.MakeOrder)

	orders := v1.Group("/orders", d.AuthMw.RequireAuth)
	orders.GET("", d.OrderHandler.GetOrders)
}
