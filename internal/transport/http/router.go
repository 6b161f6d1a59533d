package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/handlers"
	authhandler "github.com/Skotchmaster/storefront/internal/handlers/auth"
	carthandler "github.com/Skotchmaster/storefront/internal/handlers/cart"
	mwauth "github.com/Skotchmaster/storefront/internal/middleware/auth"
)

type Deps struct {
	DB               *gorm.DB
	JWTSecret        []byte
	AuthHandler      *authhandler.AuthHandler
	CartHandler      *carthandler.CartHandler
	DashboardHandler *handlers.DashboardHandler
	ProductHandler   *handlers.ProductHandler
	CategoryHandler  *handlers.CategoryHandler
	SearchHandler    *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.Logout, mwauth.RequireLogin(d.JWTSecret))
	auth.GET("/me", d.AuthHandler.Me, mwauth.RequireLogin(d.JWTSecret))

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	categories := v1.Group("/categories")
	categories.GET("", d.CategoryHandler.GetCategories)
	categories.GET("/:id", d.CategoryHandler.GetCategory)
	categories.GET("/:id/products", d.CategoryHandler.GetCategoryProducts)

	v1.GET("/search", d.SearchHandler.Search)

	admin := v1.Group("/admin", mwauth.RequireAdmin(d.JWTSecret))
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)

	cart := v1.Group("/cart", mwauth.RequireLogin(d.JWTSecret))
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("/items", d.CartHandler.AddItem)
	cart.PATCH("/items/:id", d.CartHandler.UpdateItem)
	cart.DELETE("/items/:id", d.CartHandler.RemoveItem)
	cart.DELETE("", d.CartHandler.ClearCart)
	cart.POST("/checkout", d.CartHandler.Checkout)

	dashboard := v1.Group("/dashboard", mwauth.RequireLogin(d.JWTSecret))
	dashboard.GET("/profile", d.DashboardHandler.GetProfile)
	dashboard.PUT("/profile", d.DashboardHandler.UpdateProfile)
	dashboard.POST("/password", d.DashboardHandler.ChangePassword)
	dashboard.GET("/orders", d.DashboardHandler.GetOrders)
}
