package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/cbtwine/attendance/internal/handler"
	"github.com/cbtwine/attendance/internal/middleware"
	"github.com/cbtwine/attendance/internal/model"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the token endpoints.  register, login, refresh and
// logout-by-refresh-token are open; /v1/me and /v1/logout need an access
// token of either role, /v1/auth/downgrade and /v1/auth/admins an ADMIN
// one.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	jwt := middleware.JWTAuth(jwtSecret)
	g.POST("/downgrade", a.Downgrade, jwt, middleware.RequireRole(model.RoleAdmin))
	g.POST("/admins", a.AddAdmin, jwt, middleware.RequireRole(model.RoleAdmin))

	auth := e.Group("/v1", jwt, middleware.RequireRole(model.RoleAdmin, model.RoleKiosk))
	auth.GET("/me", a.Me)
	auth.POST("/logout", a.Logout)
}
