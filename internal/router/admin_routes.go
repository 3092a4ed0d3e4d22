package router

import (
	"github.com/labstack/echo/v4"

	"github.com/cbtwine/attendance/internal/handler"
	"github.com/cbtwine/attendance/internal/middleware"
	"github.com/cbtwine/attendance/internal/model"
)

// RegisterAdmin registers organisation management endpoints under /v1.
// All routes require a valid JWT and the ADMIN role.
func RegisterAdmin(e *echo.Echo, v *handler.VisitorHandler, a *handler.ActivityHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		limit,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	// ---- Visitors ----
	g.GET("/visitors", v.List)
	g.POST("/visitors", v.Create)
	g.GET("/visitors/:id", v.Get)
	g.GET("/visitors/:id/qrcode.png", v.QRCode)

	// ---- Activities ----
	g.GET("/activities", a.List)
	g.POST("/activities", a.Create)
	g.PATCH("/activities/:id/days", a.SetDay)
	g.DELETE("/activities/:id", a.Delete)
}
