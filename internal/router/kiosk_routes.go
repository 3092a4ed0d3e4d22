package router

import (
	"github.com/labstack/echo/v4"

	"github.com/cbtwine/attendance/internal/handler"
	"github.com/cbtwine/attendance/internal/middleware"
	"github.com/cbtwine/attendance/internal/model"
)

// KioskAPI groups the handlers a check-in kiosk talks to.
type KioskAPI struct {
	Visitors   *handler.VisitorHandler
	Activities *handler.ActivityHandler
	Visits     *handler.VisitHandler
}

// RegisterKiosk registers the three endpoints the check-in flow uses.
// They accept ADMIN and the downgraded KIOSK role.  Today's activities go
// through the response cache, keyed per organisation.
func RegisterKiosk(e *echo.Echo, k KioskAPI, jwtSecret string, limit, cache echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		limit,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleKiosk),
	)
	g.GET("/visitors/search", k.Visitors.SearchByQR)
	g.GET("/activities/today", k.Activities.Today, cache)
	g.POST("/visits", k.Visits.Create)
}
