package kiosk

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cbtwine/attendance/internal/checkin"
)

type sessionResp struct {
	Session uint64 `json:"session"`
	checkin.Snapshot
}

// Handler exposes a Service to the kiosk UI.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Register mounts the kiosk endpoints on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	g := e.Group("/kiosk")
	g.POST("/session", h.Begin)
	g.GET("/session", h.Current)
	g.POST("/session/visit", h.Select)
	g.DELETE("/session", h.End)
	g.GET("/navigation", h.Navigation)
	g.POST("/login", h.Login)
}

// Begin handles POST /kiosk/session.  Any running session is torn down
// first; 503 while it has not released the camera, 409 when a concurrent
// request started another session.
func (h *Handler) Begin(c echo.Context) error {
	id, snap, err := h.svc.Begin(c.Request().Context())
	switch {
	case errors.Is(err, ErrSuperseded):
		return c.JSON(http.StatusConflict, echo.Map{"error": "another session was started"})
	case errors.Is(err, ErrDeviceBusy):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "camera still in use, try again"})
	case err != nil:
		c.Logger().Errorf("kiosk: begin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start session"})
	}
	return c.JSON(http.StatusCreated, sessionResp{Session: id, Snapshot: snap})
}

// Current handles GET /kiosk/session.
func (h *Handler) Current(c echo.Context) error {
	id, snap, err := h.svc.Current()
	if errors.Is(err, ErrNoSession) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no session"})
	}
	return c.JSON(http.StatusOK, sessionResp{Session: id, Snapshot: snap})
}

// Select handles POST /kiosk/session/visit {"activity_id": N}.  A choice
// made while no selection is offered is a 409 and changes nothing.
func (h *Handler) Select(c echo.Context) error {
	var req struct {
		ActivityID int64 `json:"activity_id"`
	}
	if err := c.Bind(&req); err != nil || req.ActivityID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "activity_id required"})
	}
	id, snap, err := h.svc.Select(req.ActivityID)
	switch {
	case errors.Is(err, ErrNoSession):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no session"})
	case errors.Is(err, checkin.ErrSelectionUnavailable), errors.Is(err, checkin.ErrClosed):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "session": id, "phase": snap.Phase})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "selection failed"})
	}
	return c.JSON(http.StatusOK, sessionResp{Session: id, Snapshot: snap})
}

// End handles DELETE /kiosk/session.
func (h *Handler) End(c echo.Context) error {
	h.svc.End()
	return c.NoContent(http.StatusNoContent)
}

// Navigation handles GET /kiosk/navigation.
func (h *Handler) Navigation(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.LastNavigation())
}

// Login handles POST /kiosk/login.  The body may name another admin;
// without one the configured account is used.
func (h *Handler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	if err := h.svc.Login(ctx, req.Email, req.Password); err != nil {
		var ce *checkin.CallError
		if errors.As(err, &ce) && ce.Kind == checkin.KindAuth {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		c.Logger().Errorf("kiosk: login: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "attendance server unavailable"})
	}
	return c.NoContent(http.StatusNoContent)
}
