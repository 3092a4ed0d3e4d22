package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/cbtwine/attendance/internal/queue"
    "github.com/cbtwine/attendance/internal/repository"
)

// VisitEvents receives an event for every stored visit.
type VisitEvents interface {
    PublishVisitRecorded(ctx context.Context, ev queue.VisitRecordedEvent) error
}

// VisitHandler records check-ins coming from kiosks.
type VisitHandler struct {
    Visits     *repository.VisitRepo
    Visitors   *repository.VisitorRepo
    Activities *repository.ActivityRepo
    Events     VisitEvents
}

func NewVisitHandler(v *repository.VisitRepo, vr *repository.VisitorRepo, a *repository.ActivityRepo, ev VisitEvents) *VisitHandler {
    if v == nil || vr == nil || a == nil {
        panic("nil repository passed to NewVisitHandler")
    }
    return &VisitHandler{Visits: v, Visitors: vr, Activities: a, Events: ev}
}

type createVisitReq struct {
    VisitorID  uint64 `json:"visitor_id"`
    ActivityID uint64 `json:"activity_id"`
}

// Create handles POST /v1/visits.  The timestamp is assigned here, not by
// the kiosk.  Missing ids are 400; a visitor or activity outside the
// caller's organisation is 404/403.
func (h *VisitHandler) Create(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    var req createVisitReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.VisitorID == 0 || req.ActivityID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "visitor_id and activity_id are required"})
    }
    ctx := c.Request().Context()
    visit, err := h.Visits.Create(ctx, who.OrgID, req.VisitorID, req.ActivityID)
    if err != nil {
        return repoError(c, err, "visitor or activity", "could not record visit")
    }

    if h.Events != nil {
        ev := queue.VisitRecordedEvent{
            VisitID:        visit.ID,
            OrganisationID: who.OrgID,
            VisitorID:      visit.VisitorID,
            ActivityID:     visit.ActivityID,
            RecordedBy:     who.UserID,
            Role:           who.Role,
            RecordedAt:     visit.CreatedAt.Format(time.RFC3339),
        }
        if v, err := h.Visitors.GetByID(ctx, who.OrgID, visit.VisitorID); err == nil {
            ev.VisitorName = v.Name
        }
        if a, err := h.Activities.GetByID(ctx, who.OrgID, visit.ActivityID); err == nil {
            ev.ActivityName = a.Name
        }
        pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
        defer cancel()
        if err := h.Events.PublishVisitRecorded(pctx, ev); err != nil {
            c.Logger().Warnf("visit %d stored, event not published: %v", visit.ID, err)
        }
    }
    return c.JSON(http.StatusCreated, visit)
}
