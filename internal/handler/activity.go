package handler

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/cbtwine/attendance/internal/model"
    "github.com/cbtwine/attendance/internal/repository"
)

// Invalidator drops cached responses of an organisation.
type Invalidator interface {
    InvalidateOrg(ctx context.Context, orgID uint64)
}

// ActivityHandler serves the activity catalog.  Now decides what "today"
// is; it defaults to the server clock in UTC.
type ActivityHandler struct {
    Activities *repository.ActivityRepo
    Cache      Invalidator
    Now        func() time.Time
}

func NewActivityHandler(a *repository.ActivityRepo, cache Invalidator) *ActivityHandler {
    if a == nil {
        panic("nil repository passed to NewActivityHandler")
    }
    return &ActivityHandler{Activities: a, Cache: cache, Now: func() time.Time { return time.Now().UTC() }}
}

func (h *ActivityHandler) invalidate(ctx context.Context, org uint64) {
    if h.Cache != nil {
        h.Cache.InvalidateOrg(ctx, org)
    }
}

func parseWeekday(s string) (time.Weekday, bool) {
    s = strings.ToLower(strings.TrimSpace(s))
    for i, name := range model.Weekdays {
        if name == s {
            return time.Weekday(i), true
        }
    }
    return 0, false
}

// Today handles GET /v1/activities/today.  An organisation with nothing
// scheduled today gets an empty list.
func (h *ActivityHandler) Today(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    day := h.Now().Weekday()
    items, err := h.Activities.ListForDay(c.Request().Context(), who.OrgID, day)
    if err != nil {
        return repoError(c, err, "activity", "list failed")
    }
    return c.JSON(http.StatusOK, echo.Map{"day": model.Weekdays[day], "activities": items})
}

// List handles GET /v1/activities.
func (h *ActivityHandler) List(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    items, err := h.Activities.List(c.Request().Context(), who.OrgID)
    if err != nil {
        return repoError(c, err, "activity", "list failed")
    }
    return c.JSON(http.StatusOK, echo.Map{"activities": items})
}

type createActivityReq struct {
    Name     string   `json:"name"`
    Category string   `json:"category"`
    Days     []string `json:"days"`
}

// Create handles POST /v1/activities with {"name", "category", "days": ["monday", ...]}.
func (h *ActivityHandler) Create(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    var req createActivityReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    a := &model.Activity{
        OrganisationID: who.OrgID,
        Name:           strings.TrimSpace(req.Name),
        Category:       strings.TrimSpace(req.Category),
    }
    if a.Name == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
    }
    for _, d := range req.Days {
        wd, ok := parseWeekday(d)
        if !ok {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown day " + d})
        }
        setDay(a, wd, true)
    }
    ctx := c.Request().Context()
    if err := h.Activities.Create(ctx, a); err != nil {
        return repoError(c, err, "activity", "could not create activity")
    }
    h.invalidate(ctx, who.OrgID)
    return c.JSON(http.StatusCreated, a)
}

func setDay(a *model.Activity, d time.Weekday, on bool) {
    switch d {
    case time.Monday:
        a.Monday = on
    case time.Tuesday:
        a.Tuesday = on
    case time.Wednesday:
        a.Wednesday = on
    case time.Thursday:
        a.Thursday = on
    case time.Friday:
        a.Friday = on
    case time.Saturday:
        a.Saturday = on
    default:
        a.Sunday = on
    }
}

// SetDay handles PATCH /v1/activities/:id/days with {"day": "monday",
// "enabled": true}.  Omitting enabled toggles the current value.
func (h *ActivityHandler) SetDay(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := pathID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    var req struct {
        Day     string `json:"day"`
        Enabled *bool  `json:"enabled"`
    }
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    day, ok := parseWeekday(req.Day)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "day must be a weekday name"})
    }
    ctx := c.Request().Context()
    var on bool
    if req.Enabled != nil {
        on = *req.Enabled
    } else {
        cur, err := h.Activities.GetByID(ctx, who.OrgID, id)
        if err != nil {
            return repoError(c, err, "activity", "load failed")
        }
        on = !cur.RunsOn(day)
    }
    a, err := h.Activities.SetDay(ctx, who.OrgID, id, day, on)
    if err != nil {
        return repoError(c, err, "activity", "update failed")
    }
    h.invalidate(ctx, who.OrgID)
    return c.JSON(http.StatusOK, a)
}

// Delete handles DELETE /v1/activities/:id.  Activities with recorded
// visits cannot be deleted (409).
func (h *ActivityHandler) Delete(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := pathID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    ctx := c.Request().Context()
    if err := h.Activities.Delete(ctx, who.OrgID, id); err != nil {
        return repoError(c, err, "activity", "delete failed")
    }
    h.invalidate(ctx, who.OrgID)
    return c.NoContent(http.StatusNoContent)
}
