package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/cbtwine/attendance/internal/middleware"
    "github.com/cbtwine/attendance/internal/repository"
)

var errNoIdentity = errors.New("missing identity in context")

// caller is the authenticated admin or kiosk behind a request.
type caller struct {
    UserID uint64
    OrgID  uint64
    Role   string
}

// callerFrom reads what JWTAuth stored in the context.
func callerFrom(c echo.Context) (caller, error) {
    uid, ok1 := c.Get(middleware.CtxUserID).(uint64)
    org, ok2 := c.Get(middleware.CtxOrgID).(uint64)
    role, _ := c.Get(middleware.CtxRole).(string)
    if !ok1 || !ok2 || uid == 0 || org == 0 {
        return caller{}, errNoIdentity
    }
    return caller{UserID: uid, OrgID: org, Role: role}, nil
}

func unauthorized(c echo.Context) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// pathID parses the :id path parameter.
func pathID(c echo.Context) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    return id, err == nil && id != 0
}

// repoError maps repository sentinels onto status codes; anything else is
// a 500 with the given message.
func repoError(c echo.Context, err error, what, msg500 string) error {
    switch {
    case errors.Is(err, repository.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": what + " not found"})
    case errors.Is(err, repository.ErrForbidden):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    case errors.Is(err, repository.ErrConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": what + " is in use"})
    }
    c.Logger().Errorf("%s: %v", msg500, err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg500})
}
