package middleware

// identity.go holds the caller lookups shared by the rate limiter and the
// response cache.  Both run after JWTAuth on protected groups and before
// it (anonymously) on public routes.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// userID returns the authenticated user id as a string, or "guest".
func userID(c echo.Context) string {
    if v, ok := c.Get(CtxUserID).(uint64); ok && v != 0 {
        return strconv.FormatUint(v, 10)
    }
    return "guest"
}

// orgID returns the caller's organisation id as a string, or "none".
// Cache entries are partitioned by it.
func orgID(c echo.Context) string {
    if v, ok := c.Get(CtxOrgID).(uint64); ok && v != 0 {
        return strconv.FormatUint(v, 10)
    }
    return "none"
}
