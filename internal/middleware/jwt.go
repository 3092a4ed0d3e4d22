package middleware // reusable HTTP middleware for the attendance API

import (
    "net/http" // HTTP status codes for responses
    "strings"  // bearer prefix handling

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/cbtwine/attendance/internal/utils"
)

// Context keys set by JWTAuth.
const (
    CtxUserID = "user_id" // uint64
    CtxOrgID  = "org_id"  // uint64
    CtxRole   = "role"    // string, ADMIN or KIOSK
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the caller's user id, organisation id and role into the
// request context.  Handlers read them with c.Get(CtxUserID) and friends;
// every repository query downstream is scoped by the organisation id.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

            // Signature, algorithm, expiry and required claims are checked
            // by ParseAccessToken; any failure is a plain 401.
            claims, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            uid, err := claims.UserID()
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }

            c.Set(CtxUserID, uid)
            c.Set(CtxOrgID, claims.OrganisationID)
            c.Set(CtxRole, claims.Role)
            return next(c)
        }
    }
}
