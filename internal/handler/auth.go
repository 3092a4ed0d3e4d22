package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/cbtwine/attendance/internal/config"
    "github.com/cbtwine/attendance/internal/model"
    "github.com/cbtwine/attendance/internal/repository"
    "github.com/cbtwine/attendance/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Cfg    config.Config
    Orgs   *repository.OrganisationRepo
    Users  *repository.UserRepo
    Tokens *repository.TokenRepo
}

func NewAuthHandler(cfg config.Config, o *repository.OrganisationRepo, u *repository.UserRepo, t *repository.TokenRepo) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Orgs: o, Users: u, Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
    Organisation string `json:"organisation"`
    Email        string `json:"email"`
    Password     string `json:"password"`
}
type loginReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}
type userPart struct {
    ID             uint64 `json:"id"`
    OrganisationID uint64 `json:"organisation_id"`
    Email          string `json:"email"`
    Role           string `json:"role"`
}
type authResp struct {
    User    userPart   `json:"user"`
    Access  tokenPart  `json:"access"`
    Refresh *tokenPart `json:"refresh,omitempty"`
}

// issue creates an access token plus a stored refresh token for u.
func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.OrganisationID, u.Role, h.Cfg.AccessTTLMin)
    if err != nil {
        return authResp{}, err
    }
    refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
    if err != nil {
        return authResp{}, err
    }
    if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
        return authResp{}, err
    }
    return authResp{
        User:    userPart{ID: u.ID, OrganisationID: u.OrganisationID, Email: u.Email, Role: u.Role},
        Access:  tokenPart{Token: access.Token, Expires: access.Exp},
        Refresh: &tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
    }, nil
}

// Register creates an organisation and its first admin, then logs the
// admin in.  A taken email is a clean 409.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    req.Organisation = strings.TrimSpace(req.Organisation)
    if req.Email == "" || req.Password == "" || req.Organisation == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "organisation/email/password required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    orgID, uid, err := h.Orgs.Register(ctx, req.Organisation, req.Email, req.Password, h.Cfg.BcryptCost)
    switch {
    case errors.Is(err, repository.ErrEmailExists):
        return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
    case errors.Is(err, utils.ErrPasswordTooShort):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "password too short"})
    case err != nil:
        c.Logger().Errorf("register: %v", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create organisation failed"})
    }

    resp, err := h.issue(ctx, model.User{ID: uid, OrganisationID: orgID, Email: req.Email, Role: model.RoleAdmin})
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
    }
    return c.JSON(http.StatusCreated, resp)
}

// Login: verify and return new pair.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    if req.Email == "" || req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.GetByEmail(ctx, req.Email)
    if errors.Is(err, repository.ErrNotFound) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }

    resp, err := h.issue(ctx, u)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
    }
    return c.JSON(http.StatusOK, resp)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
    }
    hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    userID, err := h.Tokens.ValidateRefresh(ctx, hash)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
    }
    _ = h.Tokens.RevokeByHash(ctx, hash)

    u, err := h.Users.GetByID(ctx, userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
    }
    if !u.IsActive {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
    }
    resp, err := h.issue(ctx, u)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
    }
    return c.JSON(http.StatusOK, resp)
}

// Logout revokes the refresh token in the body.  Without one, and with a
// valid access token (JWTAuth ran), it revokes every refresh token of the
// caller.
func (h *AuthHandler) Logout(c echo.Context) error {
    var req refreshReq
    _ = c.Bind(&req)
    raw := strings.TrimSpace(req.RefreshToken)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if raw != "" {
        hash := utils.HashRefreshRaw(raw)
        if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
        }
        if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
        }
        return c.NoContent(http.StatusNoContent)
    }

    who, err := callerFrom(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
    }
    if err := h.Tokens.RevokeAllForUser(ctx, who.UserID); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
    }
    return c.NoContent(http.StatusNoContent)
}

// Me reports who the token belongs to, including the organisation name
// the kiosk shows in its header.
func (h *AuthHandler) Me(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    org, err := h.Orgs.GetByID(c.Request().Context(), who.OrgID)
    if err != nil {
        return repoError(c, err, "organisation", "load organisation failed")
    }
    return c.JSON(http.StatusOK, echo.Map{
        "user_id":           who.UserID,
        "organisation_id":   who.OrgID,
        "organisation_name": org.Name,
        "role":              who.Role,
    })
}

// AddAdmin creates another admin in the caller's organisation.
func (h *AuthHandler) AddAdmin(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    if req.Email == "" || req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    id, err := h.Users.Create(ctx, who.OrgID, req.Email, req.Password, model.RoleAdmin, h.Cfg.BcryptCost)
    switch {
    case errors.Is(err, repository.ErrEmailExists):
        return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
    case errors.Is(err, utils.ErrPasswordTooShort):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "password too short"})
    case err != nil:
        c.Logger().Errorf("add admin: %v", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create admin failed"})
    }
    return c.JSON(http.StatusCreated, userPart{ID: id, OrganisationID: who.OrgID, Email: req.Email, Role: model.RoleAdmin})
}

// Downgrade exchanges an admin access token for a KIOSK token of the same
// admin and organisation.  Kiosk tokens carry no refresh token; the kiosk
// logs in again when one expires.
func (h *AuthHandler) Downgrade(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    if who.Role != model.RoleAdmin {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "only admins can downgrade"})
    }
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, who.UserID, who.OrgID, model.RoleKiosk, h.Cfg.KioskTTLMin)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
    }
    return c.JSON(http.StatusOK, authResp{
        User:   userPart{ID: who.UserID, OrganisationID: who.OrgID, Role: model.RoleKiosk},
        Access: tokenPart{Token: access.Token, Expires: access.Exp},
    })
}
