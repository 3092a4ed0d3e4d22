package handler

import (
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/cbtwine/attendance/internal/model"
    "github.com/cbtwine/attendance/internal/repository"
    "github.com/cbtwine/attendance/internal/utils"
)

// VisitorHandler serves visitor registration and the kiosk's QR lookup.
type VisitorHandler struct {
    Visitors *repository.VisitorRepo
}

func NewVisitorHandler(v *repository.VisitorRepo) *VisitorHandler {
    if v == nil {
        panic("nil repository passed to NewVisitorHandler")
    }
    return &VisitorHandler{Visitors: v}
}

// SearchByQR handles GET /v1/visitors/search?qr=...  An unknown code is
// not an error: the body is {"result": null} with status 200, and the
// kiosk treats it as "no such visitor".
func (h *VisitorHandler) SearchByQR(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    qr := strings.TrimSpace(c.QueryParam("qr"))
    if qr == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "qr is required"})
    }
    v, err := h.Visitors.FindByQRCode(c.Request().Context(), who.OrgID, qr)
    if err == repository.ErrNotFound {
        return c.JSON(http.StatusOK, echo.Map{"result": nil})
    }
    if err != nil {
        return repoError(c, err, "visitor", "search failed")
    }
    return c.JSON(http.StatusOK, echo.Map{"result": v})
}

// List handles GET /v1/visitors.
func (h *VisitorHandler) List(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    items, err := h.Visitors.List(c.Request().Context(), who.OrgID)
    if err != nil {
        return repoError(c, err, "visitor", "list failed")
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /v1/visitors/:id and includes the visit history.
func (h *VisitorHandler) Get(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := pathID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    ctx := c.Request().Context()
    v, err := h.Visitors.GetByID(ctx, who.OrgID, id)
    if err != nil {
        return repoError(c, err, "visitor", "load failed")
    }
    visits, err := h.Visitors.ListVisits(ctx, who.OrgID, id)
    if err != nil {
        return repoError(c, err, "visitor", "load visits failed")
    }
    return c.JSON(http.StatusOK, echo.Map{"visitor": v, "visits": visits})
}

type createVisitorReq struct {
    Name         string  `json:"name"`
    Email        *string `json:"email"`
    Phone        *string `json:"phone_number"`
    Gender       *string `json:"gender"`
    BirthYear    *int    `json:"birth_year"`
    EmailConsent bool    `json:"email_consent"`
}

// Create handles POST /v1/visitors.  The QR payload is generated here and
// returned so the card can be printed straight away.
func (h *VisitorHandler) Create(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    var req createVisitorReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    name := strings.TrimSpace(req.Name)
    if name == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
    }
    if req.BirthYear != nil && (*req.BirthYear < 1900 || *req.BirthYear > 2100) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "birth_year out of range"})
    }
    v := &model.Visitor{
        OrganisationID: who.OrgID,
        Name:           name,
        Email:          trimmed(req.Email),
        Phone:          trimmed(req.Phone),
        Gender:         trimmed(req.Gender),
        BirthYear:      req.BirthYear,
        EmailConsent:   req.EmailConsent,
        QRCode:         utils.NewQRPayload(),
    }
    if err := h.Visitors.Create(c.Request().Context(), v); err != nil {
        if err == repository.ErrQRCodeExists {
            return c.JSON(http.StatusConflict, echo.Map{"error": "qr code collision, retry"})
        }
        return repoError(c, err, "visitor", "could not create visitor")
    }
    return c.JSON(http.StatusCreated, v)
}

// QRCode handles GET /v1/visitors/:id/qrcode.png?size=N (default 256).
func (h *VisitorHandler) QRCode(c echo.Context) error {
    who, err := callerFrom(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := pathID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    size := 256
    if s := c.QueryParam("size"); s != "" {
        n, err := strconv.Atoi(s)
        if err != nil || n < 64 || n > 2048 {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "size must be between 64 and 2048"})
        }
        size = n
    }
    v, err := h.Visitors.GetByID(c.Request().Context(), who.OrgID, id)
    if err != nil {
        return repoError(c, err, "visitor", "load failed")
    }
    png, err := utils.QRCodePNG(v.QRCode, size)
    if err != nil {
        c.Logger().Errorf("qrcode %d: %v", v.ID, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "render failed"})
    }
    return c.Blob(http.StatusOK, "image/png", png)
}

func trimmed(s *string) *string {
    if s == nil {
        return nil
    }
    t := strings.TrimSpace(*s)
    if t == "" {
        return nil
    }
    return &t
}
