package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cbtwine/attendance/internal/config"
	"github.com/cbtwine/attendance/internal/handler"
	"github.com/cbtwine/attendance/internal/middleware"
	"github.com/cbtwine/attendance/internal/model"
	"github.com/cbtwine/attendance/internal/queue"
	"github.com/cbtwine/attendance/internal/repository"
	"github.com/cbtwine/attendance/internal/router"
	"github.com/cbtwine/attendance/internal/scanner"
	"github.com/cbtwine/attendance/internal/testutil"
	"github.com/cbtwine/attendance/internal/utils"
)

const secret = "test-secret"

type recordingEvents struct {
	mu     sync.Mutex
	events []queue.VisitRecordedEvent
}

func (r *recordingEvents) PublishVisitRecorded(_ context.Context, ev queue.VisitRecordedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type countingInvalidator struct{ orgs []uint64 }

func (c *countingInvalidator) InvalidateOrg(_ context.Context, org uint64) { c.orgs = append(c.orgs, org) }

type server struct {
	e      *echo.Echo
	db     *sql.DB
	events *recordingEvents
	inval  *countingInvalidator
	now    time.Time
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 15, KioskTTLMin: 60, RefreshTTLDays: 7, BcryptCost: 4}

	s := &server{db: db, events: &recordingEvents{}, inval: &countingInvalidator{}}
	s.now = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) // a Monday

	visitors := repository.NewVisitorRepo(db)
	activities := repository.NewActivityRepo(db)
	authH := handler.NewAuthHandler(cfg, repository.NewOrganisationRepo(db), repository.NewUserRepo(db), repository.NewTokenRepo(db))
	visitorH := handler.NewVisitorHandler(visitors)
	activityH := handler.NewActivityHandler(activities, s.inval)
	activityH.Now = func() time.Time { return s.now }
	visitH := handler.NewVisitHandler(repository.NewVisitRepo(db), visitors, activities, s.events)

	off := middleware.NewTokenBucket(config.RateLimitConfig{}, nil)
	noCache := middleware.NewRedisCache(config.CacheConfig{}, nil)
	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, secret, off)
	router.RegisterKiosk(e, router.KioskAPI{Visitors: visitorH, Activities: activityH, Visits: visitH}, secret, off, noCache)
	router.RegisterAdmin(e, visitorH, activityH, secret, off)
	s.e = e
	return s
}

func (s *server) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func tokenFor(t *testing.T, uid, org uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, uid, org, role, 5)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	return tok.Token
}

func accessToken(t *testing.T, out map[string]any) string {
	t.Helper()
	access, _ := out["access"].(map[string]any)
	tok, _ := access["token"].(string)
	if tok == "" {
		t.Fatalf("no access token in %v", out)
	}
	return tok
}

func TestRegisterLoginDowngrade(t *testing.T) {
	s := newServer(t)

	rec, out := s.do(t, http.MethodPost, "/v1/auth/register", "", `{"organisation":"Riverside","email":"Admin@CB.test","password":"secret123"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", rec.Code, rec.Body)
	}
	rec, _ = s.do(t, http.MethodPost, "/v1/auth/register", "", `{"organisation":"Again","email":"admin@cb.test","password":"secret123"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register = %d, want 409", rec.Code)
	}

	rec, out = s.do(t, http.MethodPost, "/v1/auth/login", "", `{"email":"admin@cb.test","password":"wrong-pass"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d, want 401", rec.Code)
	}
	rec, out = s.do(t, http.MethodPost, "/v1/auth/login", "", `{"email":"admin@cb.test","password":"secret123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d %s", rec.Code, rec.Body)
	}
	admin := accessToken(t, out)

	rec, out = s.do(t, http.MethodPost, "/v1/auth/downgrade", admin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("downgrade = %d %s", rec.Code, rec.Body)
	}
	kiosk := accessToken(t, out)
	if _, ok := out["refresh"]; ok {
		t.Fatal("downgrade returned a refresh token")
	}

	_, me := s.do(t, http.MethodGet, "/v1/me", kiosk, "")
	if me["role"] != model.RoleKiosk {
		t.Fatalf("me = %v", me)
	}
	if rec, _ := s.do(t, http.MethodPost, "/v1/auth/downgrade", kiosk, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("downgrade with kiosk token = %d, want 403", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodGet, "/v1/visitors", kiosk, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("admin route with kiosk token = %d, want 403", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodGet, "/v1/activities/today", kiosk, ""); rec.Code != http.StatusOK {
		t.Fatalf("kiosk route with kiosk token = %d, want 200", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodGet, "/v1/activities/today", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("kiosk route without token = %d, want 401", rec.Code)
	}
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	s := newServer(t)
	_, out := s.do(t, http.MethodPost, "/v1/auth/register", "", `{"organisation":"R","email":"a@cb.test","password":"secret123"}`)
	refresh := out["refresh"].(map[string]any)["token"].(string)

	rec, out := s.do(t, http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+refresh+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d %s", rec.Code, rec.Body)
	}
	next := out["refresh"].(map[string]any)["token"].(string)
	if rec, _ := s.do(t, http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+refresh+`"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh = %d, want 401", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodPost, "/v1/auth/logout", "", `{"refresh_token":"`+next+`"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("logout = %d", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+next+`"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout = %d, want 401", rec.Code)
	}
}

func TestAddAdminAndMe(t *testing.T) {
	s := newServer(t)
	org, uid := testutil.SeedOrg(t, s.db, "Riverside", "a@cb.test", "secret123")
	admin := tokenFor(t, uid, org, model.RoleAdmin)

	_, me := s.do(t, http.MethodGet, "/v1/me", admin, "")
	if me["organisation_name"] != "Riverside" || me["role"] != model.RoleAdmin {
		t.Fatalf("me = %v", me)
	}

	rec, out := s.do(t, http.MethodPost, "/v1/auth/admins", admin, `{"email":"Second@CB.test","password":"another123"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add admin = %d %s", rec.Code, rec.Body)
	}
	if out["email"] != "second@cb.test" || out["organisation_id"] != float64(org) {
		t.Fatalf("add admin body = %v", out)
	}
	if rec, _ := s.do(t, http.MethodPost, "/v1/auth/admins", admin, `{"email":"second@cb.test","password":"another123"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate admin = %d, want 409", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodPost, "/v1/auth/admins", admin, `{"email":"third@cb.test","password":"short"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("short password = %d, want 400", rec.Code)
	}
	kiosk := tokenFor(t, uid, org, model.RoleKiosk)
	if rec, _ := s.do(t, http.MethodPost, "/v1/auth/admins", kiosk, `{"email":"x@cb.test","password":"another123"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("add admin as kiosk = %d, want 403", rec.Code)
	}

	rec, _ = s.do(t, http.MethodPost, "/v1/auth/login", "", `{"email":"second@cb.test","password":"another123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("new admin login = %d", rec.Code)
	}
}

func TestSearchByQR(t *testing.T) {
	s := newServer(t)
	org, uid := testutil.SeedOrg(t, s.db, "A", "a@cb.test", "secret123")
	other, otherUID := testutil.SeedOrg(t, s.db, "B", "b@cb.test", "secret123")
	id := testutil.SeedVisitor(t, s.db, org, "Sam", "QR123")
	kiosk := tokenFor(t, uid, org, model.RoleKiosk)

	rec, out := s.do(t, http.MethodGet, "/v1/visitors/search?qr=QR123", kiosk, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search = %d %s", rec.Code, rec.Body)
	}
	res, _ := out["result"].(map[string]any)
	if res["id"] != float64(id) || res["name"] != "Sam" {
		t.Fatalf("result = %v", out)
	}

	rec, out = s.do(t, http.MethodGet, "/v1/visitors/search?qr=nope", kiosk, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"result":null`) {
		t.Fatalf("unknown search = %d %s", rec.Code, rec.Body)
	}
	// another organisation never sees the visitor
	rec, _ = s.do(t, http.MethodGet, "/v1/visitors/search?qr=QR123", tokenFor(t, otherUID, other, model.RoleKiosk), "")
	if !strings.Contains(rec.Body.String(), `"result":null`) {
		t.Fatalf("cross-org search = %s", rec.Body)
	}
	if rec, _ := s.do(t, http.MethodGet, "/v1/visitors/search", kiosk, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("search without qr = %d, want 400", rec.Code)
	}
}

func TestActivitiesToday(t *testing.T) {
	s := newServer(t)
	org, uid := testutil.SeedOrg(t, s.db, "A", "a@cb.test", "secret123")
	testutil.SeedActivity(t, s.db, org, "Football", time.Monday)
	testutil.SeedActivity(t, s.db, org, "Art", time.Monday, time.Tuesday)
	testutil.SeedActivity(t, s.db, org, "Choir", time.Friday)
	kiosk := tokenFor(t, uid, org, model.RoleKiosk)

	_, out := s.do(t, http.MethodGet, "/v1/activities/today", kiosk, "")
	acts, _ := out["activities"].([]any)
	if out["day"] != "monday" || len(acts) != 2 {
		t.Fatalf("today = %v", out)
	}
	if acts[0].(map[string]any)["name"] != "Football" {
		t.Fatalf("order = %v", acts)
	}

	s.now = s.now.AddDate(0, 0, 6) // Sunday
	rec, out := s.do(t, http.MethodGet, "/v1/activities/today", kiosk, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"activities":[]`) {
		t.Fatalf("sunday = %d %s", rec.Code, rec.Body)
	}
}

func TestCreateVisit(t *testing.T) {
	s := newServer(t)
	org, uid := testutil.SeedOrg(t, s.db, "A", "a@cb.test", "secret123")
	other, _ := testutil.SeedOrg(t, s.db, "B", "b@cb.test", "secret123")
	sam := testutil.SeedVisitor(t, s.db, org, "Sam", "QR123")
	kim := testutil.SeedVisitor(t, s.db, other, "Kim", "QR999")
	art := testutil.SeedActivity(t, s.db, org, "Art", time.Monday)
	kiosk := tokenFor(t, uid, org, model.RoleKiosk)

	body := func(v, a uint64) string {
		return `{"visitor_id":` + strconv.FormatUint(v, 10) + `,"activity_id":` + strconv.FormatUint(a, 10) + `}`
	}

	rec, out := s.do(t, http.MethodPost, "/v1/visits", kiosk, body(sam, art))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create visit = %d %s", rec.Code, rec.Body)
	}
	if out["visitor_id"] != float64(sam) || out["created_at"] == nil {
		t.Fatalf("visit = %v", out)
	}
	if len(s.events.events) != 1 {
		t.Fatalf("events = %d, want 1", len(s.events.events))
	}
	ev := s.events.events[0]
	if ev.VisitorName != "Sam" || ev.ActivityName != "Art" || ev.Role != model.RoleKiosk || ev.RecordedBy != uid || ev.OrganisationID != org {
		t.Fatalf("event = %+v", ev)
	}

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing ids", `{"visitor_id":0}`, http.StatusBadRequest},
		{"foreign visitor", body(kim, art), http.StatusForbidden},
		{"unknown activity", body(sam, 999), http.StatusNotFound},
	}
	for _, tc := range cases {
		if rec, _ := s.do(t, http.MethodPost, "/v1/visits", kiosk, tc.body); rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
	if n := testutil.CountVisits(t, s.db); n != 1 {
		t.Fatalf("stored visits = %d, want 1", n)
	}
}

func TestActivityAdmin(t *testing.T) {
	s := newServer(t)
	org, uid := testutil.SeedOrg(t, s.db, "A", "a@cb.test", "secret123")
	admin := tokenFor(t, uid, org, model.RoleAdmin)

	if rec, _ := s.do(t, http.MethodPost, "/v1/activities", admin, `{"name":"Yoga","days":["funday"]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad day = %d, want 400", rec.Code)
	}
	rec, out := s.do(t, http.MethodPost, "/v1/activities", admin, `{"name":"Yoga","category":"wellbeing","days":["Monday","friday"]}`)
	if rec.Code != http.StatusCreated || out["monday"] != true || out["friday"] != true || out["sunday"] != false {
		t.Fatalf("create = %d %v", rec.Code, out)
	}
	id := strconv.FormatFloat(out["id"].(float64), 'f', 0, 64)

	rec, out = s.do(t, http.MethodPatch, "/v1/activities/"+id+"/days", admin, `{"day":"monday"}`)
	if rec.Code != http.StatusOK || out["monday"] != false {
		t.Fatalf("toggle = %d %v", rec.Code, out)
	}
	rec, out = s.do(t, http.MethodPatch, "/v1/activities/"+id+"/days", admin, `{"day":"sunday","enabled":true}`)
	if rec.Code != http.StatusOK || out["sunday"] != true {
		t.Fatalf("enable = %d %v", rec.Code, out)
	}

	visitor := testutil.SeedVisitor(t, s.db, org, "Sam", "QR1")
	aid, _ := strconv.ParseUint(id, 10, 64)
	if _, err := repository.NewVisitRepo(s.db).Create(context.Background(), org, visitor, aid); err != nil {
		t.Fatalf("seed visit: %v", err)
	}
	if rec, _ := s.do(t, http.MethodDelete, "/v1/activities/"+id, admin, ""); rec.Code != http.StatusConflict {
		t.Fatalf("delete with visits = %d, want 409", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodDelete, "/v1/activities/999", admin, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("delete unknown = %d, want 404", rec.Code)
	}
	if len(s.inval.orgs) != 3 || s.inval.orgs[0] != org {
		t.Fatalf("invalidations = %v, want 3 for org %d", s.inval.orgs, org)
	}
}

func TestCreateVisitorAndPrintCode(t *testing.T) {
	s := newServer(t)
	org, uid := testutil.SeedOrg(t, s.db, "A", "a@cb.test", "secret123")
	admin := tokenFor(t, uid, org, model.RoleAdmin)

	if rec, _ := s.do(t, http.MethodPost, "/v1/visitors", admin, `{"name":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name = %d, want 400", rec.Code)
	}
	rec, out := s.do(t, http.MethodPost, "/v1/visitors", admin, `{"name":"Sam","email":"sam@example.org","birth_year":1990}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body)
	}
	qr, _ := out["qr_code"].(string)
	if len(qr) != 36 {
		t.Fatalf("qr_code = %q, want a uuid", qr)
	}
	id := strconv.FormatFloat(out["id"].(float64), 'f', 0, 64)

	rec, out = s.do(t, http.MethodGet, "/v1/visitors/"+id, admin, "")
	if rec.Code != http.StatusOK || out["visitor"] == nil {
		t.Fatalf("get = %d %s", rec.Code, rec.Body)
	}

	rec, _ = s.do(t, http.MethodGet, "/v1/visitors/"+id+"/qrcode.png?size=200", admin, "")
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "image/png" {
		t.Fatalf("qrcode = %d %s", rec.Code, rec.Header())
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	got, err := scanner.NewQRDecoder().Decode(img)
	if err != nil || got != qr {
		t.Fatalf("decoded %q, %v; want %q", got, err, qr)
	}

	// the printed code finds the visitor at a kiosk
	_, found := s.do(t, http.MethodGet, "/v1/visitors/search?qr="+qr, tokenFor(t, uid, org, model.RoleKiosk), "")
	if res, _ := found["result"].(map[string]any); res["name"] != "Sam" {
		t.Fatalf("search = %v", found)
	}
}
