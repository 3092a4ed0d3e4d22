// Package apiclient is the kiosk's client for the attendance API.  It
// implements the remote collaborators of the check-in flow and reports
// every failure as a *checkin.CallError so that HTTP statuses are
// interpreted in one place.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cbtwine/attendance/internal/checkin"
)

// ErrNoToken is returned (as a KindAuth call error) when a request that
// needs a token is made before Authenticate succeeded.
var ErrNoToken = errors.New("kiosk is not logged in")

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the attendance API with a downgraded KIOSK token.  It
// is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
	exp   time.Time
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("api base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type tokenResp struct {
	Access struct {
		Token   string    `json:"token"`
		Expires time.Time `json:"expires"`
	} `json:"access"`
}

// Authenticate logs in as the admin and immediately exchanges the admin
// token for a KIOSK token, which is the only credential the client keeps.
func (c *Client) Authenticate(ctx context.Context, email, password string) error {
	var admin tokenResp
	err := c.do(ctx, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &admin)
	if err != nil {
		return err
	}
	var kiosk tokenResp
	if err := c.do(ctx, http.MethodPost, "/v1/auth/downgrade", admin.Access.Token, nil, &kiosk); err != nil {
		return err
	}
	if kiosk.Access.Token == "" {
		return &checkin.CallError{Kind: checkin.KindTransport, Err: errors.New("downgrade returned no token")}
	}
	c.mu.Lock()
	c.token, c.exp = kiosk.Access.Token, kiosk.Access.Expires
	c.mu.Unlock()
	return nil
}

// LoggedIn reports whether a kiosk token is held and not yet expired.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != "" && (c.exp.IsZero() || time.Now().Before(c.exp))
}

func (c *Client) bearer() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", &checkin.CallError{Kind: checkin.KindAuth, Err: ErrNoToken}
	}
	return c.token, nil
}

type visitorDTO struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	QRCode string `json:"qr_code"`
}

// FindVisitorByQR implements checkin.VisitorFinder.  A {"result": null}
// answer yields (nil, nil).
func (c *Client) FindVisitorByQR(ctx context.Context, payload string) (*checkin.Visitor, error) {
	tok, err := c.bearer()
	if err != nil {
		return nil, err
	}
	var out struct {
		Result *visitorDTO `json:"result"`
	}
	path := "/v1/visitors/search?qr=" + url.QueryEscape(payload)
	if err := c.do(ctx, http.MethodGet, path, tok, nil, &out); err != nil {
		return nil, err
	}
	if out.Result == nil {
		return nil, nil
	}
	return &checkin.Visitor{ID: out.Result.ID, DisplayName: out.Result.Name, QRPayload: out.Result.QRCode}, nil
}

// ActivitiesToday implements checkin.ActivitySource.
func (c *Client) ActivitiesToday(ctx context.Context) ([]checkin.Activity, error) {
	tok, err := c.bearer()
	if err != nil {
		return nil, err
	}
	var out struct {
		Activities []struct {
			ID       int64  `json:"id"`
			Name     string `json:"name"`
			Category string `json:"category"`
		} `json:"activities"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/activities/today", tok, nil, &out); err != nil {
		return nil, err
	}
	items := make([]checkin.Activity, 0, len(out.Activities))
	for _, a := range out.Activities {
		items = append(items, checkin.Activity{ID: a.ID, Name: a.Name, Category: a.Category, AvailableToday: true})
	}
	return items, nil
}

// CreateVisit implements checkin.VisitCreator.
func (c *Client) CreateVisit(ctx context.Context, visitorID, activityID int64) error {
	tok, err := c.bearer()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/v1/visits", tok, map[string]int64{
		"visitor_id":  visitorID,
		"activity_id": activityID,
	}, nil)
}

// kindFor maps a non-2xx status onto a call kind.
func kindFor(status int) checkin.CallKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return checkin.KindAuth
	case http.StatusNotFound:
		return checkin.KindNotFound
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return checkin.KindInvalid
	default:
		return checkin.KindTransport
	}
}

// do sends a JSON request and decodes a 2xx JSON answer into out (when
// non-nil).  Every error it returns is a *checkin.CallError.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &checkin.CallError{Kind: checkin.KindInvalid, Err: err}
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return &checkin.CallError{Kind: checkin.KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &checkin.CallError{Kind: checkin.KindTransport, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &checkin.CallError{Kind: checkin.KindTransport, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &checkin.CallError{Kind: kindFor(resp.StatusCode), Status: resp.StatusCode, Err: errors.New(errorText(raw, resp.StatusCode))}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &checkin.CallError{Kind: checkin.KindTransport, Status: resp.StatusCode, Err: fmt.Errorf("decode %s %s: %w", method, path, err)}
	}
	return nil
}

func errorText(raw []byte, status int) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return "http " + strconv.Itoa(status)
}
