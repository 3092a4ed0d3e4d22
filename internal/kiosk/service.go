// Package kiosk owns the check-in sessions of one kiosk and serves the
// small local HTTP surface its browser UI polls.
package kiosk

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/cbtwine/attendance/internal/checkin"
)

var (
	// ErrNoSession is returned when no check-in session has been started.
	ErrNoSession = errors.New("no check-in session")
	// ErrSuperseded is returned to a Begin that lost the race against a
	// concurrent Begin or End.
	ErrSuperseded = errors.New("check-in session superseded")
	// ErrDeviceBusy is returned by Begin while a previous session has not
	// yet released the capture device.
	ErrDeviceBusy = errors.New("capture device still held by previous session")
)

// API is the remote side of the check-in flow.
type API interface {
	checkin.VisitorFinder
	checkin.ActivitySource
	checkin.VisitCreator
}

// Authenticator logs the kiosk in against the attendance API.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) error
}

// Credentials are the admin account the kiosk downgrades.
type Credentials struct {
	Email    string
	Password string
}

type Deps struct {
	Scanner checkin.ScannerFactory
	API     API
	Auth    Authenticator
	Creds   Credentials
	Logger  *log.Logger
	// Grace bounds how long replacing or closing a session waits for the
	// old one's pending calls.
	Grace time.Duration
}

// Service holds at most one check-in session, so exactly one owner of
// the capture device exists at any time.
type Service struct {
	deps   Deps
	logger *log.Logger
	base   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	current   *checkin.Machine
	releasing []*checkin.Machine // closed, but teardown timed out
	seq       uint64
	last      Navigation
}

// Navigation is the most recent redirect requested by a session.
type Navigation struct {
	Session uint64              `json:"session"`
	Dest    checkin.Destination `json:"destination"`
	Reason  checkin.Reason      `json:"reason,omitempty"`
	At      time.Time           `json:"at"`
}

func NewService(deps Deps) (*Service, error) {
	if deps.Scanner == nil || deps.API == nil {
		return nil, errors.New("kiosk: scanner and api are required")
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Grace <= 0 {
		deps.Grace = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{deps: deps, logger: deps.Logger, base: ctx, cancel: cancel}, nil
}

// navigator records the redirect for the UI, tagged with the session it
// came from so a stale session cannot overwrite a newer one's redirect.
func (s *Service) navigator(id uint64) checkin.Navigator {
	return checkin.NavigatorFunc(func(dest checkin.Destination, reason checkin.Reason) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if id != s.seq {
			return
		}
		s.last = Navigation{Session: id, Dest: dest, Reason: reason, At: time.Now().UTC()}
		s.logger.Printf("kiosk: session %d -> %s %s", id, dest, reason)
	})
}

// Begin tears down the current session, if any, and starts a new one.
// It returns the new session's id and first snapshot.  No new session is
// started until every earlier one has released the device.
func (s *Service) Begin(ctx context.Context) (uint64, checkin.Snapshot, error) {
	s.mu.Lock()
	old := s.current
	s.current = nil
	s.seq++
	id := s.seq
	s.last = Navigation{}
	s.mu.Unlock()

	if err := s.release(old); err != nil {
		return 0, checkin.Snapshot{}, err
	}

	m, err := checkin.New(checkin.Deps{
		Scanner:    s.deps.Scanner,
		Visitors:   s.deps.API,
		Activities: s.deps.API,
		Visits:     s.deps.API,
		Navigator:  s.navigator(id),
		Logger:     s.logger,
	})
	if err != nil {
		return 0, checkin.Snapshot{}, err
	}

	s.mu.Lock()
	if s.seq != id {
		s.mu.Unlock()
		return 0, checkin.Snapshot{}, ErrSuperseded
	}
	s.current = m
	s.mu.Unlock()

	// The session outlives the request that started it.
	if err := m.Start(s.base); err != nil {
		return 0, checkin.Snapshot{}, err
	}
	s.mu.Lock()
	superseded := s.seq != id
	s.mu.Unlock()
	if superseded {
		// replaced while the camera was starting
		return 0, checkin.Snapshot{}, ErrSuperseded
	}
	return id, m.Snapshot(), nil
}

// release closes m together with any session whose earlier teardown timed
// out.  Sessions that still hold the device are kept for the next call
// and ErrDeviceBusy is returned.
func (s *Service) release(m *checkin.Machine) error {
	s.mu.Lock()
	pending := s.releasing
	s.releasing = nil
	s.mu.Unlock()
	if m != nil {
		pending = append(pending, m)
	}

	var held []*checkin.Machine
	for _, p := range pending {
		if err := s.closeMachine(p); err != nil {
			held = append(held, p)
		}
	}
	if len(held) == 0 {
		return nil
	}
	s.mu.Lock()
	s.releasing = append(s.releasing, held...)
	s.mu.Unlock()
	return ErrDeviceBusy
}

func (s *Service) closeMachine(m *checkin.Machine) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.Grace)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		s.logger.Printf("kiosk: close session: %v", err)
		return err
	}
	return nil
}

func (s *Service) machine() (*checkin.Machine, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, 0, ErrNoSession
	}
	return s.current, s.seq, nil
}

// Current returns the snapshot of the running session.
func (s *Service) Current() (uint64, checkin.Snapshot, error) {
	m, id, err := s.machine()
	if err != nil {
		return 0, checkin.Snapshot{}, err
	}
	return id, m.Snapshot(), nil
}

// Select forwards the visitor's choice to the running session.
func (s *Service) Select(activityID int64) (uint64, checkin.Snapshot, error) {
	m, id, err := s.machine()
	if err != nil {
		return 0, checkin.Snapshot{}, err
	}
	if _, err := m.SelectActivity(activityID); err != nil {
		return id, m.Snapshot(), err
	}
	return id, m.Snapshot(), nil
}

// End tears down the running session.  Ending when none runs is a no-op.
func (s *Service) End() {
	s.mu.Lock()
	m := s.current
	s.current = nil
	s.seq++
	s.mu.Unlock()
	if err := s.release(m); err != nil {
		s.logger.Printf("kiosk: end: %v", err)
	}
}

// LastNavigation returns the latest redirect of the current session.
func (s *Service) LastNavigation() Navigation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Login re-authenticates with the configured admin account, or with the
// given one when email is set.
func (s *Service) Login(ctx context.Context, email, password string) error {
	if s.deps.Auth == nil {
		return errors.New("kiosk: no authenticator configured")
	}
	if email == "" {
		email, password = s.deps.Creds.Email, s.deps.Creds.Password
	}
	return s.deps.Auth.Authenticate(ctx, email, password)
}

// Shutdown ends the running session and cancels everything started from
// the service.
func (s *Service) Shutdown() {
	s.End()
	s.cancel()
}
