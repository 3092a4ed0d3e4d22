package checkin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

// Deps are the collaborators of a Machine.  Scanner, Visitors, Activities
// and Visits are required.
type Deps struct {
	Scanner    ScannerFactory
	Visitors   VisitorFinder
	Activities ActivitySource
	Visits     VisitCreator
	Navigator  Navigator
	Logger     *log.Logger
}

// Snapshot is what the kiosk UI renders.  Activities is only set while
// the visitor can choose, i.e. once a visitor is resolved and the catalog
// has loaded; it is an empty, non-nil slice when nothing runs today.
type Snapshot struct {
	Phase         Phase       `json:"phase"`
	Visitor       *Visitor    `json:"visitor,omitempty"`
	ActivityID    int64       `json:"activity_id,omitempty"`
	Reason        Reason      `json:"reason,omitempty"`
	Message       string      `json:"message,omitempty"`
	SelectionOpen bool        `json:"selection_open"`
	Activities    []Activity  `json:"activities"`
	Redirect      Destination `json:"redirect,omitempty"`
}

// Machine drives one check-in session from camera acquisition to
// Completed or Failed.  It is created per session and never reused:
// recovering from Failed means closing it and building a new one.
//
// Every asynchronous result is applied under mu and only when the epoch
// it was started under is still current; Close bumps the epoch so late
// results after teardown are dropped.
type Machine struct {
	newScanner ScannerFactory
	catalog    *Catalog
	resolver   *Resolver
	recorder   *Recorder
	nav        Navigator
	logger     *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	mu             sync.Mutex
	state          State
	failure        *Failure
	redirect       Destination
	epoch          uint64
	started        bool
	closed         bool
	scanner        Scanner
	scannerStopped bool
}

// New builds a session in PhaseAwaitingScan.  Nothing is acquired until
// Start.
func New(deps Deps) (*Machine, error) {
	if deps.Scanner == nil || deps.Visitors == nil || deps.Activities == nil || deps.Visits == nil {
		return nil, errors.New("checkin: scanner, visitors, activities and visits are required")
	}
	nav := deps.Navigator
	if nav == nil {
		nav = NavigatorFunc(func(Destination, Reason) {})
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Machine{
		newScanner: deps.Scanner,
		catalog:    NewCatalog(deps.Activities),
		resolver:   NewResolver(deps.Visitors),
		recorder:   NewRecorder(deps.Visits),
		nav:        nav,
		logger:     logger,
		done:       make(chan struct{}),
		state:      State{Phase: PhaseAwaitingScan},
	}, nil
}

// Start fetches the catalog in the background and acquires the scanner.
// The two are not ordered relative to each other.  Start returns once
// the scanner is running or the session has failed; failures are
// reported through the state, not the returned error, which is reserved
// for misuse.  ctx bounds the whole session; Close cancels it.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	epoch := m.epoch
	// One for the catalog goroutine, one for acquisition: Close must not
	// return while a device opened here is neither handed over nor
	// stopped.
	m.wg.Add(2)
	m.mu.Unlock()

	go m.loadCatalog(epoch)
	defer m.wg.Done()

	sc, err := m.newScanner(m.ctx)
	if err != nil {
		m.fail(epoch, &Failure{Reason: ReasonNoDevice, Dest: DestScanError, Err: err})
		return nil
	}

	m.mu.Lock()
	if m.epoch != epoch || m.state.Phase.Terminal() {
		// Torn down or already failed while the camera was starting.
		m.mu.Unlock()
		if err := sc.Stop(context.Background()); err != nil {
			m.logger.Printf("checkin: release scanner: %v", err)
		}
		return nil
	}
	m.scanner = sc
	m.mu.Unlock()

	sc.OnLost(func(err error) {
		m.failIn(epoch, PhaseAwaitingScan, &Failure{Reason: ReasonDeviceLost, Dest: DestScanError, Err: err})
	})
	if err := sc.OnScan(func(payload string) { m.handleScan(epoch, payload) }); err != nil {
		m.fail(epoch, &Failure{Reason: ReasonNoDevice, Dest: DestScanError, Err: err})
	}
	return nil
}

func (m *Machine) loadCatalog(epoch uint64) {
	defer m.wg.Done()
	if _, err := m.catalog.Fetch(m.ctx); err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = classifyCatalogErr(err)
		}
		m.fail(epoch, f)
		return
	}
	m.logger.Printf("checkin: catalog loaded (%d activities)", len(m.catalog.Activities()))
}

// handleScan honours the first payload only.  The transition out of
// AwaitingScan happens under the lock, so a second decode racing the
// first finds the session already Resolving and is dropped.
func (m *Machine) handleScan(epoch uint64, payload string) {
	m.mu.Lock()
	if m.epoch != epoch || m.state.Phase != PhaseAwaitingScan {
		m.mu.Unlock()
		return
	}
	m.state = State{Phase: PhaseResolving, Payload: payload}
	m.wg.Add(1)
	m.mu.Unlock()

	go m.resolve(epoch, payload)
}

func (m *Machine) resolve(epoch uint64, payload string) {
	defer m.wg.Done()

	m.stopScanner()

	v, err := m.resolver.Resolve(m.ctx, payload)
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = &Failure{Reason: ReasonResolverTransport, Dest: DestScanError, Err: err}
		}
		m.failIn(epoch, PhaseResolving, f)
		return
	}

	m.mu.Lock()
	if m.epoch != epoch || m.state.Phase != PhaseResolving {
		m.mu.Unlock()
		return
	}
	m.state = State{Phase: PhaseScanned, Payload: payload, Visitor: &v}
	m.mu.Unlock()
	m.logger.Printf("checkin: visitor %d resolved", v.ID)
}

// SelectActivity records a visit for the resolved visitor.  It blocks
// until the submission settles and returns the resulting state.  The
// remote call runs under the session context, so Close aborts it.
//
// An id missing from the catalog fails the session with
// ReasonUnknownActivity without contacting the server.  Calling it in
// any phase but Scanned, or before the catalog has loaded, returns
// ErrSelectionUnavailable and changes nothing.
func (m *Machine) SelectActivity(activityID int64) (State, error) {
	m.mu.Lock()
	if m.closed {
		st := m.state
		m.mu.Unlock()
		return st, ErrClosed
	}
	if m.state.Phase != PhaseScanned || !m.catalog.Loaded() {
		st := m.state
		m.mu.Unlock()
		return st, ErrSelectionUnavailable
	}
	epoch := m.epoch
	visitor := *m.state.Visitor
	if _, ok := m.catalog.Lookup(activityID); !ok {
		m.mu.Unlock()
		m.failIn(epoch, PhaseScanned, &Failure{
			Reason: ReasonUnknownActivity,
			Dest:   DestUnknownError,
			Err:    fmt.Errorf("activity %d is not in today's catalog", activityID),
		})
		return m.State(), nil
	}
	m.state = State{Phase: PhaseSubmitting, Visitor: &visitor, ActivityID: activityID}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	if err := m.recorder.Record(m.ctx, visitor.ID, activityID); err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = &Failure{Reason: ReasonSubmissionTransport, Dest: DestServerError, Err: err}
		}
		m.failIn(epoch, PhaseSubmitting, f)
		return m.State(), nil
	}

	m.mu.Lock()
	if m.epoch != epoch || m.state.Phase != PhaseSubmitting {
		st := m.state
		m.mu.Unlock()
		return st, nil
	}
	m.state = State{Phase: PhaseCompleted, Visitor: &visitor, ActivityID: activityID}
	m.redirect = DestCompleted
	m.mu.Unlock()

	m.logger.Printf("checkin: visit recorded visitor=%d activity=%d", visitor.ID, activityID)
	m.nav.Navigate(DestCompleted, "")
	m.finish()
	return m.State(), nil
}

// fail moves any non-terminal state to Failed.
func (m *Machine) fail(epoch uint64, f *Failure) { m.failIn(epoch, "", f) }

// failIn moves the session to Failed when the epoch is current and, if
// want is set, the session is still in that phase.  Results that lost
// the race are dropped.
func (m *Machine) failIn(epoch uint64, want Phase, f *Failure) {
	m.mu.Lock()
	if m.epoch != epoch || m.state.Phase.Terminal() || (want != "" && m.state.Phase != want) {
		m.mu.Unlock()
		return
	}
	m.state = State{Phase: PhaseFailed, Reason: f.Reason, Visitor: m.state.Visitor}
	m.failure = f
	m.redirect = f.Dest
	m.mu.Unlock()

	m.logger.Printf("checkin: session failed: %v", f)
	m.stopScanner()
	m.nav.Navigate(f.Dest, f.Reason)
	m.finish()
}

// stopScanner releases the device at most once per session.
func (m *Machine) stopScanner() {
	m.mu.Lock()
	sc := m.scanner
	if sc == nil || m.scannerStopped {
		m.mu.Unlock()
		return
	}
	m.scannerStopped = true
	m.mu.Unlock()

	if err := sc.Stop(context.Background()); err != nil {
		m.logger.Printf("checkin: stop scanner: %v", err)
	}
}

func (m *Machine) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

// Close tears the session down: late results are discarded, pending
// calls are cancelled and the scanner is stopped unconditionally.  It
// waits for background work, including a camera still being acquired,
// until ctx expires.  A nil return means the device has been released.
// Close is idempotent; a repeated call waits again, so a Close that
// timed out can be retried.
func (m *Machine) Close(ctx context.Context) error {
	m.mu.Lock()
	first := !m.closed
	var cancel context.CancelFunc
	if first {
		m.closed = true
		m.epoch++
		cancel = m.cancel
	}
	m.mu.Unlock()

	if first {
		if cancel != nil {
			cancel()
		}
		m.stopScanner()
	}

	waited := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the session reaches Completed or Failed.
func (m *Machine) Done() <-chan struct{} { return m.done }

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyState()
}

// Err returns the classified failure, or nil.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure == nil {
		return nil
	}
	return m.failure
}

// Snapshot returns the view the kiosk UI renders.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	st := m.copyState()
	redirect := m.redirect
	m.mu.Unlock()

	snap := Snapshot{
		Phase:      st.Phase,
		Visitor:    st.Visitor,
		ActivityID: st.ActivityID,
		Reason:     st.Reason,
		Redirect:   redirect,
	}
	if st.Reason != "" {
		snap.Message = st.Reason.Message()
	}
	if st.Phase == PhaseScanned && m.catalog.Loaded() {
		snap.SelectionOpen = true
		snap.Activities = m.catalog.Activities()
	}
	return snap
}

func (m *Machine) copyState() State {
	st := m.state
	if st.Visitor != nil {
		v := *st.Visitor
		st.Visitor = &v
	}
	return st
}
