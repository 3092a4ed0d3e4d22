// Package scanner owns a video capture device and the QR decode loop that
// runs against it.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"sync"
	"time"
)

// DefaultScanPeriod is the pause between two decode attempts.
const DefaultScanPeriod = 5 * time.Millisecond

var (
	// ErrNoDevice is returned by Start when no capture device exists.
	ErrNoDevice = errors.New("scanner: no capture device available")
	// ErrDeviceLost is wrapped by frame sources whose device went away.
	ErrDeviceLost = errors.New("scanner: capture device lost")
	// ErrNoCode is returned by a Decoder when the frame holds no code.
	ErrNoCode = errors.New("scanner: no code in frame")
	// ErrListenerSet is returned by a second OnScan registration.
	ErrListenerSet = errors.New("scanner: scan listener already registered")
)

// Device is one capture device.
type Device interface {
	ID() string
	Label() string
	Open(ctx context.Context) (FrameSource, error)
}

// Camera enumerates capture devices.
type Camera interface {
	Devices(ctx context.Context) ([]Device, error)
}

// FrameSource yields the current frame of an open device.  A nil image
// with a nil error means no new frame is available yet.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Decoder extracts the text of a code from a frame.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// Options tune a Session.
type Options struct {
	ScanPeriod      time.Duration
	PreferredDevice string // device id or label; first device when empty or unmatched
	Logger          *log.Logger
}

// Session is a running capture device plus its decode loop.  It is
// created by Start and must be released with Stop on every exit path.
type Session struct {
	device Device
	src    FrameSource
	dec    Decoder
	period time.Duration
	logger *log.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	listener   func(payload string)
	lost       func(err error)
	suppressed bool
	stopped    bool
}

// Start enumerates devices, opens the preferred one and begins decoding.
// It fails with ErrNoDevice when there is nothing to open.  Enumeration
// and open errors are returned as is; nothing is retried.
func Start(ctx context.Context, cam Camera, dec Decoder, opts Options) (*Session, error) {
	devices, err := cam.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner: enumerate devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoDevice
	}
	dev := pickDevice(devices, opts.PreferredDevice)
	src, err := dev.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner: open %s: %w", dev.ID(), err)
	}

	period := opts.ScanPeriod
	if period <= 0 {
		period = DefaultScanPeriod
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		device: dev,
		src:    src,
		dec:    dec,
		period: period,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.loop(loopCtx)
	logger.Printf("scanner: started on %s (%s), period %s", dev.ID(), dev.Label(), period)
	return s, nil
}

func pickDevice(devices []Device, hint string) Device {
	if hint != "" {
		for _, d := range devices {
			if d.ID() == hint || d.Label() == hint {
				return d
			}
		}
	}
	return devices[0]
}

// Device returns the device the session holds.
func (s *Session) Device() Device { return s.device }

// OnScan registers the single scan listener.  The listener runs on the
// decode goroutine and must not call Stop synchronously.  After the
// first payload is delivered further scans are dropped until Reset.
func (s *Session) OnScan(fn func(payload string)) error {
	if fn == nil {
		return errors.New("scanner: nil scan listener")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrListenerSet
	}
	s.listener = fn
	return nil
}

// OnLost registers a listener called once if the device goes away.  It
// runs after the device has been released.
func (s *Session) OnLost(fn func(err error)) {
	s.mu.Lock()
	s.lost = fn
	s.mu.Unlock()
}

// Reset re-arms delivery after an accepted scan.
func (s *Session) Reset() {
	s.mu.Lock()
	s.suppressed = false
	s.mu.Unlock()
}

// Stop ends the decode loop and returns once the device is released.  It
// is safe to call any number of times.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) loop(ctx context.Context) {
	var lostErr error
	defer func() {
		if err := s.src.Close(); err != nil {
			s.logger.Printf("scanner: release %s: %v", s.device.ID(), err)
		}
		close(s.done)

		s.mu.Lock()
		fn := s.lost
		notify := lostErr != nil && !s.stopped
		s.mu.Unlock()
		if notify && fn != nil {
			fn(lostErr)
		}
	}()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.tick(ctx); err != nil {
			s.logger.Printf("scanner: %v", err)
			lostErr = err
			return
		}
	}
}

// tick runs one decode attempt.  Only device loss is returned; every
// other problem is logged and the loop carries on.
func (s *Session) tick(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("scanner: recovered from decode panic: %v", r)
		}
	}()

	s.mu.Lock()
	idle := s.suppressed || s.listener == nil
	s.mu.Unlock()
	if idle {
		return nil
	}

	img, err := s.src.Frame(ctx)
	if err != nil {
		if errors.Is(err, ErrDeviceLost) {
			return err
		}
		if ctx.Err() == nil {
			s.logger.Printf("scanner: read frame: %v", err)
		}
		return nil
	}
	if img == nil {
		return nil
	}
	payload, err := s.dec.Decode(img)
	if err != nil {
		if !errors.Is(err, ErrNoCode) {
			s.logger.Printf("scanner: decode: %v", err)
		}
		return nil
	}
	s.deliver(payload)
	return nil
}

func (s *Session) deliver(payload string) {
	s.mu.Lock()
	if s.suppressed || s.stopped || s.listener == nil {
		s.mu.Unlock()
		return
	}
	s.suppressed = true
	fn := s.listener
	s.mu.Unlock()
	fn(payload)
}
