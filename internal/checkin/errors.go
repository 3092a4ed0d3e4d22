package checkin

import (
	"errors"
	"fmt"
)

var (
	// ErrSelectionUnavailable is returned by SelectActivity when the
	// session is not offering a choice (no visitor yet, catalog still
	// loading, or a submission already under way).
	ErrSelectionUnavailable = errors.New("activity selection is not available")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("check-in session already started")
	// ErrClosed is returned when a torn down session is started.
	ErrClosed = errors.New("check-in session closed")
)

// Reason tags why a session failed.
type Reason string

const (
	ReasonNoDevice            Reason = "NO_DEVICE"
	ReasonDeviceLost          Reason = "DEVICE_LOST"
	ReasonScanNotFound        Reason = "SCAN_NOT_FOUND"
	ReasonResolverTransport   Reason = "RESOLVER_TRANSPORT"
	ReasonCatalogAuth         Reason = "CATALOG_AUTH"
	ReasonCatalogTransport    Reason = "CATALOG_TRANSPORT"
	ReasonUnknownActivity     Reason = "UNKNOWN_ACTIVITY"
	ReasonSubmissionRejected  Reason = "SUBMISSION_REJECTED"
	ReasonSubmissionTransport Reason = "SUBMISSION_TRANSPORT"
)

// Message is the text shown to the visitor for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonNoDevice, ReasonDeviceLost:
		return "cannot access camera"
	case ReasonScanNotFound:
		return "code not recognised"
	case ReasonCatalogAuth:
		return "please log in again"
	case ReasonUnknownActivity:
		return "activity not recognised"
	default:
		return "something went wrong"
	}
}

// Destination is a named page the kiosk UI can be sent to.
type Destination string

const (
	DestLogin        Destination = "/cb/login"
	DestScanError    Destination = "/visitor/qrerror"
	DestServerError  Destination = "/error/500"
	DestNotFound     Destination = "/error/404"
	DestUnknownError Destination = "/error/unknown"
	DestCompleted    Destination = "/visitor/end"
)

// Failure is the classified error a session ends with.  Raw collaborator
// errors are kept in Err and never returned unwrapped.
type Failure struct {
	Reason Reason
	Dest   Destination
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// CallKind classifies a failed remote call.
type CallKind int

const (
	KindTransport CallKind = iota
	KindAuth
	KindNotFound
	KindInvalid
)

func (k CallKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	default:
		return "transport"
	}
}

// CallError is what remote collaborators return so that status codes are
// interpreted once, where the response is read.
type CallError struct {
	Kind   CallKind
	Status int
	Err    error
}

func (e *CallError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s error (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// kindOf classifies any collaborator error.  Errors that are not a
// *CallError count as transport faults.
func kindOf(err error) CallKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransport
}
