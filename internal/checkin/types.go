// Package checkin implements the visitor check-in flow that runs on a
// kiosk: acquire the camera, resolve the scanned visitor, offer today's
// activities and record the chosen visit.
package checkin

import "context"

// Visitor is the identity a scan payload resolves to.  It is immutable
// once resolved and lives only as long as the session that resolved it.
type Visitor struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	QRPayload   string `json:"qr_payload"`
}

// Activity is one entry of the day's catalog.
type Activity struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Category       string `json:"category,omitempty"`
	AvailableToday bool   `json:"available_today"`
}

// Phase names the variant a State currently holds.
type Phase string

const (
	PhaseAwaitingScan Phase = "AWAITING_SCAN"
	PhaseResolving    Phase = "RESOLVING"
	PhaseScanned      Phase = "SCANNED"
	PhaseSubmitting   Phase = "SUBMITTING"
	PhaseCompleted    Phase = "COMPLETED"
	PhaseFailed       Phase = "FAILED"
)

// Terminal reports whether no further transition can leave the phase.
func (p Phase) Terminal() bool { return p == PhaseCompleted || p == PhaseFailed }

// State is the tagged session state.  Only the fields relevant to Phase
// are set:
//
//	Resolving  – Payload
//	Scanned    – Payload, Visitor
//	Submitting – Visitor, ActivityID
//	Completed  – Visitor, ActivityID
//	Failed     – Reason (Visitor when one had been resolved)
type State struct {
	Phase      Phase
	Payload    string
	Visitor    *Visitor
	ActivityID int64
	Reason     Reason
}

// Scanner is a running camera/scanner session.  *scanner.Session
// satisfies it.
type Scanner interface {
	OnScan(fn func(payload string)) error
	OnLost(fn func(err error))
	Stop(ctx context.Context) error
}

// ScannerFactory acquires a capture device and starts decoding.  It is
// called once per session.
type ScannerFactory func(ctx context.Context) (Scanner, error)

// VisitorFinder looks a visitor up by the decoded QR payload.  A nil
// visitor with a nil error means no visitor carries that code.
type VisitorFinder interface {
	FindVisitorByQR(ctx context.Context, payload string) (*Visitor, error)
}

// ActivitySource lists the activities running today for the kiosk's
// organisation, in display order.
type ActivitySource interface {
	ActivitiesToday(ctx context.Context) ([]Activity, error)
}

// VisitCreator persists a visit.  The server assigns the timestamp.
type VisitCreator interface {
	CreateVisit(ctx context.Context, visitorID, activityID int64) error
}

// Navigator redirects the kiosk UI.  reason is empty on success.
type Navigator interface {
	Navigate(dest Destination, reason Reason)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(dest Destination, reason Reason)

func (f NavigatorFunc) Navigate(dest Destination, reason Reason) { f(dest, reason) }
