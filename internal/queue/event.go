// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

// VisitQueue is the durable queue visit events are published to.
const VisitQueue = "visit.recorded"

// VisitRecordedEvent is published after a kiosk check-in has been stored.
// It carries enough for the audit log without a database round trip.
type VisitRecordedEvent struct {
    VisitID        uint64 `json:"visit_id"`
    OrganisationID uint64 `json:"organisation_id"`
    VisitorID      uint64 `json:"visitor_id"`
    VisitorName    string `json:"visitor_name"`
    ActivityID     uint64 `json:"activity_id"`
    ActivityName   string `json:"activity_name"`
    RecordedBy     uint64 `json:"recorded_by"` // admin whose (possibly downgraded) token was used
    Role           string `json:"role"`
    RecordedAt     string `json:"recorded_at"` // RFC 3339, UTC
}
