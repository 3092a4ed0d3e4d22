package model

import "time"

// Visit links a visitor to an activity at the time the kiosk recorded it.
// Rows are written once and never updated.
//
// Fields:
//  ID         – primary key identifier.
//  VisitorID  – visitor who checked in.
//  ActivityID – activity chosen at the kiosk.
//  CreatedAt  – server-assigned timestamp (UTC).
type Visit struct {
    ID         uint64    `json:"id"`
    VisitorID  uint64    `json:"visitor_id"`
    ActivityID uint64    `json:"activity_id"`
    CreatedAt  time.Time `json:"created_at"`
}

// VisitDetail is a visit joined with the activity name for listings.
type VisitDetail struct {
    Visit
    ActivityName string `json:"activity_name"`
}
