package model

import "time"

// Activity is something an organisation runs on given weekdays.  A
// visitor checking in picks one of the activities flagged for today.
type Activity struct {
    ID             uint64    `json:"id"`
    OrganisationID uint64    `json:"-"`
    Name           string    `json:"name"`
    Category       string    `json:"category"`
    Monday         bool      `json:"monday"`
    Tuesday        bool      `json:"tuesday"`
    Wednesday      bool      `json:"wednesday"`
    Thursday       bool      `json:"thursday"`
    Friday         bool      `json:"friday"`
    Saturday       bool      `json:"saturday"`
    Sunday         bool      `json:"sunday"`
    CreatedAt      time.Time `json:"created_at"`
}

// Weekdays lists the day column names in time.Weekday order.
var Weekdays = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// RunsOn reports whether the activity is scheduled on d.
func (a Activity) RunsOn(d time.Weekday) bool {
    switch d {
    case time.Monday:
        return a.Monday
    case time.Tuesday:
        return a.Tuesday
    case time.Wednesday:
        return a.Wednesday
    case time.Thursday:
        return a.Thursday
    case time.Friday:
        return a.Friday
    case time.Saturday:
        return a.Saturday
    default:
        return a.Sunday
    }
}
