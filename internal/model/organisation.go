package model

import "time"

// Organisation is a community business.  Every admin, visitor, activity
// and visit belongs to exactly one organisation and all queries are
// scoped by its ID.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name of the business.
//  CreatedAt – creation timestamp.
type Organisation struct {
    ID        uint64    // organisations.id
    Name      string    // organisations.name
    CreatedAt time.Time // organisations.created_at
}
