// Package repository holds the SQL data access for organisations, admins,
// visitors, activities and visits.  Every query that touches visitor data
// is scoped by organisation id.
//
// The sentinel values below let handlers tell failure scenarios apart:
// ErrNotFound for rows that do not exist in the caller's organisation,
// ErrForbidden for rows owned by another organisation, and ErrConflict
// for writes blocked by dependent records (e.g. deleting an activity
// that already has visits).
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when no row matches within the caller's
// organisation.  Handlers translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller references a resource owned by
// another organisation.  Handlers translate it into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be performed
// because of conflicting state.  Handlers translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// isDuplicate reports whether err is a unique-key violation from MySQL
// (error 1062) or SQLite.
func isDuplicate(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "1062") || strings.Contains(s, "unique constraint")
}
