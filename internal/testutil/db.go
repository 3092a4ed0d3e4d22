// Package testutil provides an in-memory SQLite database with the
// attendance schema for repository and handler tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/cbtwine/attendance/internal/database"
)

// NewDB opens a private in-memory database and migrates it.  The pool is
// pinned to one connection because every SQLite :memory: connection is a
// separate database.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(context.Background(), db, database.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func insert(t testing.TB, db *sql.DB, q string, args ...any) uint64 {
	t.Helper()
	res, err := db.Exec(q, args...)
	if err != nil {
		t.Fatalf("%s: %v", q, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return uint64(id)
}

// SeedOrg inserts an organisation with one active ADMIN and returns both
// ids.
func SeedOrg(t testing.TB, db *sql.DB, name, email, password string) (orgID, userID uint64) {
	t.Helper()
	now := time.Now().UTC()
	orgID = insert(t, db, "INSERT INTO organisations (name, created_at) VALUES (?,?)", name, now)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	userID = insert(t, db,
		"INSERT INTO users (organisation_id, email, password_hash, role, is_active, created_at, updated_at) VALUES (?,?,?,?,?,?,?)",
		orgID, email, string(hash), "ADMIN", true, now, now)
	return orgID, userID
}

// SeedVisitor inserts a visitor carrying qr and returns its id.
func SeedVisitor(t testing.TB, db *sql.DB, orgID uint64, name, qr string) uint64 {
	t.Helper()
	return insert(t, db,
		"INSERT INTO visitors (organisation_id, name, email_consent, qr_code, created_at) VALUES (?,?,?,?,?)",
		orgID, name, false, qr, time.Now().UTC())
}

// SeedActivity inserts an activity scheduled on days and returns its id.
func SeedActivity(t testing.TB, db *sql.DB, orgID uint64, name string, days ...time.Weekday) uint64 {
	t.Helper()
	var on [7]bool
	for _, d := range days {
		on[d] = true
	}
	return insert(t, db,
		`INSERT INTO activities (organisation_id, name, category, sunday, monday, tuesday, wednesday, thursday, friday, saturday, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		orgID, name, "", on[0], on[1], on[2], on[3], on[4], on[5], on[6], time.Now().UTC())
}

// CountVisits returns the number of stored visits.
func CountVisits(t testing.TB, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM visits").Scan(&n); err != nil {
		t.Fatalf("count visits: %v", err)
	}
	return n
}
