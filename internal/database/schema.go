package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialect selects the DDL flavour used by Migrate.
type Dialect int

const (
	MySQL Dialect = iota
	SQLite
)

// Tables are created in dependency order.  {{ID}} is replaced with the
// dialect's auto-increment primary key.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS organisations (
		id {{ID}},
		name VARCHAR(191) NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id {{ID}},
		organisation_id BIGINT NOT NULL REFERENCES organisations(id),
		email VARCHAR(191) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id {{ID}},
		user_id BIGINT NOT NULL REFERENCES users(id),
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS visitors (
		id {{ID}},
		organisation_id BIGINT NOT NULL REFERENCES organisations(id),
		name VARCHAR(191) NOT NULL,
		email VARCHAR(191) NULL,
		phone_number VARCHAR(32) NULL,
		gender VARCHAR(32) NULL,
		birth_year INT NULL,
		email_consent BOOLEAN NOT NULL DEFAULT FALSE,
		qr_code VARCHAR(64) NOT NULL UNIQUE,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id {{ID}},
		organisation_id BIGINT NOT NULL REFERENCES organisations(id),
		name VARCHAR(191) NOT NULL,
		category VARCHAR(64) NOT NULL DEFAULT '',
		monday BOOLEAN NOT NULL DEFAULT FALSE,
		tuesday BOOLEAN NOT NULL DEFAULT FALSE,
		wednesday BOOLEAN NOT NULL DEFAULT FALSE,
		thursday BOOLEAN NOT NULL DEFAULT FALSE,
		friday BOOLEAN NOT NULL DEFAULT FALSE,
		saturday BOOLEAN NOT NULL DEFAULT FALSE,
		sunday BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS visits (
		id {{ID}},
		visitor_id BIGINT NOT NULL REFERENCES visitors(id),
		activity_id BIGINT NOT NULL REFERENCES activities(id),
		created_at DATETIME NOT NULL
	)`,
}

// Migrate creates any missing tables.  Statements run one at a time so the
// MySQL DSN does not need multiStatements.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	id := "BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY"
	if d == SQLite {
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	for _, stmt := range schema {
		stmt = strings.ReplaceAll(stmt, "{{ID}}", id)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
