package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cbtwine/attendance/internal/model"
	"github.com/cbtwine/attendance/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

const userColumns = "id,organisation_id,email,password_hash,role,is_active,created_at,updated_at"

// Create hashes password and inserts an admin of orgID.  It returns the
// new user's ID.
func (r *UserRepo) Create(ctx context.Context, orgID uint64, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	return insertUser(ctx, r.DB, orgID, email, hash, role)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertUser(ctx context.Context, db execer, orgID uint64, email, hash, role string) (uint64, error) {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx,
		"INSERT INTO users (organisation_id, email, password_hash, role, is_active, created_at, updated_at) VALUES (?,?,?,?,?,?,?)",
		orgID, email, hash, role, true, now, now)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.OrganisationID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}
