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

// OrganisationRepo creates community businesses and looks them up.
type OrganisationRepo struct{ DB *sql.DB }

func NewOrganisationRepo(db *sql.DB) *OrganisationRepo { return &OrganisationRepo{DB: db} }

// Register creates an organisation together with its first ADMIN in one
// transaction.  ErrEmailExists leaves nothing behind.
func (r *OrganisationRepo) Register(ctx context.Context, name, email, password string, cost int) (orgID, userID uint64, err error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, 0, err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO organisations (name, created_at) VALUES (?,?)", name, time.Now().UTC())
	if err != nil {
		return 0, 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, 0, err
	}
	orgID = uint64(id)
	if userID, err = insertUser(ctx, tx, orgID, email, hash, model.RoleAdmin); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return orgID, userID, nil
}

// GetByID returns ErrNotFound when the organisation does not exist.
func (r *OrganisationRepo) GetByID(ctx context.Context, id uint64) (model.Organisation, error) {
	var o model.Organisation
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM organisations WHERE id=?", id).
		Scan(&o.ID, &o.Name, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}
