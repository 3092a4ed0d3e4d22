package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cbtwine/attendance/internal/model"
)

// VisitRepo writes attendance records.  Visits are insert-only.
type VisitRepo struct {
	db *sql.DB
}

func NewVisitRepo(db *sql.DB) *VisitRepo { return &VisitRepo{db: db} }

// Create records that visitorID attended activityID at the current server
// time.  Both must belong to orgID: a missing visitor or activity yields
// ErrNotFound and one owned by another organisation ErrForbidden.
func (r *VisitRepo) Create(ctx context.Context, orgID, visitorID, activityID uint64) (model.Visit, error) {
	if err := r.owned(ctx, "visitors", orgID, visitorID); err != nil {
		return model.Visit{}, err
	}
	if err := r.owned(ctx, "activities", orgID, activityID); err != nil {
		return model.Visit{}, err
	}
	v := model.Visit{VisitorID: visitorID, ActivityID: activityID, CreatedAt: time.Now().UTC()}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO visits (visitor_id, activity_id, created_at) VALUES (?,?,?)",
		v.VisitorID, v.ActivityID, v.CreatedAt)
	if err != nil {
		return model.Visit{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Visit{}, err
	}
	v.ID = uint64(id)
	return v, nil
}

// owned checks the organisation of a row in table (a fixed name).
func (r *VisitRepo) owned(ctx context.Context, table string, orgID, id uint64) error {
	var owner uint64
	err := r.db.QueryRowContext(ctx, "SELECT organisation_id FROM "+table+" WHERE id = ?", id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != orgID {
		return ErrForbidden
	}
	return nil
}
