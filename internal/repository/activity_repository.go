package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cbtwine/attendance/internal/model"
)

// ActivityRepo manages an organisation's activities and their weekday
// schedule.
type ActivityRepo struct {
	db *sql.DB
}

func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

const activityColumns = "id, organisation_id, name, category, monday, tuesday, wednesday, thursday, friday, saturday, sunday, created_at"

func scanActivity(row rowScanner) (*model.Activity, error) {
	var a model.Activity
	err := row.Scan(&a.ID, &a.OrganisationID, &a.Name, &a.Category,
		&a.Monday, &a.Tuesday, &a.Wednesday, &a.Thursday, &a.Friday, &a.Saturday, &a.Sunday, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ActivityRepo) query(ctx context.Context, q string, args ...any) ([]model.Activity, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// List returns every activity of orgID ordered by id.
func (r *ActivityRepo) List(ctx context.Context, orgID uint64) ([]model.Activity, error) {
	return r.query(ctx, "SELECT "+activityColumns+" FROM activities WHERE organisation_id = ? ORDER BY id", orgID)
}

// ListForDay returns the activities of orgID scheduled on day, ordered by
// id.  An empty slice is a valid answer.
func (r *ActivityRepo) ListForDay(ctx context.Context, orgID uint64, day time.Weekday) ([]model.Activity, error) {
	// column names come from a fixed table, never from input
	col := model.Weekdays[day]
	return r.query(ctx, "SELECT "+activityColumns+" FROM activities WHERE organisation_id = ? AND "+col+" = ? ORDER BY id", orgID, true)
}

// GetByID fetches an activity of orgID.
func (r *ActivityRepo) GetByID(ctx context.Context, orgID, id uint64) (*model.Activity, error) {
	return scanActivity(r.db.QueryRowContext(ctx,
		"SELECT "+activityColumns+" FROM activities WHERE organisation_id = ? AND id = ?", orgID, id))
}

// Create inserts a and fills in ID and CreatedAt.
func (r *ActivityRepo) Create(ctx context.Context, a *model.Activity) error {
	a.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO activities (organisation_id, name, category, monday, tuesday, wednesday, thursday, friday, saturday, sunday, created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)",
		a.OrganisationID, a.Name, a.Category, a.Monday, a.Tuesday, a.Wednesday, a.Thursday, a.Friday, a.Saturday, a.Sunday, a.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// SetDay schedules or unschedules the activity on day and returns the
// updated row.
func (r *ActivityRepo) SetDay(ctx context.Context, orgID, id uint64, day time.Weekday, on bool) (*model.Activity, error) {
	col := model.Weekdays[day]
	if _, err := r.db.ExecContext(ctx,
		"UPDATE activities SET "+col+" = ? WHERE organisation_id = ? AND id = ?", on, orgID, id); err != nil {
		return nil, err
	}
	// RowsAffected is 0 on MySQL for no-op updates; the read decides 404
	return r.GetByID(ctx, orgID, id)
}

// Delete removes an activity that has no visits.  Activities with visits
// yield ErrConflict.
func (r *ActivityRepo) Delete(ctx context.Context, orgID, id uint64) error {
	if _, err := r.GetByID(ctx, orgID, id); err != nil {
		return err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM visits WHERE activity_id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	_, err := r.db.ExecContext(ctx, "DELETE FROM activities WHERE organisation_id = ? AND id = ?", orgID, id)
	return err
}
