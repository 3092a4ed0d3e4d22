package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cbtwine/attendance/internal/model"
)

// VisitorRepo encapsulates queries on the visitors table.  All reads are
// scoped to one organisation.
type VisitorRepo struct {
	db *sql.DB
}

func NewVisitorRepo(db *sql.DB) *VisitorRepo { return &VisitorRepo{db: db} }

// ErrQRCodeExists is returned by Create when the QR payload is already
// assigned to someone.
var ErrQRCodeExists = errors.New("qr code already assigned")

const visitorColumns = "id, organisation_id, name, email, phone_number, gender, birth_year, email_consent, qr_code, created_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanVisitor(row rowScanner) (*model.Visitor, error) {
	var (
		v         model.Visitor
		email     sql.NullString
		phone     sql.NullString
		gender    sql.NullString
		birthYear sql.NullInt64
	)
	if err := row.Scan(&v.ID, &v.OrganisationID, &v.Name, &email, &phone, &gender, &birthYear, &v.EmailConsent, &v.QRCode, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if email.Valid {
		v.Email = &email.String
	}
	if phone.Valid {
		v.Phone = &phone.String
	}
	if gender.Valid {
		v.Gender = &gender.String
	}
	if birthYear.Valid {
		y := int(birthYear.Int64)
		v.BirthYear = &y
	}
	return &v, nil
}

// FindByQRCode returns the visitor of orgID whose card carries qr.  A
// payload belonging to another organisation is reported as ErrNotFound.
func (r *VisitorRepo) FindByQRCode(ctx context.Context, orgID uint64, qr string) (*model.Visitor, error) {
	qr = strings.TrimSpace(qr)
	if qr == "" {
		return nil, ErrNotFound
	}
	return scanVisitor(r.db.QueryRowContext(ctx,
		"SELECT "+visitorColumns+" FROM visitors WHERE organisation_id = ? AND qr_code = ? LIMIT 1", orgID, qr))
}

// GetByID fetches a visitor of orgID.
func (r *VisitorRepo) GetByID(ctx context.Context, orgID, id uint64) (*model.Visitor, error) {
	return scanVisitor(r.db.QueryRowContext(ctx,
		"SELECT "+visitorColumns+" FROM visitors WHERE organisation_id = ? AND id = ?", orgID, id))
}

// List returns the visitors of orgID ordered by name.
func (r *VisitorRepo) List(ctx context.Context, orgID uint64) ([]model.Visitor, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+visitorColumns+" FROM visitors WHERE organisation_id = ? ORDER BY name, id", orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Visitor{}
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// Create inserts v and fills in ID and CreatedAt.  The caller supplies
// the QR payload.
func (r *VisitorRepo) Create(ctx context.Context, v *model.Visitor) error {
	v.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO visitors (organisation_id, name, email, phone_number, gender, birth_year, email_consent, qr_code, created_at) VALUES (?,?,?,?,?,?,?,?,?)",
		v.OrganisationID, v.Name, nullString(v.Email), nullString(v.Phone), nullString(v.Gender), nullInt(v.BirthYear), v.EmailConsent, v.QRCode, v.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrQRCodeExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	return nil
}

// ListVisits returns the visitor's visits, newest first, joined with the
// activity name.
func (r *VisitorRepo) ListVisits(ctx context.Context, orgID, visitorID uint64) ([]model.VisitDetail, error) {
	const q = `SELECT v.id, v.visitor_id, v.activity_id, v.created_at, a.name
		FROM visits v
		JOIN visitors p ON p.id = v.visitor_id
		JOIN activities a ON a.id = v.activity_id
		WHERE p.organisation_id = ? AND v.visitor_id = ?
		ORDER BY v.created_at DESC, v.id DESC`
	rows, err := r.db.QueryContext(ctx, q, orgID, visitorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.VisitDetail{}
	for rows.Next() {
		var d model.VisitDetail
		if err := rows.Scan(&d.ID, &d.VisitorID, &d.ActivityID, &d.CreatedAt, &d.ActivityName); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
