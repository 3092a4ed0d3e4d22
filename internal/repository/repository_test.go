package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cbtwine/attendance/internal/model"
	"github.com/cbtwine/attendance/internal/repository"
	"github.com/cbtwine/attendance/internal/testutil"
	"github.com/cbtwine/attendance/internal/utils"
)

func TestRegisterOrganisation(t *testing.T) {
	db := testutil.NewDB(t)
	orgs := repository.NewOrganisationRepo(db)
	users := repository.NewUserRepo(db)
	ctx := context.Background()

	orgID, uid, err := orgs.Register(ctx, " Riverside CB ", "Admin@CB.test ", "secret123", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	o, err := orgs.GetByID(ctx, orgID)
	if err != nil || o.Name != "Riverside CB" {
		t.Fatalf("GetByID() = %+v, %v", o, err)
	}
	u, err := users.GetByEmail(ctx, "admin@cb.test")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if u.ID != uid || u.OrganisationID != orgID || u.Role != model.RoleAdmin || !u.IsActive {
		t.Fatalf("user = %+v", u)
	}
	if !utils.VerifyPassword(u.PasswordHash, "secret123") {
		t.Fatal("stored hash does not verify")
	}

	if _, _, err := orgs.Register(ctx, "Other", "admin@cb.test", "secret123", bcrypt.MinCost); !errors.Is(err, repository.ErrEmailExists) {
		t.Fatalf("Register(duplicate) error = %v, want ErrEmailExists", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM organisations").Scan(&n); err != nil || n != 1 {
		t.Fatalf("organisations = %d, %v; want 1 after rolled back duplicate", n, err)
	}

	if _, _, err := orgs.Register(ctx, "Short", "short@cb.test", "abc", bcrypt.MinCost); !errors.Is(err, utils.ErrPasswordTooShort) {
		t.Fatalf("Register(short password) error = %v", err)
	}
	if _, err := users.GetByEmail(ctx, "nobody@cb.test"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("GetByEmail(unknown) error = %v", err)
	}
}

func TestRefreshTokens(t *testing.T) {
	db := testutil.NewDB(t)
	_, uid := testutil.SeedOrg(t, db, "CB", "a@cb.test", "secret123")
	tokens := repository.NewTokenRepo(db)
	ctx := context.Background()

	if err := tokens.StoreRefresh(ctx, uid, "live", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("StoreRefresh() error = %v", err)
	}
	if err := tokens.StoreRefresh(ctx, uid, "expired", time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("StoreRefresh() error = %v", err)
	}
	if got, err := tokens.ValidateRefresh(ctx, "live"); err != nil || got != uid {
		t.Fatalf("ValidateRefresh(live) = %d, %v", got, err)
	}
	if _, err := tokens.ValidateRefresh(ctx, "expired"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("ValidateRefresh(expired) error = %v", err)
	}
	if err := tokens.RevokeByHash(ctx, "live"); err != nil {
		t.Fatalf("RevokeByHash() error = %v", err)
	}
	if _, err := tokens.ValidateRefresh(ctx, "live"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("ValidateRefresh(revoked) error = %v", err)
	}
}

func TestVisitorLookupIsScopedByOrganisation(t *testing.T) {
	db := testutil.NewDB(t)
	orgA, _ := testutil.SeedOrg(t, db, "A", "a@cb.test", "secret123")
	orgB, _ := testutil.SeedOrg(t, db, "B", "b@cb.test", "secret123")
	id := testutil.SeedVisitor(t, db, orgA, "Sam", "QR123")
	visitors := repository.NewVisitorRepo(db)
	ctx := context.Background()

	v, err := visitors.FindByQRCode(ctx, orgA, " QR123 ")
	if err != nil || v.ID != id || v.Name != "Sam" || v.Email != nil {
		t.Fatalf("FindByQRCode() = %+v, %v", v, err)
	}
	if _, err := visitors.FindByQRCode(ctx, orgB, "QR123"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("FindByQRCode(other org) error = %v", err)
	}
	if _, err := visitors.FindByQRCode(ctx, orgA, ""); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("FindByQRCode(empty) error = %v", err)
	}
	if _, err := visitors.GetByID(ctx, orgB, id); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("GetByID(other org) error = %v", err)
	}
}

func TestCreateVisitorKeepsOptionalFields(t *testing.T) {
	db := testutil.NewDB(t)
	org, _ := testutil.SeedOrg(t, db, "A", "a@cb.test", "secret123")
	visitors := repository.NewVisitorRepo(db)
	ctx := context.Background()

	email, year := "sam@example.org", 1990
	v := &model.Visitor{OrganisationID: org, Name: "Sam", Email: &email, BirthYear: &year, EmailConsent: true, QRCode: "abc"}
	if err := visitors.Create(ctx, v); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := visitors.GetByID(ctx, org, v.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Email == nil || *got.Email != email || got.BirthYear == nil || *got.BirthYear != year || !got.EmailConsent || got.Phone != nil {
		t.Fatalf("GetByID() = %+v", got)
	}
	dup := &model.Visitor{OrganisationID: org, Name: "Other", QRCode: "abc"}
	if err := visitors.Create(ctx, dup); !errors.Is(err, repository.ErrQRCodeExists) {
		t.Fatalf("Create(duplicate qr) error = %v", err)
	}
}

func TestActivitiesByWeekday(t *testing.T) {
	db := testutil.NewDB(t)
	org, _ := testutil.SeedOrg(t, db, "A", "a@cb.test", "secret123")
	other, _ := testutil.SeedOrg(t, db, "B", "b@cb.test", "secret123")
	football := testutil.SeedActivity(t, db, org, "Football", time.Monday, time.Wednesday)
	art := testutil.SeedActivity(t, db, org, "Art", time.Monday)
	testutil.SeedActivity(t, db, org, "Choir", time.Friday)
	testutil.SeedActivity(t, db, other, "Chess", time.Monday)
	acts := repository.NewActivityRepo(db)
	ctx := context.Background()

	got, err := acts.ListForDay(ctx, org, time.Monday)
	if err != nil {
		t.Fatalf("ListForDay() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != football || got[1].ID != art {
		t.Fatalf("ListForDay(monday) = %+v", got)
	}
	if got, _ := acts.ListForDay(ctx, org, time.Sunday); got == nil || len(got) != 0 {
		t.Fatalf("ListForDay(sunday) = %#v, want empty slice", got)
	}

	a, err := acts.SetDay(ctx, org, art, time.Sunday, true)
	if err != nil || !a.Sunday || !a.Monday {
		t.Fatalf("SetDay() = %+v, %v", a, err)
	}
	if _, err := acts.SetDay(ctx, other, art, time.Sunday, false); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("SetDay(other org) error = %v", err)
	}
	if got, _ := acts.GetByID(ctx, org, art); !got.Sunday {
		t.Fatal("SetDay from another organisation changed the row")
	}
}

func TestVisitsAndActivityDeletion(t *testing.T) {
	db := testutil.NewDB(t)
	org, _ := testutil.SeedOrg(t, db, "A", "a@cb.test", "secret123")
	other, _ := testutil.SeedOrg(t, db, "B", "b@cb.test", "secret123")
	sam := testutil.SeedVisitor(t, db, org, "Sam", "QR123")
	stranger := testutil.SeedVisitor(t, db, other, "Kim", "QR999")
	art := testutil.SeedActivity(t, db, org, "Art", time.Monday)
	spare := testutil.SeedActivity(t, db, org, "Spare")
	visits := repository.NewVisitRepo(db)
	acts := repository.NewActivityRepo(db)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	v, err := visits.Create(ctx, org, sam, art)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if v.ID == 0 || v.CreatedAt.Before(before) {
		t.Fatalf("visit = %+v", v)
	}
	if _, err := visits.Create(ctx, org, stranger, art); !errors.Is(err, repository.ErrForbidden) {
		t.Fatalf("Create(foreign visitor) error = %v", err)
	}
	if _, err := visits.Create(ctx, org, sam, 9999); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Create(unknown activity) error = %v", err)
	}
	if n := testutil.CountVisits(t, db); n != 1 {
		t.Fatalf("visits = %d, want 1", n)
	}

	history, err := repository.NewVisitorRepo(db).ListVisits(ctx, org, sam)
	if err != nil || len(history) != 1 || history[0].ActivityName != "Art" {
		t.Fatalf("ListVisits() = %+v, %v", history, err)
	}

	if err := acts.Delete(ctx, org, art); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("Delete(with visits) error = %v", err)
	}
	if err := acts.Delete(ctx, other, spare); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Delete(other org) error = %v", err)
	}
	if err := acts.Delete(ctx, org, spare); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}
