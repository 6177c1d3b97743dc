package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/quota"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
		db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var principalCols = []string{"id", "email", "name", "password_hash", "role", "tenant_id", "token_generation",
	"refresh_token_hash", "is_active", "last_login_at", "created_at", "updated_at"}

func TestPrincipalCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPrincipalRepo(db)
	tid := uint64(3)

	mock.ExpectExec(q("INSERT INTO principals")).
		WithArgs("op@acme.test", "Bo", "hash", "TENANT_OPERATOR", sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(41, 1))
	p := model.Principal{Email: " OP@acme.test ", Name: "Bo", PasswordHash: "hash", Role: model.RoleTenantOperator, TenantID: &tid, IsActive: true}
	if err := repo.Create(context.Background(), &p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID != 41 || p.Email != "op@acme.test" {
		t.Fatalf("p = %+v", p)
	}

	mock.ExpectExec(q("INSERT INTO principals")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	dup := model.Principal{Email: "op@acme.test", Role: model.RoleTenantOperator, TenantID: &tid}
	if err := repo.Create(context.Background(), &dup); !errors.Is(err, model.ErrEmailExists) {
		t.Fatalf("duplicate: %v", err)
	}
}

func TestPrincipalGetByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPrincipalRepo(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(q("SELECT "+principalColumns+" FROM principals WHERE email=?")).
		WithArgs("owner@acme.test").
		WillReturnRows(sqlmock.NewRows(principalCols).
			AddRow(7, "owner@acme.test", "Ada", "hash", "TENANT_ADMIN", 3, 2, "abc", true, nil, now, now))
	p, err := repo.GetByEmail(context.Background(), "Owner@Acme.test")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if p.ID != 7 || p.TenantRef() != 3 || p.TokenGeneration != 2 || p.RefreshHash != "abc" || p.LastLoginAt != nil {
		t.Fatalf("p = %+v", p)
	}

	mock.ExpectQuery(q("FROM principals WHERE email=?")).WillReturnError(sql.ErrNoRows)
	if _, err := repo.GetByEmail(context.Background(), "ghost@acme.test"); !errors.Is(err, model.ErrPrincipalNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestPrincipalPlatformAdminHasNoTenant(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(q("FROM principals WHERE id=?")).WithArgs(1).
		WillReturnRows(sqlmock.NewRows(principalCols).
			AddRow(1, "root@platform.test", "Root", "hash", "PLATFORM_ADMIN", nil, 0, nil, true, now, now, now))
	p, err := NewPrincipalRepo(db).GetByID(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.TenantID != nil || p.RefreshHash != "" || p.LastLoginAt == nil {
		t.Fatalf("p = %+v", p)
	}
}

func TestSwapRefreshHash(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPrincipalRepo(db)
	stmt := q("UPDATE principals SET refresh_token_hash=? WHERE id=? AND token_generation=? AND refresh_token_hash=? AND is_active=1")

	mock.ExpectExec(stmt).WithArgs("new", 7, 2, "old").WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.SwapRefreshHash(context.Background(), 7, 2, "old", "new")
	if err != nil || !ok {
		t.Fatalf("winner: ok=%v err=%v", ok, err)
	}

	mock.ExpectExec(stmt).WithArgs("newer", 7, 2, "old").WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.SwapRefreshHash(context.Background(), 7, 2, "old", "newer")
	if err != nil || ok {
		t.Fatalf("loser: ok=%v err=%v", ok, err)
	}
}

func TestInvalidate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPrincipalRepo(db)
	stmt := q("UPDATE principals SET token_generation=token_generation+1, refresh_token_hash=NULL WHERE id=?")

	mock.ExpectExec(stmt).WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Invalidate(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	mock.ExpectExec(stmt).WithArgs(8).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.Invalidate(context.Background(), 8); !errors.Is(err, model.ErrPrincipalNotFound) {
		t.Fatalf("missing principal: %v", err)
	}
}

func TestDeactivate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPrincipalRepo(db)
	stmt := q("UPDATE principals SET is_active=0")

	mock.ExpectExec(stmt).WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 1))
	was, err := repo.Deactivate(context.Background(), 7)
	if err != nil || !was {
		t.Fatalf("active: was=%v err=%v", was, err)
	}

	now := time.Now().UTC()
	mock.ExpectExec(stmt).WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("FROM principals WHERE id=?")).WithArgs(7).
		WillReturnRows(sqlmock.NewRows(principalCols).
			AddRow(7, "op@acme.test", "Bo", "hash", "TENANT_OPERATOR", 3, 3, nil, false, nil, now, now))
	was, err = repo.Deactivate(context.Background(), 7)
	if err != nil || was {
		t.Fatalf("inactive: was=%v err=%v", was, err)
	}
}

func TestTenantRegisterCommitsBoth(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTenantRepo(db)
	trial := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO tenants")).
		WithArgs("Acme", "owner@acme.test", "", "", 1, "trial", sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec(q("INSERT INTO principals")).
		WithArgs("owner@acme.test", "Ada", "hash", "TENANT_ADMIN", sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	ten := model.Tenant{Name: "Acme", ContactEmail: "Owner@acme.test", PlanID: 1, Status: model.TenantTrial, TrialExpiresAt: &trial}
	admin := model.Principal{Email: "owner@acme.test", Name: "Ada", PasswordHash: "hash", Role: model.RoleTenantAdmin, IsActive: true}
	if err := repo.Register(context.Background(), &ten, &admin); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ten.ID != 3 || admin.ID != 7 || admin.TenantRef() != 3 {
		t.Fatalf("ids: tenant=%d admin=%d admin.tenant=%d", ten.ID, admin.ID, admin.TenantRef())
	}
}

func TestTenantRegisterRollsBackOnDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTenantRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO tenants")).WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec(q("INSERT INTO principals")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	ten := model.Tenant{Name: "Acme", PlanID: 1, Status: model.TenantTrial}
	admin := model.Principal{Email: "owner@acme.test", Role: model.RoleTenantAdmin}
	if err := repo.Register(context.Background(), &ten, &admin); !errors.Is(err, model.ErrEmailExists) {
		t.Fatalf("Register: %v", err)
	}
}

func TestTenantRegisterUnknownPlan(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO tenants")).
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})
	mock.ExpectRollback()

	ten := model.Tenant{Name: "Acme", PlanID: 99, Status: model.TenantTrial}
	admin := model.Principal{Email: "owner@acme.test"}
	if err := NewTenantRepo(db).Register(context.Background(), &ten, &admin); !errors.Is(err, model.ErrPlanNotFound) {
		t.Fatalf("Register: %v", err)
	}
}

func TestReserveUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("vehicle slot free", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(q("UPDATE tenants SET vehicle_count=vehicle_count+1 WHERE id=? AND vehicle_count<?")).
			WithArgs(3, 5).WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := NewTenantRepo(db).ReserveUsage(ctx, 3, quota.Vehicles, 5, 202603)
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
	})

	t.Run("operator ceiling reached", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(q("UPDATE tenants SET operator_count=operator_count+1 WHERE id=? AND operator_count<?")).
			WithArgs(3, 2).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(q("SELECT 1 FROM tenants WHERE id=?")).WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		ok, err := NewTenantRepo(db).ReserveUsage(ctx, 3, quota.Operators, 2, 202603)
		if err != nil || ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
	})

	t.Run("trips", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(q("UPDATE tenants SET trip_count=IF(trip_period=?, trip_count+1, 1), trip_period=?")).
			WithArgs(202603, 202603, 3, 202603, 100).WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := NewTenantRepo(db).ReserveUsage(ctx, 3, quota.Trips, 100, 202603)
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
	})

	t.Run("zero limit never touches the database", func(t *testing.T) {
		db, _ := newMock(t)
		ok, err := NewTenantRepo(db).ReserveUsage(ctx, 3, quota.Vehicles, 0, 202603)
		if err != nil || ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
	})

	t.Run("missing tenant", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(q("UPDATE tenants SET vehicle_count")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(q("SELECT 1 FROM tenants WHERE id=?")).WillReturnError(sql.ErrNoRows)
		_, err := NewTenantRepo(db).ReserveUsage(ctx, 99, quota.Vehicles, 5, 202603)
		if !errors.Is(err, model.ErrTenantNotFound) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestReleaseUsage(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTenantRepo(db)
	mock.ExpectExec(q("UPDATE tenants SET vehicle_count=vehicle_count-1 WHERE id=? AND vehicle_count>0")).
		WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("UPDATE tenants SET trip_count=trip_count-1 WHERE id=? AND trip_period=? AND trip_count>0")).
		WithArgs(3, 202603).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.ReleaseUsage(context.Background(), 3, quota.Vehicles, 202603); err != nil {
		t.Fatal(err)
	}
	if err := repo.ReleaseUsage(context.Background(), 3, quota.Trips, 202603); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateStatusCompareAndSwap(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTenantRepo(db)
	stmt := q("UPDATE tenants SET status=?, trial_expires_at=? WHERE id=? AND status=?")

	mock.ExpectExec(stmt).WithArgs("active", nil, 3, "trial").WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.UpdateStatus(context.Background(), 3, model.TenantTrial, model.TenantActive, nil)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}

	mock.ExpectExec(stmt).WithArgs("active", nil, 3, "trial").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT 1 FROM tenants WHERE id=?")).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	ok, err = repo.UpdateStatus(context.Background(), 3, model.TenantTrial, model.TenantActive, nil)
	if err != nil || ok {
		t.Fatalf("stale from: ok=%v err=%v", ok, err)
	}
}

func TestConsumeVerificationToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("valid", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(q("SELECT id FROM tenants WHERE verification_hash=? AND verification_expires_at > ? LIMIT 1 FOR UPDATE")).
			WithArgs("h", now).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
		mock.ExpectExec(q("UPDATE tenants SET email_verified=1, verification_hash=NULL, verification_expires_at=NULL WHERE id=?")).
			WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		id, err := NewTenantRepo(db).ConsumeVerificationToken(context.Background(), "h", now)
		if err != nil || id != 3 {
			t.Fatalf("id=%d err=%v", id, err)
		}
	})

	t.Run("unknown or expired", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(q("SELECT id FROM tenants WHERE verification_hash=?")).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()
		_, err := NewTenantRepo(db).ConsumeVerificationToken(context.Background(), "h", now)
		if !errors.Is(err, model.ErrTenantNotFound) {
			t.Fatalf("err = %v", err)
		}
	})
}

var tenantCols = []string{"id", "name", "contact_email", "phone", "country_code", "plan_id", "status", "trial_expires_at",
	"email_verified", "verification_hash", "verification_expires_at", "vehicle_count", "operator_count", "trip_count",
	"trip_period", "created_at", "updated_at"}

func TestTenantGetByID(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	trial := now.Add(7 * 24 * time.Hour)
	mock.ExpectQuery(q("SELECT "+tenantColumns+" FROM tenants WHERE id=?")).WithArgs(3).
		WillReturnRows(sqlmock.NewRows(tenantCols).
			AddRow(3, "Acme", "owner@acme.test", "", "GB", 1, "trial", trial, false, "h", now, 2, 1, 4, 202603, now, now))
	ten, err := NewTenantRepo(db).GetByID(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if ten.Status != model.TenantTrial || ten.TrialExpiresAt == nil || !ten.TrialExpiresAt.Equal(trial) {
		t.Fatalf("tenant = %+v", ten)
	}
	if ten.VehicleCount != 2 || ten.OperatorCount != 1 || ten.TripCount != 4 || ten.TripPeriod != 202603 {
		t.Fatalf("counters = %+v", ten)
	}
}

func TestPlanGetByID(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("FROM plans WHERE id=?")).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "max_vehicles", "max_operators", "max_trips_per_period"}).
			AddRow(1, "basic", "Basic", 5, 3, 100))
	p, err := NewPlanRepo(db).GetByID(context.Background(), 1)
	if err != nil || p.MaxVehicles != 5 {
		t.Fatalf("p=%+v err=%v", p, err)
	}
	mock.ExpectQuery(q("FROM plans WHERE id=?")).WithArgs(2).WillReturnError(sql.ErrNoRows)
	if _, err := NewPlanRepo(db).GetByID(context.Background(), 2); !errors.Is(err, model.ErrPlanNotFound) {
		t.Fatalf("missing plan: %v", err)
	}
}

func TestPlanList(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("FROM plans ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "max_vehicles", "max_operators", "max_trips_per_period"}).
			AddRow(1, "basic", "Basic", 5, 3, 100).
			AddRow(2, "pro", "Professional", 25, 15, 1000))
	plans, err := NewPlanRepo(db).List(context.Background())
	if err != nil || len(plans) != 2 || plans[1].Name != "pro" {
		t.Fatalf("plans=%+v err=%v", plans, err)
	}
}
