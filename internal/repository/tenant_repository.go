package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/quota"
)

const tenantColumns = "id,name,contact_email,phone,country_code,plan_id,status,trial_expires_at,email_verified," +
	"verification_hash,verification_expires_at,vehicle_count,operator_count,trip_count,trip_period,created_at,updated_at"

// TenantRepo mirrors the 'tenants' table.
type TenantRepo struct{ DB *sql.DB }

func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{DB: db} }

// Register inserts the tenant and its first admin in one transaction.
func (r *TenantRepo) Register(ctx context.Context, t *model.Tenant, admin *model.Principal) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	t.ContactEmail = strings.ToLower(strings.TrimSpace(t.ContactEmail))
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tenants (name,contact_email,phone,country_code,plan_id,status,trial_expires_at,email_verified)
		 VALUES (?,?,?,?,?,?,?,?)`,
		t.Name, t.ContactEmail, t.Phone, t.CountryCode, t.PlanID, string(t.Status), nullTime(t.TrialExpiresAt), t.EmailVerified)
	if err != nil {
		if isMissingRef(err) {
			return model.ErrPlanNotFound
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)

	tid := t.ID
	admin.TenantID = &tid
	if err = insertPrincipal(ctx, tx, admin); err != nil {
		return err
	}
	return tx.Commit()
}

func scanTenant(row rowScanner) (model.Tenant, error) {
	var (
		t          model.Tenant
		status     string
		trialEnds  sql.NullTime
		verifyHash sql.NullString
		verifyEnds sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Name, &t.ContactEmail, &t.Phone, &t.CountryCode, &t.PlanID, &status, &trialEnds,
		&t.EmailVerified, &verifyHash, &verifyEnds, &t.VehicleCount, &t.OperatorCount, &t.TripCount, &t.TripPeriod,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Tenant{}, model.ErrTenantNotFound
		}
		return model.Tenant{}, err
	}
	t.Status = model.TenantStatus(status)
	t.TrialExpiresAt = timePtr(trialEnds)
	t.VerificationHash = verifyHash.String
	t.VerificationExpiresAt = timePtr(verifyEnds)
	return t, nil
}

func (r *TenantRepo) GetByID(ctx context.Context, id uint64) (model.Tenant, error) {
	return scanTenant(r.DB.QueryRowContext(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE id=? LIMIT 1", id))
}

// UpdateStatus moves the tenant from -> to only if it is still in from.
func (r *TenantRepo) UpdateStatus(ctx context.Context, id uint64, from, to model.TenantStatus, trialExpiresAt *time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tenants SET status=?, trial_expires_at=? WHERE id=? AND status=?",
		string(to), nullTime(trialExpiresAt), id, string(from))
	if err != nil {
		return false, err
	}
	return r.matched(ctx, id, res)
}

func (r *TenantRepo) SetVerificationToken(ctx context.Context, id uint64, hash string, expiresAt time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tenants SET verification_hash=?, verification_expires_at=? WHERE id=?",
		hash, expiresAt.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrTenantNotFound
	}
	return nil
}

// ConsumeVerificationToken marks the tenant holding hash verified.  The
// row is locked so two redemptions of one token cannot both succeed.
func (r *TenantRepo) ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (id uint64, err error) {
	if hash == "" {
		return 0, model.ErrTenantNotFound
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx,
		"SELECT id FROM tenants WHERE verification_hash=? AND verification_expires_at > ? LIMIT 1 FOR UPDATE",
		hash, now.UTC()).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, model.ErrTenantNotFound
		}
		return 0, err
	}
	if _, err = tx.ExecContext(ctx,
		"UPDATE tenants SET email_verified=1, verification_hash=NULL, verification_expires_at=NULL WHERE id=?",
		id); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ReserveUsage increments the counter for kind in a single conditional
// UPDATE.  For trips the counter restarts at one when the stored period is
// not the current one; MySQL evaluates the assignments left to right so
// trip_count sees the old trip_period.
func (r *TenantRepo) ReserveUsage(ctx context.Context, tenantID uint64, kind quota.Kind, limit, period int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	var (
		res sql.Result
		err error
	)
	switch kind {
	case quota.Vehicles, quota.Operators:
		col := counterColumn(kind)
		res, err = r.DB.ExecContext(ctx,
			fmt.Sprintf("UPDATE tenants SET %[1]s=%[1]s+1 WHERE id=? AND %[1]s<?", col),
			tenantID, limit)
	case quota.Trips:
		res, err = r.DB.ExecContext(ctx,
			`UPDATE tenants SET trip_count=IF(trip_period=?, trip_count+1, 1), trip_period=?
			 WHERE id=? AND (trip_period<>? OR trip_count<?)`,
			period, period, tenantID, period, limit)
	default:
		return false, fmt.Errorf("unknown quota kind %q", kind)
	}
	if err != nil {
		return false, err
	}
	return r.matched(ctx, tenantID, res)
}

// ReleaseUsage decrements the counter for kind, never below zero.  A trip
// release for an earlier period is a no-op.
func (r *TenantRepo) ReleaseUsage(ctx context.Context, tenantID uint64, kind quota.Kind, period int) error {
	var err error
	switch kind {
	case quota.Vehicles, quota.Operators:
		col := counterColumn(kind)
		_, err = r.DB.ExecContext(ctx,
			fmt.Sprintf("UPDATE tenants SET %[1]s=%[1]s-1 WHERE id=? AND %[1]s>0", col), tenantID)
	case quota.Trips:
		_, err = r.DB.ExecContext(ctx,
			"UPDATE tenants SET trip_count=trip_count-1 WHERE id=? AND trip_period=? AND trip_count>0",
			tenantID, period)
	default:
		err = fmt.Errorf("unknown quota kind %q", kind)
	}
	return err
}

// matched turns a conditional update result into (applied, error),
// separating "condition false" from "no such tenant".
func (r *TenantRepo) matched(ctx context.Context, id uint64, res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	var one int
	err = r.DB.QueryRowContext(ctx, "SELECT 1 FROM tenants WHERE id=?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, model.ErrTenantNotFound
	}
	return false, err
}

func counterColumn(k quota.Kind) string {
	if k == quota.Operators {
		return "operator_count"
	}
	return "vehicle_count"
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
