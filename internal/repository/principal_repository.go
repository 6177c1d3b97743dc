package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/agency-booking/internal/model"
)

const principalColumns = "id,email,name,password_hash,role,tenant_id,token_generation,refresh_token_hash,is_active,last_login_at,created_at,updated_at"

// PrincipalRepo mirrors the 'principals' table.
type PrincipalRepo struct{ DB *sql.DB }

func NewPrincipalRepo(db *sql.DB) *PrincipalRepo { return &PrincipalRepo{DB: db} }

// Create inserts p and fills in its ID.
func (r *PrincipalRepo) Create(ctx context.Context, p *model.Principal) error {
	return insertPrincipal(ctx, r.DB, p)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertPrincipal(ctx context.Context, db execer, p *model.Principal) error {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	var tenantID sql.NullInt64
	if p.TenantID != nil {
		tenantID = sql.NullInt64{Int64: int64(*p.TenantID), Valid: true}
	}
	res, err := db.ExecContext(ctx,
		"INSERT INTO principals (email,name,password_hash,role,tenant_id,is_active) VALUES (?,?,?,?,?,?)",
		p.Email, p.Name, p.PasswordHash, string(p.Role), tenantID, p.IsActive)
	if err != nil {
		switch {
		case isDuplicate(err):
			return model.ErrEmailExists
		case isMissingRef(err):
			return model.ErrTenantNotFound
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

func scanPrincipal(row rowScanner) (model.Principal, error) {
	var (
		p         model.Principal
		role      string
		tenantID  sql.Null[uint64]
		hash      sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.PasswordHash, &role, &tenantID,
		&p.TokenGeneration, &hash, &p.IsActive, &lastLogin, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Principal{}, model.ErrPrincipalNotFound
		}
		return model.Principal{}, err
	}
	p.Role = model.Role(role)
	if tenantID.Valid {
		v := tenantID.V
		p.TenantID = &v
	}
	p.RefreshHash = hash.String
	if lastLogin.Valid {
		t := lastLogin.Time
		p.LastLoginAt = &t
	}
	return p, nil
}

func (r *PrincipalRepo) GetByID(ctx context.Context, id uint64) (model.Principal, error) {
	return scanPrincipal(r.DB.QueryRowContext(ctx,
		"SELECT "+principalColumns+" FROM principals WHERE id=? LIMIT 1", id))
}

// GetByEmail fetches a principal by normalized email.
func (r *PrincipalRepo) GetByEmail(ctx context.Context, email string) (model.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanPrincipal(r.DB.QueryRowContext(ctx,
		"SELECT "+principalColumns+" FROM principals WHERE email=? LIMIT 1", email))
}

func (r *PrincipalRepo) SetRefreshHash(ctx context.Context, id uint64, hash string) error {
	return r.exec(ctx, "UPDATE principals SET refresh_token_hash=? WHERE id=?", hash, id)
}

// SwapRefreshHash is a compare-and-swap on (generation, hash, active).
func (r *PrincipalRepo) SwapRefreshHash(ctx context.Context, id, gen uint64, oldHash, newHash string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET refresh_token_hash=? WHERE id=? AND token_generation=? AND refresh_token_hash=? AND is_active=1",
		newHash, id, gen, oldHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Invalidate bumps the generation so every outstanding refresh token fails.
func (r *PrincipalRepo) Invalidate(ctx context.Context, id uint64) error {
	return r.exec(ctx,
		"UPDATE principals SET token_generation=token_generation+1, refresh_token_hash=NULL WHERE id=?", id)
}

func (r *PrincipalRepo) TouchLastLogin(ctx context.Context, id uint64, at time.Time) error {
	return r.exec(ctx, "UPDATE principals SET last_login_at=? WHERE id=?", at.UTC(), id)
}

// Deactivate reports whether the principal was active before the call.
func (r *PrincipalRepo) Deactivate(ctx context.Context, id uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET is_active=0, token_generation=token_generation+1, refresh_token_hash=NULL WHERE id=? AND is_active=1", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	// already inactive, or missing
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *PrincipalRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrPrincipalNotFound
	}
	return nil
}
