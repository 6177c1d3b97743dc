// Package auth manages the credential pair handed to principals: a short
// lived access token verified without any store lookup, and a long lived
// refresh token that can be rotated exactly once and revoked centrally by
// bumping the principal's token generation.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/model"
)

// errInvalidRefresh is the only error Rotate reports for a bad refresh token,
// whichever precondition failed.
var errInvalidRefresh = apperr.Unauthenticatedf("invalid refresh token")

var errInvalidAccess = apperr.Unauthenticatedf("invalid or expired token")

// Config carries signing material and lifetimes.  Access and refresh tokens
// use distinct secrets so one can never be replayed as the other.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// AccessClaims is the payload of an access token.  Subject holds the
// principal id.
type AccessClaims struct {
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
	TenantID uint64     `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// PrincipalID parses the subject claim.
func (c *AccessClaims) PrincipalID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// RefreshClaims is the payload of a refresh token.  It deliberately carries
// no role or tenant: only who it belongs to and which generation it was
// minted under.  ID (jti) makes every refresh token unique even when two are
// minted within the same second.
type RefreshClaims struct {
	Email      string `json:"email"`
	Generation uint64 `json:"gen"`
	jwt.RegisteredClaims
}

// Token is a signed token along with its expiry.
type Token struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// Pair is what Issue and Rotate hand back to clients.
type Pair struct {
	Access  Token `json:"access"`
	Refresh Token `json:"refresh"`
}

// CredentialStore is the slice of the principal store the manager needs.
type CredentialStore interface {
	GetByID(ctx context.Context, id uint64) (model.Principal, error)
	// SetRefreshHash overwrites the stored refresh hash unconditionally.
	SetRefreshHash(ctx context.Context, id uint64, hash string) error
	// SwapRefreshHash replaces oldHash with newHash only while the principal
	// is active, still at generation gen and still holds oldHash.  It
	// reports whether the swap happened.
	SwapRefreshHash(ctx context.Context, id, gen uint64, oldHash, newHash string) (bool, error)
	// Invalidate bumps the generation and clears the refresh hash.
	Invalidate(ctx context.Context, id uint64) error
}

// RotateCheck is an extra gate evaluated by Rotate after the credential
// preconditions hold and before anything is minted.
type RotateCheck func(ctx context.Context, p model.Principal) error

// Manager issues, verifies, rotates and invalidates credentials.
type Manager struct {
	cfg   Config
	store CredentialStore
}

// NewManager returns a Manager bound to the given store.
func NewManager(cfg Config, store CredentialStore) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg, store: store}
}

// HashToken returns the SHA-256 hex digest of a raw token.  Only digests are
// persisted so a leaked row cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Issue mints a new pair for p and records the refresh hash, superseding
// whatever refresh token p held before.
func (m *Manager) Issue(ctx context.Context, p model.Principal) (Pair, error) {
	pair, err := m.mint(p)
	if err != nil {
		return Pair{}, err
	}
	if err := m.store.SetRefreshHash(ctx, p.ID, HashToken(pair.Refresh.Token)); err != nil {
		return Pair{}, apperr.Wrap(err, "store refresh hash")
	}
	return pair, nil
}

// Verify checks the signature and expiry of an access token.  It never
// touches the store.
func (m *Manager) Verify(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, err := m.parse(raw, m.cfg.AccessSecret, claims); err != nil {
		return nil, errInvalidAccess
	}
	if _, err := claims.PrincipalID(); err != nil {
		return nil, errInvalidAccess
	}
	return claims, nil
}

// Rotate exchanges a refresh token for a new pair.  The presented token must
// verify, belong to an active principal, carry the principal's current
// generation and match the stored hash.  The old token is dead as soon as
// the new hash lands, and of two concurrent rotations of the same token only
// one can land.
func (m *Manager) Rotate(ctx context.Context, raw string, checks ...RotateCheck) (Pair, model.Principal, error) {
	claims := &RefreshClaims{}
	if _, err := m.parse(raw, m.cfg.RefreshSecret, claims); err != nil {
		return Pair{}, model.Principal{}, errInvalidRefresh
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return Pair{}, model.Principal{}, errInvalidRefresh
	}

	p, err := m.store.GetByID(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return Pair{}, model.Principal{}, errInvalidRefresh
		}
		return Pair{}, model.Principal{}, apperr.Wrap(err, "load principal")
	}

	presented := HashToken(raw)
	if !p.IsActive ||
		claims.Generation != p.TokenGeneration ||
		p.RefreshHash == "" ||
		subtle.ConstantTimeCompare([]byte(presented), []byte(p.RefreshHash)) != 1 {
		return Pair{}, model.Principal{}, errInvalidRefresh
	}

	for _, check := range checks {
		if err := check(ctx, p); err != nil {
			return Pair{}, model.Principal{}, err
		}
	}

	pair, err := m.mint(p)
	if err != nil {
		return Pair{}, model.Principal{}, err
	}
	newHash := HashToken(pair.Refresh.Token)
	swapped, err := m.store.SwapRefreshHash(ctx, p.ID, p.TokenGeneration, presented, newHash)
	if err != nil {
		return Pair{}, model.Principal{}, apperr.Wrap(err, "swap refresh hash")
	}
	if !swapped {
		// another rotation or an invalidation got there first
		return Pair{}, model.Principal{}, errInvalidRefresh
	}
	p.RefreshHash = newHash
	return pair, p, nil
}

// Invalidate voids every refresh token ever issued to the principal.
func (m *Manager) Invalidate(ctx context.Context, principalID uint64) error {
	if err := m.store.Invalidate(ctx, principalID); err != nil {
		return apperr.Wrap(err, "invalidate credentials")
	}
	return nil
}

func (m *Manager) mint(p model.Principal) (Pair, error) {
	now := m.cfg.Now().UTC()
	sub := strconv.FormatUint(p.ID, 10)

	accessExp := now.Add(m.cfg.AccessTTL)
	access := AccessClaims{
		Email:    p.Email,
		Role:     p.Role,
		TenantID: p.TenantRef(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}
	accessSigned, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString([]byte(m.cfg.AccessSecret))
	if err != nil {
		return Pair{}, apperr.Wrap(err, "sign access token")
	}

	refreshExp := now.Add(m.cfg.RefreshTTL)
	refresh := RefreshClaims{
		Email:      p.Email,
		Generation: p.TokenGeneration,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   sub,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
		},
	}
	refreshSigned, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString([]byte(m.cfg.RefreshSecret))
	if err != nil {
		return Pair{}, apperr.Wrap(err, "sign refresh token")
	}

	return Pair{
		Access:  Token{Token: accessSigned, Expires: accessExp},
		Refresh: Token{Token: refreshSigned, Expires: refreshExp},
	}, nil
}

func (m *Manager) parse(raw, secret string, claims jwt.Claims) (*jwt.Token, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	return tok, nil
}
