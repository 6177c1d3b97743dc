package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/auth"
	"github.com/iliyamo/agency-booking/internal/memstore"
	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/notify"
)

type outbox struct {
	sent []notify.VerificationRequested
	err  error
}

func (o *outbox) NotifyVerification(_ context.Context, ev notify.VerificationRequested) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, ev)
	return nil
}

type env struct {
	svc     *Service
	tenants *memstore.Tenants
	box     *outbox
	now     time.Time
	tenant  model.Tenant
}

func setup(t *testing.T) *env {
	t.Helper()
	e := &env{box: &outbox{}, now: time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return e.now }
	store := memstore.New(clock)
	plan := store.Plans().Put(model.Plan{Name: "basic", MaxVehicles: 5})
	e.tenants = store.Tenants()

	ten := model.Tenant{Name: "Acme Tours", ContactEmail: "owner@acme.test", PlanID: plan.ID, Status: model.TenantTrial}
	admin := model.Principal{Email: "owner@acme.test", Role: model.RoleTenantAdmin, IsActive: true}
	if err := e.tenants.Register(context.Background(), &ten, &admin); err != nil {
		t.Fatal(err)
	}
	e.tenant = ten
	e.svc = NewService(e.tenants, e.box, 30*time.Minute, clock, nil)
	return e
}

func (e *env) reload(t *testing.T) model.Tenant {
	t.Helper()
	ten, err := e.tenants.GetByID(context.Background(), e.tenant.ID)
	if err != nil {
		t.Fatal(err)
	}
	return ten
}

func TestIssueStoresOnlyHash(t *testing.T) {
	e := setup(t)
	if err := e.svc.Issue(context.Background(), e.tenant); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(e.box.sent) != 1 {
		t.Fatalf("sent %d notifications", len(e.box.sent))
	}
	ev := e.box.sent[0]
	if len(ev.Token) != 64 {
		t.Fatalf("token length %d", len(ev.Token))
	}
	ten := e.reload(t)
	if ten.VerificationHash != auth.HashToken(ev.Token) || ten.VerificationHash == ev.Token {
		t.Fatal("stored value is not the token hash")
	}
	if want := e.now.Add(30 * time.Minute); !ten.VerificationExpiresAt.Equal(want) || !ev.ExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v", ten.VerificationExpiresAt)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	if err := e.svc.Issue(ctx, e.tenant); err != nil {
		t.Fatal(err)
	}
	token := e.box.sent[0].Token

	id, err := e.svc.Consume(ctx, token)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if id != e.tenant.ID {
		t.Fatalf("tenant id = %d", id)
	}
	ten := e.reload(t)
	if !ten.EmailVerified || ten.VerificationHash != "" || ten.VerificationExpiresAt != nil {
		t.Fatalf("after consume: %+v", ten)
	}

	if _, err := e.svc.Consume(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("second consume: %v", err)
	}
}

func TestConsumeExpiry(t *testing.T) {
	tests := []struct {
		name  string
		after time.Duration
		ok    bool
	}{
		{"just before expiry", 29*time.Minute + 59*time.Second, true},
		{"at expiry", 30 * time.Minute, false},
		{"long after", 48 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			ctx := context.Background()
			if err := e.svc.Issue(ctx, e.tenant); err != nil {
				t.Fatal(err)
			}
			e.now = e.now.Add(tt.after)
			_, err := e.svc.Consume(ctx, e.box.sent[0].Token)
			if tt.ok && err != nil {
				t.Fatalf("Consume: %v", err)
			}
			if !tt.ok && apperr.KindOf(err) != apperr.BadRequest {
				t.Fatalf("Consume = %v, want BadRequest", err)
			}
		})
	}
}

func TestReissueSupersedesEarlierToken(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := e.svc.Issue(ctx, e.tenant); err != nil {
			t.Fatal(err)
		}
	}
	first, second := e.box.sent[0].Token, e.box.sent[1].Token
	if first == second {
		t.Fatal("tokens repeat")
	}
	if _, err := e.svc.Consume(ctx, first); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("stale token: %v", err)
	}
	if _, err := e.svc.Consume(ctx, second); err != nil {
		t.Fatalf("current token: %v", err)
	}
}

func TestIssueAlreadyVerified(t *testing.T) {
	e := setup(t)
	ten := e.tenant
	ten.EmailVerified = true
	if err := e.svc.Issue(context.Background(), ten); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("Issue = %v", err)
	}
	if len(e.box.sent) != 0 {
		t.Fatal("notification sent for verified tenant")
	}
}

func TestIssueNotifierFailureKeepsToken(t *testing.T) {
	e := setup(t)
	e.box.err = errors.New("broker down")
	err := e.svc.Issue(context.Background(), e.tenant)
	if apperr.KindOf(err) != apperr.Transient {
		t.Fatalf("Issue = %v, want transient", err)
	}
	if e.reload(t).VerificationHash == "" {
		t.Fatal("token not stored")
	}
}

func TestConsumeRejectsGarbage(t *testing.T) {
	e := setup(t)
	for _, raw := range []string{"", "   ", "deadbeef"} {
		if _, err := e.svc.Consume(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Consume(%q) = %v", raw, err)
		}
	}
}
