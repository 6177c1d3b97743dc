package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/quota"
)

func seeded(t *testing.T) (*Store, model.Tenant) {
	t.Helper()
	s := New(func() time.Time { return time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC) })
	plan := s.Plans().Put(model.Plan{Name: "basic", MaxVehicles: 2})
	tn := model.Tenant{Name: "Oasis", ContactEmail: "Boss@Oasis.test", PlanID: plan.ID, Status: model.TenantTrial}
	admin := model.Principal{Email: "Boss@Oasis.test", Role: model.RoleTenantAdmin, IsActive: true}
	if err := s.Tenants().Register(context.Background(), &tn, &admin); err != nil {
		t.Fatal(err)
	}
	if admin.TenantID == nil || *admin.TenantID != tn.ID || admin.Email != "boss@oasis.test" {
		t.Fatalf("admin = %+v", admin)
	}
	return s, tn
}

func TestRegisterIsAllOrNothing(t *testing.T) {
	s, tn := seeded(t)
	ctx := context.Background()

	dup := model.Tenant{Name: "Copy", PlanID: tn.PlanID}
	err := s.Tenants().Register(ctx, &dup, &model.Principal{Email: "BOSS@oasis.test"})
	if !errors.Is(err, model.ErrEmailExists) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.Tenants().GetByID(ctx, tn.ID+1); !errors.Is(err, model.ErrTenantNotFound) {
		t.Fatal("tenant stored despite the duplicate admin")
	}

	orphan := model.Tenant{Name: "Nowhere", PlanID: 99}
	if err := s.Tenants().Register(ctx, &orphan, &model.Principal{Email: "x@y.test"}); !errors.Is(err, model.ErrPlanNotFound) {
		t.Fatalf("unknown plan: %v", err)
	}
	if _, err := s.Principals().GetByEmail(ctx, "x@y.test"); !errors.Is(err, model.ErrPrincipalNotFound) {
		t.Fatal("principal stored for an unknown plan")
	}
}

func TestReserveUsageTripPeriods(t *testing.T) {
	s, tn := seeded(t)
	ctx := context.Background()
	jan, feb := 202601, 202602

	for i := 0; i < 2; i++ {
		if ok, _ := s.Tenants().ReserveUsage(ctx, tn.ID, quota.Trips, 2, jan); !ok {
			t.Fatalf("trip %d refused", i)
		}
	}
	if ok, _ := s.Tenants().ReserveUsage(ctx, tn.ID, quota.Trips, 2, jan); ok {
		t.Fatal("third trip admitted in January")
	}
	// a release for an older month must not touch the new one
	if ok, _ := s.Tenants().ReserveUsage(ctx, tn.ID, quota.Trips, 2, feb); !ok {
		t.Fatal("counter did not restart in February")
	}
	if err := s.Tenants().ReleaseUsage(ctx, tn.ID, quota.Trips, jan); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Tenants().GetByID(ctx, tn.ID)
	if got.TripPeriod != feb || got.TripCount != 1 {
		t.Fatalf("trips = %d in %d", got.TripCount, got.TripPeriod)
	}

	if _, err := s.Tenants().ReserveUsage(ctx, 404, quota.Vehicles, 5, jan); !errors.Is(err, model.ErrTenantNotFound) {
		t.Fatalf("missing tenant: %v", err)
	}
}

func TestConsumeVerificationToken(t *testing.T) {
	s, tn := seeded(t)
	ctx := context.Background()
	exp := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Tenants().SetVerificationToken(ctx, tn.ID, "h1", exp); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Tenants().ConsumeVerificationToken(ctx, "h1", exp); !errors.Is(err, model.ErrTenantNotFound) {
		t.Fatal("token accepted at its expiry instant")
	}
	id, err := s.Tenants().ConsumeVerificationToken(ctx, "h1", exp.Add(-time.Second))
	if err != nil || id != tn.ID {
		t.Fatalf("consume = %d %v", id, err)
	}
	if _, err := s.Tenants().ConsumeVerificationToken(ctx, "h1", exp.Add(-time.Second)); err == nil {
		t.Fatal("token consumed twice")
	}
	if _, err := s.Tenants().ConsumeVerificationToken(ctx, "", exp); err == nil {
		t.Fatal("empty hash matched")
	}
}

func TestPlansList(t *testing.T) {
	s := New(nil)
	s.Plans().Put(model.Plan{ID: 3, Name: "enterprise"})
	s.Plans().Put(model.Plan{ID: 1, Name: "basic"})
	if p := s.Plans().Put(model.Plan{Name: "next"}); p.ID != 4 {
		t.Fatalf("assigned id = %d", p.ID)
	}
	plans, _ := s.Plans().List(context.Background())
	if len(plans) != 3 || plans[0].Name != "basic" || plans[2].Name != "next" {
		t.Fatalf("plans = %+v", plans)
	}
}
