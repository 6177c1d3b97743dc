package quota_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/memstore"
	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/quota"
)

var basic = model.Plan{Name: "basic", DisplayName: "Basic", MaxVehicles: 5, MaxOperators: 2, MaxTripsPerPeriod: 3}

func TestCheck(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		tenant  model.Tenant
		kind    quota.Kind
		allowed bool
		usage   int
	}{
		{"vehicles below limit", model.Tenant{VehicleCount: 4}, quota.Vehicles, true, 4},
		{"vehicles at limit", model.Tenant{VehicleCount: 5}, quota.Vehicles, false, 5},
		{"vehicles above limit", model.Tenant{VehicleCount: 7}, quota.Vehicles, false, 7},
		{"operators at limit", model.Tenant{OperatorCount: 2}, quota.Operators, false, 2},
		{"trips in current period", model.Tenant{TripCount: 3, TripPeriod: 202606}, quota.Trips, false, 3},
		{"trips from last month read as zero", model.Tenant{TripCount: 3, TripPeriod: 202605}, quota.Trips, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := quota.Check(tt.tenant, basic, tt.kind, now)
			if res.Allowed != tt.allowed || res.Usage != tt.usage || res.Limit != quota.Limit(basic, tt.kind) {
				t.Fatalf("Check() = %+v", res)
			}
		})
	}
}

func TestDeniedResultNamesResourceAndLimit(t *testing.T) {
	res := quota.Check(model.Tenant{VehicleCount: 5}, basic, quota.Vehicles, time.Now())
	err := res.Err()
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	msg := apperr.Reason(err)
	if !strings.Contains(msg, "vehicles") || !strings.Contains(msg, "5") {
		t.Fatalf("reason %q does not name the resource and ceiling", msg)
	}
	if (quota.Result{Allowed: true}).Err() != nil {
		t.Fatal("allowed result carries an error")
	}
}

func TestPeriod(t *testing.T) {
	// late on the 31st in UTC-5 is already the next month in UTC
	est := time.FixedZone("EST", -5*3600)
	if got := quota.Period(time.Date(2026, 1, 31, 22, 0, 0, 0, est)); got != 202602 {
		t.Fatalf("Period = %d, want 202602", got)
	}
}

type gateFixture struct {
	gate    *quota.Gate
	tenants *memstore.Tenants
	tenant  model.Tenant
	now     *time.Time
}

func newGate(t *testing.T, plan model.Plan) *gateFixture {
	t.Helper()
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	f := &gateFixture{now: &now}
	clock := func() time.Time { return *f.now }

	store := memstore.New(clock)
	plan = store.Plans().Put(plan)
	f.tenants = store.Tenants()
	ten := model.Tenant{Name: "Acme Tours", PlanID: plan.ID, Status: model.TenantActive}
	admin := model.Principal{Email: "admin@acme.test", Role: model.RoleTenantAdmin, IsActive: true}
	if err := f.tenants.Register(context.Background(), &ten, &admin); err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.tenant = ten
	f.gate = quota.NewGate(store.Plans(), f.tenants, clock)
	return f
}

func (f *gateFixture) reload(t *testing.T) model.Tenant {
	t.Helper()
	ten, err := f.tenants.GetByID(context.Background(), f.tenant.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return ten
}

func TestReserveUpToLimit(t *testing.T) {
	f := newGate(t, basic)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := f.gate.Reserve(ctx, f.reload(t), quota.Vehicles)
		if err != nil {
			t.Fatalf("reservation %d: %v", i, err)
		}
		if res.Usage != i {
			t.Fatalf("reservation %d: usage = %d", i, res.Usage)
		}
	}
	res, err := f.gate.Reserve(ctx, f.reload(t), quota.Vehicles)
	if !errors.Is(err, apperr.ErrForbidden) || res.Allowed {
		t.Fatalf("sixth reservation: %+v, %v", res, err)
	}
	if got := f.reload(t).VehicleCount; got != 5 {
		t.Fatalf("vehicle count = %d after denial", got)
	}
}

func TestReserveWithStaleSnapshot(t *testing.T) {
	f := newGate(t, basic)
	ctx := context.Background()

	// every call reuses the registration-time snapshot (count 0)
	stale := f.reload(t)
	granted := 0
	for i := 0; i < 8; i++ {
		if _, err := f.gate.Reserve(ctx, stale, quota.Vehicles); err == nil {
			granted++
		}
	}
	if granted != 5 {
		t.Fatalf("granted %d reservations, want 5", granted)
	}
}

func TestConcurrentReserveForLastSlot(t *testing.T) {
	f := newGate(t, basic)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := f.gate.Reserve(ctx, f.reload(t), quota.Vehicles); err != nil {
			t.Fatal(err)
		}
	}

	snapshot := f.reload(t) // 4/5, what every racer observed
	const racers = 12
	var ok, denied atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.gate.Reserve(ctx, snapshot, quota.Vehicles)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperr.ErrForbidden):
				denied.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok.Load() != 1 || denied.Load() != racers-1 {
		t.Fatalf("ok=%d denied=%d, want exactly one success", ok.Load(), denied.Load())
	}
	if got := f.reload(t).VehicleCount; got != 5 {
		t.Fatalf("vehicle count = %d, want 5", got)
	}
}

func TestTripsRestartEachMonth(t *testing.T) {
	f := newGate(t, basic)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.gate.Reserve(ctx, f.reload(t), quota.Trips); err != nil {
			t.Fatalf("trip %d: %v", i, err)
		}
	}
	if _, err := f.gate.Reserve(ctx, f.reload(t), quota.Trips); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("fourth trip in June: %v", err)
	}

	*f.now = time.Date(2026, 7, 1, 0, 0, 1, 0, time.UTC)
	res, err := f.gate.Reserve(ctx, f.reload(t), quota.Trips)
	if err != nil {
		t.Fatalf("first trip in July: %v", err)
	}
	if res.Usage != 1 {
		t.Fatalf("usage = %d, want 1", res.Usage)
	}
	ten := f.reload(t)
	if ten.TripPeriod != 202607 || ten.TripCount != 1 {
		t.Fatalf("trip counter = %d in %d", ten.TripCount, ten.TripPeriod)
	}
}

func TestReleaseGivesSlotBack(t *testing.T) {
	f := newGate(t, basic)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.gate.Reserve(ctx, f.reload(t), quota.Operators); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.gate.Reserve(ctx, f.reload(t), quota.Operators); err == nil {
		t.Fatal("third operator admitted")
	}
	if err := f.gate.Release(ctx, f.tenant.ID, quota.Operators); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := f.gate.Reserve(ctx, f.reload(t), quota.Operators); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}

	// never below zero
	for i := 0; i < 5; i++ {
		if err := f.gate.Release(ctx, f.tenant.ID, quota.Vehicles); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.reload(t).VehicleCount; got != 0 {
		t.Fatalf("vehicle count = %d", got)
	}
}

func TestZeroLimitAlwaysDenies(t *testing.T) {
	f := newGate(t, model.Plan{Name: "frozen"})
	if _, err := f.gate.Reserve(context.Background(), f.reload(t), quota.Trips); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("trip on a zero-trip plan: %v", err)
	}
}

func TestReserveUnknownKind(t *testing.T) {
	f := newGate(t, basic)
	_, err := f.gate.Reserve(context.Background(), f.reload(t), quota.Kind("drivers"))
	if apperr.KindOf(err) != apperr.BadRequest {
		t.Fatalf("kind = %v", apperr.KindOf(err))
	}
}
