package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tankfleet-cloud/internal/auth"
	"tankfleet-cloud/internal/events"
	registry "tankfleet-cloud/internal/registry/domain"
	registrymem "tankfleet-cloud/internal/registry/infrastructure/memory"
	schedulemem "tankfleet-cloud/internal/schedule/infrastructure/memory"
)

const (
	testPSK    = "fleet-psk"
	testSecret = "token-secret"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, tokenTTL time.Duration) (*Service, *registrymem.TankRepository, *schedulemem.Repository, *events.MemoryRecorder, *fakeClock) {
	t.Helper()
	tanks := registrymem.NewTankRepository()
	settings := schedulemem.NewRepository()
	recorder := events.NewMemoryRecorder()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	service, err := NewService(tanks, settings, recorder, nil, testPSK, []byte(testSecret), tokenTTL, clock, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, tanks, settings, recorder, clock
}

func TestRegisterRejectsBadKey(t *testing.T) {
	service, _, _, _, _ := newTestService(t, time.Hour)

	_, err := service.Register(context.Background(), "alpha", "wrong-key")
	if !errors.Is(err, auth.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestRegisterRequiresName(t *testing.T) {
	service, _, _, _, _ := newTestService(t, time.Hour)

	_, err := service.Register(context.Background(), "", testPSK)
	if !errors.Is(err, registry.ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
}

func TestRegisterCreatesTankWithDefaults(t *testing.T) {
	service, tanks, settings, recorder, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	reg, err := service.Register(ctx, "alpha", testPSK)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !reg.Created {
		t.Fatalf("expected created flag on first registration")
	}
	if reg.Token == "" {
		t.Fatalf("expected token issued")
	}

	tank, err := tanks.GetByID(ctx, reg.TankID)
	if err != nil || tank == nil {
		t.Fatalf("tank not persisted: %v", err)
	}
	if !tank.IsOnline {
		t.Fatalf("expected fresh tank online")
	}

	sched, err := settings.Get(ctx, reg.TankID)
	if err != nil || sched == nil {
		t.Fatalf("default schedule not persisted: %v", err)
	}
	if sched.LightOn.String() != "10:00" || sched.LightOff.String() != "16:00" {
		t.Fatalf("unexpected default window %s-%s", sched.LightOn, sched.LightOff)
	}
	if !sched.Enabled {
		t.Fatalf("expected schedule enabled by default")
	}
	if got := recorder.ByType(events.TypeRegistered); len(got) != 1 {
		t.Fatalf("expected one registered event, got %d", len(got))
	}
}

func TestRegisterIsIdempotentByName(t *testing.T) {
	service, _, _, recorder, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	first, err := service.Register(ctx, "alpha", testPSK)
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	second, err := service.Register(ctx, "alpha", testPSK)
	if err != nil {
		t.Fatalf("second register: %v", err)
	}

	if second.TankID != first.TankID {
		t.Fatalf("expected same tank id, got %s and %s", first.TankID, second.TankID)
	}
	if second.Created {
		t.Fatalf("re-registration must not report created")
	}
	if second.Token != first.Token {
		t.Fatalf("valid token must be reused, not rotated")
	}
	if got := recorder.ByType(events.TypeRegistered); len(got) != 1 {
		t.Fatalf("expected a single registered event, got %d", len(got))
	}
}

func TestRegisterRotatesExpiredToken(t *testing.T) {
	service, tanks, _, _, clock := newTestService(t, time.Hour)
	ctx := context.Background()

	first, err := service.Register(ctx, "alpha", testPSK)
	if err != nil {
		t.Fatalf("first register: %v", err)
	}

	clock.Advance(2 * time.Hour)
	second, err := service.Register(ctx, "alpha", testPSK)
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if second.Token == first.Token {
		t.Fatalf("expected a fresh token after expiry")
	}
	if second.TankID != first.TankID {
		t.Fatalf("identity must survive token rotation")
	}

	tank, err := tanks.GetByID(ctx, first.TankID)
	if err != nil || tank == nil {
		t.Fatalf("get tank: %v", err)
	}
	if tank.Token != second.Token {
		t.Fatalf("rotated token must be persisted")
	}
}

func TestRegisterDistinctNamesDistinctTanks(t *testing.T) {
	service, _, _, _, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	alpha, err := service.Register(ctx, "alpha", testPSK)
	if err != nil {
		t.Fatalf("register alpha: %v", err)
	}
	bravo, err := service.Register(ctx, "bravo", testPSK)
	if err != nil {
		t.Fatalf("register bravo: %v", err)
	}
	if alpha.TankID == bravo.TankID {
		t.Fatalf("distinct names must map to distinct tanks")
	}
}

func TestGetTankNotFound(t *testing.T) {
	service, _, _, _, _ := newTestService(t, time.Hour)

	_, err := service.GetTank(context.Background(), "tank-missing")
	if !errors.Is(err, registry.ErrTankNotFound) {
		t.Fatalf("expected ErrTankNotFound, got %v", err)
	}
}
