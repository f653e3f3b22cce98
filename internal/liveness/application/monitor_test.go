package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tankfleet-cloud/internal/events"
	registry "tankfleet-cloud/internal/registry/domain"
	registrymem "tankfleet-cloud/internal/registry/infrastructure/memory"
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

func newTestMonitor(t *testing.T) (*Monitor, *registrymem.TankRepository, *events.MemoryRecorder, *fakeClock) {
	t.Helper()
	tanks := registrymem.NewTankRepository()
	recorder := events.NewMemoryRecorder()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	monitor, err := NewMonitor(tanks, recorder, nil, 2*time.Minute, clock, nil)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return monitor, tanks, recorder, clock
}

func seedTank(t *testing.T, tanks *registrymem.TankRepository, id string) {
	t.Helper()
	err := tanks.Create(context.Background(), &registry.Tank{
		ID:        id,
		Name:      "tank " + id,
		Token:     "token-" + id,
		CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed tank: %v", err)
	}
}

func TestHeartbeatUnknownTank(t *testing.T) {
	monitor, _, _, _ := newTestMonitor(t)
	err := monitor.RecordHeartbeat(context.Background(), "tank-missing", registry.Telemetry{})
	if !errors.Is(err, registry.ErrTankNotFound) {
		t.Fatalf("expected ErrTankNotFound, got %v", err)
	}
}

func TestHeartbeatBringsTankOnline(t *testing.T) {
	monitor, tanks, recorder, _ := newTestMonitor(t)
	seedTank(t, tanks, "tank-1")
	ctx := context.Background()

	light := true
	temp := 25.5
	if err := monitor.RecordHeartbeat(ctx, "tank-1", registry.Telemetry{LightState: &light, Temperature: &temp}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	tank, err := tanks.GetByID(ctx, "tank-1")
	if err != nil {
		t.Fatalf("get tank: %v", err)
	}
	if !tank.IsOnline {
		t.Fatalf("expected tank online after heartbeat")
	}
	if tank.LightState == nil || !*tank.LightState {
		t.Fatalf("expected light state stored")
	}
	if tank.Temperature == nil || *tank.Temperature != 25.5 {
		t.Fatalf("expected temperature stored")
	}
	if got := recorder.ByType(events.TypeOnline); len(got) != 1 {
		t.Fatalf("expected one online event, got %d", len(got))
	}
}

func TestHeartbeatWhileOnlineEmitsNoEvent(t *testing.T) {
	monitor, tanks, recorder, clock := newTestMonitor(t)
	seedTank(t, tanks, "tank-1")
	ctx := context.Background()

	if err := monitor.RecordHeartbeat(ctx, "tank-1", registry.Telemetry{}); err != nil {
		t.Fatalf("first heartbeat: %v", err)
	}
	clock.Advance(30 * time.Second)
	if err := monitor.RecordHeartbeat(ctx, "tank-1", registry.Telemetry{}); err != nil {
		t.Fatalf("second heartbeat: %v", err)
	}

	if got := recorder.ByType(events.TypeOnline); len(got) != 1 {
		t.Fatalf("expected a single online event, got %d", len(got))
	}
}

func TestHeartbeatKeepsPriorTelemetry(t *testing.T) {
	monitor, tanks, _, clock := newTestMonitor(t)
	seedTank(t, tanks, "tank-1")
	ctx := context.Background()

	light := false
	if err := monitor.RecordHeartbeat(ctx, "tank-1", registry.Telemetry{LightState: &light}); err != nil {
		t.Fatalf("first heartbeat: %v", err)
	}
	clock.Advance(time.Minute)
	// Heartbeat with no light field must not erase the stored value.
	if err := monitor.RecordHeartbeat(ctx, "tank-1", registry.Telemetry{}); err != nil {
		t.Fatalf("second heartbeat: %v", err)
	}

	tank, err := tanks.GetByID(ctx, "tank-1")
	if err != nil {
		t.Fatalf("get tank: %v", err)
	}
	if tank.LightState == nil || *tank.LightState {
		t.Fatalf("expected prior light state preserved, got %+v", tank.LightState)
	}
}

func TestSweepMarksStaleTankOffline(t *testing.T) {
	monitor, tanks, recorder, clock := newTestMonitor(t)
	seedTank(t, tanks, "tank-1")
	seedTank(t, tanks, "tank-2")
	ctx := context.Background()

	if err := monitor.RecordHeartbeat(ctx, "tank-1", registry.Telemetry{}); err != nil {
		t.Fatalf("heartbeat tank-1: %v", err)
	}
	clock.Advance(90 * time.Second)
	if err := monitor.RecordHeartbeat(ctx, "tank-2", registry.Telemetry{}); err != nil {
		t.Fatalf("heartbeat tank-2: %v", err)
	}

	// tank-1 last seen 150s ago, tank-2 60s ago.
	clock.Advance(time.Minute)
	taken, err := monitor.Sweep(ctx, clock.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if taken != 1 {
		t.Fatalf("expected 1 tank taken offline, got %d", taken)
	}

	one, _ := tanks.GetByID(ctx, "tank-1")
	two, _ := tanks.GetByID(ctx, "tank-2")
	if one.IsOnline {
		t.Fatalf("expected tank-1 offline")
	}
	if !two.IsOnline {
		t.Fatalf("expected tank-2 still online")
	}
	if got := recorder.ByType(events.TypeOffline); len(got) != 1 || got[0].TankID != "tank-1" {
		t.Fatalf("expected one offline event for tank-1, got %+v", got)
	}
}

func TestSweepAtExactThreshold(t *testing.T) {
	monitor, tanks, _, clock := newTestMonitor(t)
	seedTank(t, tanks, "tank-1")
	ctx := context.Background()

	if err := monitor.RecordHeartbeat(ctx, "tank-1", registry.Telemetry{}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	// Exactly the threshold counts as stale.
	clock.Advance(2 * time.Minute)
	taken, err := monitor.Sweep(ctx, clock.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if taken != 1 {
		t.Fatalf("expected tank offline at exact threshold, got %d", taken)
	}
}

func TestSweepIgnoresAlreadyOffline(t *testing.T) {
	monitor, tanks, recorder, clock := newTestMonitor(t)
	seedTank(t, tanks, "tank-1")
	ctx := context.Background()

	if err := monitor.RecordHeartbeat(ctx, "tank-1", registry.Telemetry{}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	clock.Advance(3 * time.Minute)
	if _, err := monitor.Sweep(ctx, clock.Now()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	clock.Advance(time.Minute)
	taken, err := monitor.Sweep(ctx, clock.Now())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if taken != 0 {
		t.Fatalf("expected no transition for already offline tank, got %d", taken)
	}
	if got := recorder.ByType(events.TypeOffline); len(got) != 1 {
		t.Fatalf("expected a single offline event, got %d", len(got))
	}
}

func TestOfflineThenHeartbeatComesBack(t *testing.T) {
	monitor, tanks, recorder, clock := newTestMonitor(t)
	seedTank(t, tanks, "tank-1")
	ctx := context.Background()

	if err := monitor.RecordHeartbeat(ctx, "tank-1", registry.Telemetry{}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	clock.Advance(5 * time.Minute)
	if _, err := monitor.Sweep(ctx, clock.Now()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if err := monitor.RecordHeartbeat(ctx, "tank-1", registry.Telemetry{}); err != nil {
		t.Fatalf("comeback heartbeat: %v", err)
	}

	tank, _ := tanks.GetByID(ctx, "tank-1")
	if !tank.IsOnline {
		t.Fatalf("expected tank back online")
	}
	if got := recorder.ByType(events.TypeOnline); len(got) != 2 {
		t.Fatalf("expected two online events, got %d", len(got))
	}
}
