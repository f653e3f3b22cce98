package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tankfleet-cloud/internal/auth"
	commandsapp "tankfleet-cloud/internal/commands/application"
	commandsmem "tankfleet-cloud/internal/commands/infrastructure/memory"
	commandshttp "tankfleet-cloud/internal/commands/interfaces/http"
	"tankfleet-cloud/internal/events"
	livenessapp "tankfleet-cloud/internal/liveness/application"
	livenesshttp "tankfleet-cloud/internal/liveness/interfaces/http"
	registryapp "tankfleet-cloud/internal/registry/application"
	registrymem "tankfleet-cloud/internal/registry/infrastructure/memory"
	registryhttp "tankfleet-cloud/internal/registry/interfaces/http"
	scheduleapp "tankfleet-cloud/internal/schedule/application"
	schedulemem "tankfleet-cloud/internal/schedule/infrastructure/memory"
	schedulehttp "tankfleet-cloud/internal/schedule/interfaces/http"
)

const (
	flowPSK    = "fleet-psk"
	flowSecret = "flow-secret"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type harness struct {
	server *httptest.Server
	clock  *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Now().UTC()}
	tanks := registrymem.NewTankRepository()
	settings := schedulemem.NewRepository()
	recorder := events.NewMemoryRecorder()

	registryService, err := registryapp.NewService(tanks, settings, recorder, nil, flowPSK, []byte(flowSecret), time.Hour, clock, nil)
	if err != nil {
		t.Fatalf("registry service: %v", err)
	}
	monitor, err := livenessapp.NewMonitor(tanks, recorder, nil, 2*time.Minute, clock, nil)
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	queue, err := commandsapp.NewQueue(commandsmem.NewRepository(), tanks, recorder, nil, 3, clock, nil)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	scheduleService, err := scheduleapp.NewService(settings, tanks, queue, recorder, nil, clock, nil)
	if err != nil {
		t.Fatalf("schedule service: %v", err)
	}

	registerHandler, err := registryhttp.NewRegisterHandler(registryService)
	if err != nil {
		t.Fatalf("register handler: %v", err)
	}
	heartbeatHandler, err := livenesshttp.NewHeartbeatHandler(monitor)
	if err != nil {
		t.Fatalf("heartbeat handler: %v", err)
	}
	deviceHandler, err := commandshttp.NewDeviceHandler(queue)
	if err != nil {
		t.Fatalf("device handler: %v", err)
	}
	ackHandler, err := commandshttp.NewAckHandler(queue)
	if err != nil {
		t.Fatalf("ack handler: %v", err)
	}
	adminHandler, err := commandshttp.NewAdminHandler(queue)
	if err != nil {
		t.Fatalf("admin handler: %v", err)
	}
	scheduleHandler, err := schedulehttp.NewHandler(scheduleService)
	if err != nil {
		t.Fatalf("schedule handler: %v", err)
	}

	deviceAuth := auth.NewDeviceMiddleware([]byte(flowSecret))
	adminAuth := auth.NewMiddleware([]byte(flowSecret), auth.NewDefaultPolicy([]string{"/healthz"}, []string{"/api/v1/node/"}))

	mux := http.NewServeMux()
	mux.Handle("/api/v1/node/register", registerHandler)
	mux.Handle("/api/v1/node/heartbeat", deviceAuth.Wrap(heartbeatHandler))
	mux.Handle("/api/v1/node/command", deviceAuth.Wrap(deviceHandler))
	mux.Handle("/api/v1/node/command/ack", deviceAuth.Wrap(ackHandler))
	mux.Handle("/api/v1/commands", adminHandler)
	mux.Handle("/api/v1/tanks/", scheduleHandler)

	server := httptest.NewServer(adminAuth.Wrap(mux))
	t.Cleanup(server.Close)
	return &harness{server: server, clock: clock}
}

func (h *harness) post(t *testing.T, path, token string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, h.server.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func (h *harness) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func (h *harness) adminToken(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.MintAdminToken([]byte(flowSecret), "ops", role, h.clock.Now(), time.Hour)
	if err != nil {
		t.Fatalf("admin token: %v", err)
	}
	return token
}

func TestDeviceLifecycle(t *testing.T) {
	h := newHarness(t)

	// Register a fresh tank with the fleet key.
	resp := h.post(t, "/api/v1/node/register", "", map[string]string{"name": "alpha", "key": flowPSK})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d", resp.StatusCode)
	}
	var reg struct {
		TankID string `json:"tank_id"`
		Token  string `json:"token"`
	}
	decode(t, resp, &reg)
	if reg.TankID == "" || reg.Token == "" {
		t.Fatalf("incomplete registration %+v", reg)
	}

	// Re-registration returns the same identity.
	resp = h.post(t, "/api/v1/node/register", "", map[string]string{"name": "alpha", "key": flowPSK})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-register status %d", resp.StatusCode)
	}
	var again struct {
		TankID string `json:"tank_id"`
	}
	decode(t, resp, &again)
	if again.TankID != reg.TankID {
		t.Fatalf("identity changed on re-register")
	}

	// Wrong key is rejected before any name handling.
	resp = h.post(t, "/api/v1/node/register", "", map[string]string{"name": "alpha", "key": "nope"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad key status %d", resp.StatusCode)
	}

	// Heartbeat with telemetry.
	resp = h.post(t, "/api/v1/node/heartbeat", reg.Token, map[string]any{"light_state": false, "temperature": 24.8})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("heartbeat status %d", resp.StatusCode)
	}

	// Empty queue polls 204.
	resp = h.get(t, "/api/v1/node/command", reg.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("empty poll status %d", resp.StatusCode)
	}

	// Operator forces the light on; the device's next poll delivers it.
	operator := h.adminToken(t, "operator")
	resp = h.post(t, "/api/v1/tanks/"+reg.TankID+"/override", operator, map[string]string{"state": "on"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("override status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = h.get(t, "/api/v1/node/command", reg.Token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll status %d", resp.StatusCode)
	}
	var cmd struct {
		CommandID string `json:"command_id"`
		Type      string `json:"type"`
		Source    string `json:"source"`
	}
	decode(t, resp, &cmd)
	if cmd.Type != "light_on" || cmd.Source != "manual" {
		t.Fatalf("unexpected command %+v", cmd)
	}

	// Ack success settles it; the queue is empty again.
	resp = h.post(t, "/api/v1/node/command/ack", reg.Token, map[string]any{"command_id": cmd.CommandID, "success": true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("ack status %d", resp.StatusCode)
	}
	resp = h.get(t, "/api/v1/node/command", reg.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("post-ack poll status %d", resp.StatusCode)
	}
}

func TestDeviceEndpointsRequireToken(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/api/v1/node/command", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestAdminEndpointsEnforceRoles(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, "/api/v1/node/register", "", map[string]string{"name": "alpha", "key": flowPSK})
	var reg struct {
		TankID string `json:"tank_id"`
	}
	decode(t, resp, &reg)

	viewer := h.adminToken(t, "viewer")
	resp = h.post(t, "/api/v1/commands", viewer, map[string]string{"tank_id": reg.TankID, "type": "feed_now"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer issue status %d", resp.StatusCode)
	}

	operator := h.adminToken(t, "operator")
	resp = h.post(t, "/api/v1/commands", operator, map[string]string{"tank_id": reg.TankID, "type": "feed_now"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("operator issue status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = h.get(t, "/api/v1/commands?tank_id="+reg.TankID, viewer)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("viewer history status %d", resp.StatusCode)
	}
	var history []struct {
		Type string `json:"type"`
	}
	decode(t, resp, &history)
	if len(history) != 1 || history[0].Type != "feed_now" {
		t.Fatalf("unexpected history %+v", history)
	}
}
