package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/fieldsim-core/internal/device"
	"github.com/nerrad567/fieldsim-core/internal/history"
	"github.com/nerrad567/fieldsim-core/internal/infrastructure/config"
	"github.com/nerrad567/fieldsim-core/internal/infrastructure/logging"
	"github.com/nerrad567/fieldsim-core/internal/irrigation"
	"github.com/nerrad567/fieldsim-core/internal/metrics"
	"github.com/nerrad567/fieldsim-core/internal/simulation"
	"github.com/nerrad567/fieldsim-core/internal/telemetry"
)

var testStart = time.Date(2026, 8, 3, 18, 0, 0, 0, time.UTC)

// testEnv wires a Server over real domain components and a manual clock.
type testEnv struct {
	srv       *Server
	router    http.Handler
	registry  *device.Registry
	scheduler *irrigation.Scheduler
	clock     *simulation.ManualClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := simulation.NewManualClock(testStart)
	source := simulation.NewFixedSource(0.5)
	registry := device.NewRegistry(source, clock)
	scheduler := irrigation.NewScheduler(registry, clock, time.Minute)
	t.Cleanup(func() { scheduler.Shutdown(context.Background()) }) //nolint:errcheck // test teardown

	log := logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
	collectors := metrics.New(registry.Count, func() int { return len(registry.ActiveEvents(context.Background())) })

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Metrics:    config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Logger:     log,
		Registry:   registry,
		Telemetry:  telemetry.NewService(registry, telemetry.NewSynthesizer(source, telemetry.DefaultSynthConfig()), clock),
		Scheduler:  scheduler,
		History:    history.NewAggregator(registry, clock),
		Collectors: collectors,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	srv.hub = NewHub(srv.wsCfg, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return &testEnv{
		srv:       srv,
		router:    srv.buildRouter(),
		registry:  registry,
		scheduler: scheduler,
		clock:     clock,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(t *testing.T, id string) {
	t.Helper()
	body := `{"sensor_id":"` + id + `","name":"North field","type":"soil_moisture",` +
		`"location":{"latitude":52.2,"longitude":0.12,"field":"north"}}`
	if w := e.do(t, http.MethodPost, "/api/v1/devices", body); w.Code != http.StatusCreated {
		t.Fatalf("register %s: status = %d, body = %s", id, w.Code, w.Body)
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Health & Middleware ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("response = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q", got)
	}
}

func TestBodySizeLimit(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.MaxBodyBytes = 64
	router := env.srv.buildRouter()

	body := `{"name":"` + strings.Repeat("x", 200) + `","type":"soil_moisture"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t)
	handler := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "sm_a")
	env.do(t, http.MethodGet, "/api/v1/devices/sm_a/telemetry", "")

	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"fieldsim_devices_registered 1",
		`route="/api/v1/devices/{id}/telemetry"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestNotFoundRoute(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/v1/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── Server lifecycle ──────────────────────────────────────────────

func TestNew_MissingDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() with no deps should fail")
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := newTestEnv(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start should fail")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func newTestClient(channels, devices []string) *wsClient {
	return &wsClient{
		outbox: make(chan []byte, outboxSize),
		filter: newFilter(channels, devices),
	}
}

type scopedPayload struct {
	Sensor string `json:"sensor_id"`
}

func (p scopedPayload) DeviceID() string { return p.Sensor }

func TestHub_BroadcastFiltering(t *testing.T) {
	env := newTestEnv(t)
	hub := env.srv.hub

	clients := map[string]*wsClient{
		"channel":       newTestClient([]string{"irrigation.started"}, nil),
		"wildcard":      newTestClient([]string{ChannelAll}, nil),
		"other channel": newTestClient([]string{"telemetry"}, nil),
		"same device":   newTestClient([]string{ChannelAll}, []string{"sm_a"}),
		"other device":  newTestClient([]string{ChannelAll}, []string{"sm_b"}),
	}
	for _, c := range clients {
		if !hub.add(c) {
			t.Fatal("hub refused client")
		}
	}

	hub.Broadcast("irrigation.started", scopedPayload{Sensor: "sm_a"})

	want := map[string]bool{
		"channel":       true,
		"wildcard":      true,
		"other channel": false,
		"same device":   true,
		"other device":  false,
	}
	for name, c := range clients {
		select {
		case data := <-c.outbox:
			if !want[name] {
				t.Errorf("%s: unexpected delivery", name)
				continue
			}
			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if f.Type != FrameEvent || f.Channel != "irrigation.started" {
				t.Errorf("%s: frame = %+v", name, f)
			}
		case <-time.After(50 * time.Millisecond):
			if want[name] {
				t.Errorf("%s: no delivery", name)
			}
		}
	}

	if hub.ClientCount() != len(clients) {
		t.Errorf("client count = %d, want %d", hub.ClientCount(), len(clients))
	}
	hub.remove(clients["other device"])
	hub.remove(clients["other device"])
	if hub.ClientCount() != len(clients)-1 {
		t.Errorf("after remove count = %d", hub.ClientCount())
	}
}

func TestHub_UnscopedPayloadIgnoresDeviceFilter(t *testing.T) {
	env := newTestEnv(t)
	c := newTestClient([]string{"telemetry"}, []string{"sm_b"})
	env.srv.hub.add(c)

	env.srv.hub.Broadcast("telemetry", map[string]string{"note": "fleet-wide"})

	select {
	case <-c.outbox:
	case <-time.After(time.Second):
		t.Error("unscoped payload not delivered")
	}
}

func dialWS(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws"+query, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	return ws
}

func TestWebSocket_SubscribeAndBroadcast(t *testing.T) {
	env := newTestEnv(t)
	ws := dialWS(t, env, "")

	if err := ws.WriteJSON(Frame{
		Type:     FrameSubscribe,
		ID:       "sub-1",
		Channels: []string{"irrigation.completed"},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	var resp Frame
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if resp.Type != FrameAck || resp.ID != "sub-1" {
		t.Fatalf("ack = %+v", resp)
	}

	env.srv.hub.Broadcast("irrigation.completed", scopedPayload{Sensor: "sm_a"})

	resp = Frame{}
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if resp.Type != FrameEvent || resp.Channel != "irrigation.completed" {
		t.Errorf("broadcast = %+v", resp)
	}
}

func TestWebSocket_QuerySubscription(t *testing.T) {
	env := newTestEnv(t)
	ws := dialWS(t, env, "?channels=telemetry&devices=sm_a")

	// The upgrade returns before the client is registered.
	deadline := time.Now().Add(time.Second)
	for env.srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	env.srv.hub.Broadcast("telemetry", scopedPayload{Sensor: "sm_b"})
	env.srv.hub.Broadcast("telemetry", scopedPayload{Sensor: "sm_a"})

	var resp Frame
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok || data["sensor_id"] != "sm_a" {
		t.Errorf("first event = %+v, want sm_a only", resp)
	}
}

func TestWebSocket_Frames(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantType string
		wantID   string
	}{
		{"ping", `{"type":"ping","id":"p1"}`, FramePong, "p1"},
		{"empty subscribe", `{"type":"subscribe","id":"s1"}`, FrameError, "s1"},
		{"unsubscribe", `{"type":"unsubscribe","id":"u1","channels":["telemetry"]}`, FrameAck, "u1"},
		{"unknown", `{"type":"shout","id":"x1"}`, FrameError, "x1"},
		{"malformed", `{not json`, FrameError, ""},
	}

	env := newTestEnv(t)
	ws := dialWS(t, env, "")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(tt.in)); err != nil {
				t.Fatalf("write: %v", err)
			}
			var resp Frame
			if err := ws.ReadJSON(&resp); err != nil {
				t.Fatalf("read: %v", err)
			}
			if resp.Type != tt.wantType || resp.ID != tt.wantID {
				t.Errorf("reply = %+v, want type %q id %q", resp, tt.wantType, tt.wantID)
			}
		})
	}
}
