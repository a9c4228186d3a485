package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/device"
	"github.com/nerrad567/fieldsim-core/internal/history"
	"github.com/nerrad567/fieldsim-core/internal/irrigation"
	"github.com/nerrad567/fieldsim-core/internal/telemetry"
)

// ─── Devices ───────────────────────────────────────────────────────

func TestCreateAndGetDevice(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/devices",
		`{"name":"Orchard","type":"irrigation_controller","location":{"latitude":10,"longitude":20}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body)
	}
	created := decode[device.Device](t, w)
	if created.SensorID == "" || created.Settings != device.DefaultSettings() {
		t.Errorf("created = %+v", created)
	}

	w = env.do(t, http.MethodGet, "/api/v1/devices/"+created.SensorID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if got := decode[device.Device](t, w); got.Name != "Orchard" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestCreateDevice_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "sm_a")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"unknown type", `{"name":"x","type":"weather_balloon"}`, http.StatusBadRequest},
		{"bad latitude", `{"name":"x","type":"soil_moisture","location":{"latitude":91}}`, http.StatusBadRequest},
		{"duplicate id", `{"sensor_id":"sm_a","name":"x","type":"soil_moisture"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPost, "/api/v1/devices", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/devices/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if resp := decode[Error](t, w); resp.Code != ErrCodeNotFound {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestDeleteDevice(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "sm_a")

	if w := env.do(t, http.MethodDelete, "/api/v1/devices/sm_a", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/devices/sm_a", ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/v1/devices/sm_a", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestListDevices_Filters(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{
		`{"sensor_id":"near_sm","name":"a","type":"soil_moisture","location":{"latitude":52.2,"longitude":0.12}}`,
		`{"sensor_id":"near_em","name":"b","type":"environmental_monitor","location":{"latitude":52.21,"longitude":0.12}}`,
		`{"sensor_id":"far_sm","name":"c","type":"soil_moisture","location":{"latitude":48.85,"longitude":2.35}}`,
	} {
		if w := env.do(t, http.MethodPost, "/api/v1/devices", body); w.Code != http.StatusCreated {
			t.Fatalf("create: %d %s", w.Code, w.Body)
		}
	}

	type listResp struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		// Equal registration times order by sensor ID.
		{"all", "", []string{"far_sm", "near_em", "near_sm"}},
		{"by type", "?type=soil_moisture", []string{"far_sm", "near_sm"}},
		{"near", "?lat=52.2&lon=0.12&radius_km=5", []string{"near_sm", "near_em"}},
		{"near and type", "?lat=52.2&lon=0.12&radius_km=5&type=environmental_monitor", []string{"near_em"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/devices"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body)
			}
			resp := decode[listResp](t, w)
			if resp.Count != len(tt.want) {
				t.Fatalf("count = %d, want %d", resp.Count, len(tt.want))
			}
			for i, id := range tt.want {
				if resp.Devices[i].SensorID != id {
					t.Errorf("devices[%d] = %s, want %s", i, resp.Devices[i].SensorID, id)
				}
			}
		})
	}

	for _, q := range []string{"?type=bogus", "?lat=52.2", "?lat=x&lon=0&radius_km=1", "?lat=52&lon=0&radius_km=-1"} {
		if w := env.do(t, http.MethodGet, "/api/v1/devices"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestUpdateSettings(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "sm_a")

	w := env.do(t, http.MethodPatch, "/api/v1/devices/sm_a/settings", `{"moisture_threshold":42,"auto_mode":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	got := decode[device.Device](t, w).Settings
	if got.MoistureThreshold != 42 || got.AutoMode || got.IrrigationDuration != device.DefaultIrrigationDuration {
		t.Errorf("settings = %+v", got)
	}

	if w := env.do(t, http.MethodPatch, "/api/v1/devices/sm_a/settings", `{"water_flow_rate":0}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid patch status = %d, want 400", w.Code)
	}
}

func TestStatusAndCalibrate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "sm_a")

	w := env.do(t, http.MethodPost, "/api/v1/devices/sm_a/calibrate", `{"offset":1.5,"notes":"spring check"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("calibrate status = %d, body = %s", w.Code, w.Body)
	}
	cal := decode[device.Calibration](t, w)
	if cal.Offset != 1.5 || cal.CalibratedBy != device.DefaultOperator || !cal.CalibratedAt.Equal(testStart) {
		t.Errorf("calibration = %+v", cal)
	}

	w = env.do(t, http.MethodGet, "/api/v1/devices/sm_a/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	st := decode[device.DeviceStatus](t, w)
	if st.Calibration == nil || st.Calibration.Offset != 1.5 {
		t.Errorf("status calibration = %+v", st.Calibration)
	}

	w = env.do(t, http.MethodPut, "/api/v1/devices/sm_a/status", `{"status":"offline"}`)
	if w.Code != http.StatusOK || decode[device.Device](t, w).Status != device.StatusOffline {
		t.Errorf("set status = %d %s", w.Code, w.Body)
	}
	if w := env.do(t, http.MethodPut, "/api/v1/devices/sm_a/status", `{"status":"sleeping"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown status = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/devices/sm_a/calibrate", `{"offset":80}`); w.Code != http.StatusBadRequest {
		t.Errorf("out of range offset = %d, want 400", w.Code)
	}
}

func TestGetTelemetry(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "sm_a")

	w := env.do(t, http.MethodGet, "/api/v1/devices/sm_a/telemetry", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	r := decode[telemetry.Reading](t, w)
	if r.Moisture < 0 || r.Moisture > 100 {
		t.Errorf("moisture = %v", r.Moisture)
	}
	if len(r.History) != telemetry.DefaultHistoryPoints {
		t.Errorf("history = %d points, want %d", len(r.History), telemetry.DefaultHistoryPoints)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/devices/ghost/telemetry", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown device = %d, want 404", w.Code)
	}
}

// ─── Irrigation, history, analytics ────────────────────────────────

func TestIrrigateLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "sm_a")

	w := env.do(t, http.MethodPost, "/api/v1/devices/sm_a/irrigate", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("irrigate status = %d, body = %s", w.Code, w.Body)
	}
	res := decode[irrigation.Result](t, w)
	if res.EstimatedWaterUsage != 150 || res.Event.Status != device.EventActive {
		t.Errorf("result = %+v", res)
	}
	if !res.ExpectedCompletion.Equal(testStart.Add(15 * time.Minute)) {
		t.Errorf("expected completion = %v", res.ExpectedCompletion)
	}

	env.clock.Advance(15 * time.Minute)

	type eventsResp struct {
		Events []device.IrrigationEvent `json:"events"`
	}
	events := decode[eventsResp](t, env.do(t, http.MethodGet, "/api/v1/devices/sm_a/events", "")).Events
	if len(events) != 1 || events[0].Status != device.EventCompleted || events[0].WaterUsed != 150 {
		t.Fatalf("events = %+v", events)
	}

	type historyResp struct {
		Events []history.Entry `json:"events"`
		Count  int             `json:"count"`
	}
	hist := decode[historyResp](t, env.do(t, http.MethodGet, "/api/v1/history?devices=sm_a,ghost", ""))
	if hist.Count != 1 || hist.Events[0].DeviceName != "North field" {
		t.Errorf("history = %+v", hist)
	}

	usage := decode[history.Usage](t, env.do(t, http.MethodGet, "/api/v1/analytics/usage?devices=sm_a&period=24h", ""))
	if usage.TotalWaterUsed != 150 || usage.TotalEvents != 1 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestIrrigate_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "sm_a")

	if w := env.do(t, http.MethodPost, "/api/v1/devices/ghost/irrigate", `{}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown device = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/devices/sm_a/irrigate", `{"duration":-3}`); w.Code != http.StatusBadRequest {
		t.Errorf("negative duration = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/devices/sm_a/irrigate", `{"duration":9223372036854775}`); w.Code != http.StatusBadRequest {
		t.Errorf("oversized duration = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPatch, "/api/v1/devices/sm_a/settings", `{"irrigation_duration":1441}`); w.Code != http.StatusBadRequest {
		t.Errorf("oversized configured duration = %d, want 400", w.Code)
	}
	events := decode[struct {
		Count int `json:"count"`
	}](t, env.do(t, http.MethodGet, "/api/v1/devices/sm_a/events", ""))
	if events.Count != 0 {
		t.Errorf("rejected runs left %d events", events.Count)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/devices/sm_a/irrigate", `nope`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d, want 400", w.Code)
	}

	if err := env.scheduler.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/devices/sm_a/irrigate", `{"duration":5}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("after shutdown = %d, want 503", w.Code)
	}
}

func TestHistory_BadQuery(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/history?start=yesterday", http.StatusBadRequest},
		{"/api/v1/history?start=2026-08-03T00:00:00Z&end=2026-08-01T00:00:00Z", http.StatusBadRequest},
		{"/api/v1/history", http.StatusOK},
		{"/api/v1/analytics/usage?period=1y", http.StatusBadRequest},
		{"/api/v1/analytics/usage", http.StatusOK},
	}
	for _, tt := range tests {
		if w := env.do(t, http.MethodGet, tt.path, ""); w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestSystem(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "sm_a")
	env.do(t, http.MethodPost, "/api/v1/devices/sm_a/irrigate", "")

	w := env.do(t, http.MethodGet, "/api/v1/system", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	stats := decode[SystemStats](t, w)
	if stats.Devices.Total != 1 || stats.Devices.ByType["soil_moisture"] != 1 {
		t.Errorf("devices = %+v", stats.Devices)
	}
	if stats.Irrigation.Active != 1 || stats.Irrigation.PendingCompletions != 1 {
		t.Errorf("irrigation = %+v", stats.Irrigation)
	}
	if stats.MQTT.Enabled || stats.Database != nil {
		t.Errorf("optional components should be absent: %+v %+v", stats.MQTT, stats.Database)
	}
}

func TestSplitIDs(t *testing.T) {
	got := splitIDs(" a, b,,c ,")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitIDs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
