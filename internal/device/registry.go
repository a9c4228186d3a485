package device

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/simulation"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Simulated vitals reported by Status.
const (
	minBattery = 0.0
	maxBattery = 100.0
	minSignal  = 40.0
	maxSignal  = 100.0

	// irrigationBoost is added to a sensor's moisture when an irrigation completes.
	irrigationBoost = 20.0
)

// entry holds everything the registry knows about one device.
// mu serialises writers to the device, its sensor state and its event log.
type entry struct {
	mu     sync.RWMutex
	device Device
	state  SensorState
	events []IrrigationEvent
	seq    int
}

// Registry is the in-memory catalogue of simulated devices.
//
// The device map is guarded by mu; each device is guarded by its own lock,
// so operations on unrelated devices never contend beyond the map lookup.
// Lock order is always registry then entry, and mu is never held while an
// entry is locked for writing.
//
// All public methods are thread-safe and return copies.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*entry

	source simulation.Source
	clock  simulation.Clock
	newID  func(DeviceType, time.Time) string
	logger Logger
}

// NewRegistry creates an empty registry using source for seeded readings and
// simulated vitals, and clock for timestamps.
func NewRegistry(source simulation.Source, clock simulation.Clock) *Registry {
	return &Registry{
		devices: make(map[string]*entry),
		source:  source,
		clock:   clock,
		newID:   GenerateID,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds a device and seeds its sensor state.
//
// Omitted settings take the defaults. When req.SensorID is empty an ID is
// generated, regenerating on collision. A supplied ID that is already taken
// returns ErrDeviceExists.
func (r *Registry) Register(_ context.Context, req RegisterRequest) (*Device, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	settings := req.Settings.Apply(DefaultSettings())
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	now := r.clock.Now().UTC()
	e := &entry{
		device: Device{
			Name:         req.Name,
			Type:         req.Type,
			Location:     req.Location,
			Settings:     settings,
			Status:       StatusOnline,
			RegisteredAt: now,
			LastPing:     now,
			LastUpdated:  now,
		},
		state: SensorState{
			LastMoisture: simulation.SeedMoisture(r.source),
			LastUpdate:   now,
		},
	}

	r.mu.Lock()
	id := req.SensorID
	if id != "" {
		if _, exists := r.devices[id]; exists {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrDeviceExists, id)
		}
	} else {
		for {
			id = r.newID(req.Type, now)
			if _, exists := r.devices[id]; !exists {
				break
			}
			r.logger.Debug("generated sensor id collided, regenerating", "sensor_id", id)
		}
	}
	e.device.SensorID = id
	if e.device.Name == "" {
		e.device.Name = id
	}
	dev := e.device.DeepCopy()
	seed := e.state.LastMoisture
	r.devices[id] = e
	r.mu.Unlock()

	r.logger.Info("device registered", "sensor_id", id, "type", req.Type, "moisture", seed)
	return dev, nil
}

// Unregister removes a device together with its sensor state and event log.
// Pending irrigation completions for it become no-ops.
func (r *Registry) Unregister(_ context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.devices[id]
	delete(r.devices, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	r.logger.Info("device unregistered", "sensor_id", id)
	return nil
}

// Get retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(_ context.Context, id string) (*Device, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.device.DeepCopy(), nil
}

// UpdateSettings merges patch over the device's settings.
//
// The merged result is validated before anything is written, so an invalid
// patch leaves the device untouched. Readers see either the old or the new
// settings, never a mix.
func (r *Registry) UpdateSettings(_ context.Context, id string, patch SettingsPatch) (*Device, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	merged := patch.Apply(e.device.Settings)
	if err := ValidateSettings(merged); err != nil {
		return nil, err
	}
	e.device.Settings = merged
	e.device.LastUpdated = r.clock.Now().UTC()

	r.logger.Debug("device settings updated", "sensor_id", id)
	return e.device.DeepCopy(), nil
}

// SetStatus marks a device online or offline.
func (r *Registry) SetStatus(_ context.Context, id string, status Status) (*Device, error) {
	if status != StatusOnline && status != StatusOffline {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidConfiguration, status)
	}
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.device.Status = status
	e.device.LastUpdated = r.clock.Now().UTC()
	return e.device.DeepCopy(), nil
}

// Calibrate records a calibration, replacing any previous one.
func (r *Registry) Calibrate(_ context.Context, id string, in CalibrationInput) (*Calibration, error) {
	if err := ValidateCalibration(in); err != nil {
		return nil, err
	}
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	operator := in.CalibratedBy
	if operator == "" {
		operator = DefaultOperator
	}
	now := r.clock.Now().UTC()
	cal := &Calibration{
		Offset:       in.Offset,
		Notes:        in.Notes,
		CalibratedBy: operator,
		CalibratedAt: now,
	}
	if in.ReferenceMoisture != nil {
		ref := *in.ReferenceMoisture
		cal.ReferenceMoisture = &ref
	}

	e.mu.Lock()
	e.device.Calibration = cal
	e.device.LastUpdated = now
	out := e.device.DeepCopy().Calibration
	e.mu.Unlock()

	r.logger.Info("device calibrated", "sensor_id", id, "operator", operator)
	return out, nil
}

// Status returns a snapshot of a device with freshly synthesized vitals.
func (r *Registry) Status(_ context.Context, id string) (*DeviceStatus, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	dev := e.device.DeepCopy()
	moisture := e.state.LastMoisture
	active := 0
	for i := range e.events {
		if e.events[i].Status == EventActive {
			active++
		}
	}
	e.mu.RUnlock()

	return &DeviceStatus{
		SensorID:          dev.SensorID,
		Name:              dev.Name,
		Type:              dev.Type,
		Status:            dev.Status,
		Location:          dev.Location,
		Settings:          dev.Settings,
		Calibration:       dev.Calibration,
		Moisture:          moisture,
		BatteryLevel:      simulation.RoundTenth(simulation.Uniform(r.source, minBattery, maxBattery)),
		SignalStrength:    simulation.RoundTenth(simulation.Uniform(r.source, minSignal, maxSignal)),
		ActiveIrrigations: active,
		LastPing:          dev.LastPing,
		ObservedAt:        r.clock.Now().UTC(),
	}, nil
}

// List returns every device ordered by registration time.
func (r *Registry) List(_ context.Context) []Device {
	return r.filter(func(*Device) bool { return true })
}

// ListByType returns the devices of type t ordered by registration time.
func (r *Registry) ListByType(_ context.Context, t DeviceType) []Device {
	return r.filter(func(d *Device) bool { return d.Type == t })
}

// ListNear returns devices within radiusKm of (lat, lon), nearest first.
// The radius is inclusive.
func (r *Registry) ListNear(_ context.Context, lat, lon, radiusKm float64) ([]Device, error) {
	if err := ValidateLocation(Location{Latitude: lat, Longitude: lon}); err != nil {
		return nil, err
	}
	if !finite(radiusKm) || radiusKm < 0 {
		return nil, fmt.Errorf("%w: radius %v must be non-negative", ErrInvalidConfiguration, radiusKm)
	}

	distances := make(map[string]float64)
	devices := r.filter(func(d *Device) bool {
		dist := DistanceKm(lat, lon, d.Location.Latitude, d.Location.Longitude)
		if dist <= radiusKm {
			distances[d.SensorID] = dist
			return true
		}
		return false
	})
	sort.SliceStable(devices, func(i, j int) bool {
		return distances[devices[i].SensorID] < distances[devices[j].SensorID]
	})
	return devices, nil
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// SensorState returns the current simulated reading of a device.
func (r *Registry) SensorState(_ context.Context, id string) (SensorState, error) {
	e, err := r.lookup(id)
	if err != nil {
		return SensorState{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, nil
}

// RecordMoisture stores a new reading for a device. The value is clamped to
// the moisture bounds; the device's last ping moves to at.
func (r *Registry) RecordMoisture(ctx context.Context, id string, value float64, at time.Time) (SensorState, error) {
	return r.UpdateMoisture(ctx, id, at, func(float64) float64 { return value })
}

// UpdateMoisture replaces a device's moisture with step(last) in a single
// critical section, so a completion cannot land between the read and the
// write. step runs under the device lock and must not call the registry.
// The result is clamped to the moisture bounds; the last ping moves to at.
func (r *Registry) UpdateMoisture(_ context.Context, id string, at time.Time, step func(last float64) float64) (SensorState, error) {
	e, err := r.lookup(id)
	if err != nil {
		return SensorState{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next := step(e.state.LastMoisture)
	e.state = SensorState{LastMoisture: simulation.ClampMoisture(next), LastUpdate: at.UTC()}
	e.device.LastPing = at.UTC()
	return e.state, nil
}

// StartIrrigation appends an active irrigation event to a device's log.
//
// The effective duration is requestedMinutes when positive, otherwise the
// device's configured duration. The flow rate is captured from the current
// settings. A duration over MaxIrrigationDuration is rejected with
// ErrInvalidConfiguration and creates no event.
func (r *Registry) StartIrrigation(_ context.Context, id string, requestedMinutes int) (*IrrigationEvent, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if requestedMinutes > MaxIrrigationDuration {
		return nil, ValidateDuration(requestedMinutes)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	duration := requestedMinutes
	if duration <= 0 {
		duration = e.device.Settings.IrrigationDuration
	}
	start := r.clock.Now().UTC()
	e.seq++
	ev := IrrigationEvent{
		ID:            eventID(start, e.seq),
		SensorID:      id,
		StartTime:     start,
		Duration:      duration,
		WaterFlowRate: e.device.Settings.WaterFlowRate,
		Status:        EventActive,
	}
	e.events = append(e.events, ev)
	return &ev, nil
}

// CompleteIrrigation moves an active event to completed and boosts the
// device's moisture by irrigationBoost, capped at the moisture ceiling.
//
// Returns ErrEventCompleted if the event already completed, so a completion
// can never be applied twice.
func (r *Registry) CompleteIrrigation(_ context.Context, id, eventID string, at time.Time) (*IrrigationEvent, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.eventIndex(eventID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrEventNotFound, id, eventID)
	}
	ev := &e.events[idx]
	if ev.Status != EventActive {
		return nil, fmt.Errorf("%w: %s/%s", ErrEventCompleted, id, eventID)
	}

	end := at.UTC()
	ev.EndTime = &end
	ev.Status = EventCompleted
	ev.ActualDuration = ev.Duration
	ev.WaterUsed = ev.EstimatedWaterUsage()

	e.state.LastMoisture = simulation.ClampMoisture(math.Min(simulation.MaxMoisture, e.state.LastMoisture+irrigationBoost))
	e.state.LastUpdate = end

	out := ev.clone()
	return &out, nil
}

// Events returns a copy of a device's irrigation log in insertion order.
func (r *Registry) Events(_ context.Context, id string) ([]IrrigationEvent, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneEvents(e.events), nil
}

// ActiveEvents returns every active irrigation event across all devices.
func (r *Registry) ActiveEvents(_ context.Context) []IrrigationEvent {
	var out []IrrigationEvent
	for _, e := range r.entries() {
		e.mu.RLock()
		for i := range e.events {
			if e.events[i].Status == EventActive {
				out = append(out, e.events[i].clone())
			}
		}
		e.mu.RUnlock()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Snapshot returns the full state of every device.
func (r *Registry) Snapshot(_ context.Context) []Record {
	entries := r.entries()
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		records = append(records, Record{
			Device: *e.device.DeepCopy(),
			State:  e.state,
			Events: cloneEvents(e.events),
		})
		e.mu.RUnlock()
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Device.SensorID < records[j].Device.SensorID
	})
	return records
}

// Restore replaces the registry contents with records.
// Records are validated first; on error the registry is unchanged.
func (r *Registry) Restore(_ context.Context, records []Record) error {
	devices := make(map[string]*entry, len(records))
	for i := range records {
		rec := records[i]
		id := rec.Device.SensorID
		if id == "" {
			return fmt.Errorf("%w: record %d has no sensor id", ErrInvalidConfiguration, i)
		}
		if _, dup := devices[id]; dup {
			return fmt.Errorf("%w: %s", ErrDeviceExists, id)
		}
		if err := ValidateSettings(rec.Device.Settings); err != nil {
			return fmt.Errorf("restoring %s: %w", id, err)
		}
		for _, ev := range rec.Events {
			if err := ValidateDuration(ev.Duration); err != nil {
				return fmt.Errorf("restoring %s event %s: %w", id, ev.ID, err)
			}
		}
		rec.State.LastMoisture = simulation.ClampMoisture(rec.State.LastMoisture)
		devices[id] = &entry{
			device: *rec.Device.DeepCopy(),
			state:  rec.State,
			events: cloneEvents(rec.Events),
			seq:    len(rec.Events),
		}
	}

	r.mu.Lock()
	r.devices = devices
	r.mu.Unlock()

	r.logger.Info("registry restored", "count", len(devices))
	return nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.devices[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return e, nil
}

// entries snapshots the entry pointers so callers can lock entries without
// holding the registry lock.
func (r *Registry) entries() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, 0, len(r.devices))
	for _, e := range r.devices {
		out = append(out, e)
	}
	return out
}

func (r *Registry) filter(keep func(*Device) bool) []Device {
	devices := make([]Device, 0)
	for _, e := range r.entries() {
		e.mu.RLock()
		if keep(&e.device) {
			devices = append(devices, *e.device.DeepCopy())
		}
		e.mu.RUnlock()
	}
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].RegisteredAt.Equal(devices[j].RegisteredAt) {
			return devices[i].SensorID < devices[j].SensorID
		}
		return devices[i].RegisteredAt.Before(devices[j].RegisteredAt)
	})
	return devices
}

func (e *entry) eventIndex(eventID string) int {
	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].ID == eventID {
			return i
		}
	}
	return -1
}

func eventID(start time.Time, seq int) string {
	return "irr_" + strconv.FormatInt(start.UnixMilli(), 36) + "_" + strconv.Itoa(seq)
}

func cloneEvents(events []IrrigationEvent) []IrrigationEvent {
	out := make([]IrrigationEvent, len(events))
	for i := range events {
		out[i] = events[i].clone()
	}
	return out
}
