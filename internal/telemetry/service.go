package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/device"
	"github.com/nerrad567/fieldsim-core/internal/simulation"
)

// StateStore is the part of the device registry the read path needs.
// UpdateMoisture must run step and store its result atomically.
type StateStore interface {
	UpdateMoisture(ctx context.Context, id string, at time.Time, step func(last float64) float64) (device.SensorState, error)
}

// Observer is notified after every telemetry read.
// Implementations must not block.
type Observer interface {
	TelemetryRecorded(ctx context.Context, r Reading)
}

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service serves device telemetry, persisting each synthesized value.
type Service struct {
	store     StateStore
	synth     *Synthesizer
	clock     simulation.Clock
	observers []Observer
	logger    Logger
}

// NewService creates a telemetry service.
func NewService(store StateStore, synth *Synthesizer, clock simulation.Clock) *Service {
	return &Service{store: store, synth: synth, clock: clock, logger: noopLogger{}}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// AddObserver registers o for telemetry notifications.
// Not safe to call concurrently with Get.
func (s *Service) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Get synthesizes the current reading of a device from its last known
// moisture, stores the new value and returns it with a history series.
//
// The step from the stored moisture happens under the device lock, so an
// irrigation completing concurrently is either seen by this reading or
// applied on top of it.
//
// Returns device.ErrDeviceNotFound if the device has no sensor state.
func (s *Service) Get(ctx context.Context, id string) (*Reading, error) {
	now := s.clock.Now().UTC()

	var reading Reading
	if _, err := s.store.UpdateMoisture(ctx, id, now, func(last float64) float64 {
		reading = s.synth.Synthesize(last, now)
		return reading.Moisture
	}); err != nil {
		return nil, err
	}
	reading.SensorID = id

	s.logger.Debug("telemetry synthesized", "sensor_id", id, "moisture", reading.Moisture)
	for _, o := range s.observers {
		o.TelemetryRecorded(ctx, reading)
	}
	return &reading, nil
}
