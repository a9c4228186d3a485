package events

import (
	"context"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/device"
	"github.com/nerrad567/fieldsim-core/internal/telemetry"
)

// Kind identifies an event.
type Kind string

const (
	KindIrrigationStarted   Kind = "irrigation.started"
	KindIrrigationCompleted Kind = "irrigation.completed"
	KindTelemetry           Kind = "telemetry"
)

// Event is one notification delivered to every sink.
type Event struct {
	Kind       Kind                    `json:"type"`
	SensorID   string                  `json:"sensor_id"`
	Timestamp  time.Time               `json:"timestamp"`
	Irrigation *device.IrrigationEvent `json:"irrigation,omitempty"`
	Telemetry  *telemetry.Reading      `json:"telemetry,omitempty"`
}

// DeviceID returns the sensor the event concerns.
func (e Event) DeviceID() string { return e.SensorID }

// Sink delivers events to one destination.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

// Logger defines the logging interface used by this package.
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

func irrigationEvent(kind Kind, ev device.IrrigationEvent) Event {
	at := ev.StartTime
	if kind == KindIrrigationCompleted && ev.EndTime != nil {
		at = *ev.EndTime
	}
	return Event{Kind: kind, SensorID: ev.SensorID, Timestamp: at, Irrigation: &ev}
}

// telemetryEvent drops the history series; sinks only want the sample.
func telemetryEvent(r telemetry.Reading) Event {
	r.History = nil
	return Event{Kind: KindTelemetry, SensorID: r.SensorID, Timestamp: r.Timestamp, Telemetry: &r}
}
