package events

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/fieldsim-core/internal/device"
	"github.com/nerrad567/fieldsim-core/internal/telemetry"
)

// DefaultQueueSize is used when NewDispatcher is given a non-positive size.
const DefaultQueueSize = 256

// Dispatcher queues events and delivers them to its sinks in order.
type Dispatcher struct {
	sinks  []Sink
	queue  chan Event
	logger Logger
	onDrop func()

	dropped atomic.Uint64
}

// NewDispatcher creates a dispatcher with a queue of size events.
func NewDispatcher(size int, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		sinks:  sinks,
		queue:  make(chan Event, size),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetOnDrop registers a callback invoked whenever the queue is full and an
// event is discarded. Must be called before Run.
func (d *Dispatcher) SetOnDrop(fn func()) {
	d.onDrop = fn
}

// Dropped returns the number of events discarded so far.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// IrrigationStarted implements irrigation.Observer.
func (d *Dispatcher) IrrigationStarted(_ context.Context, ev device.IrrigationEvent) {
	d.Publish(irrigationEvent(KindIrrigationStarted, ev))
}

// IrrigationCompleted implements irrigation.Observer.
func (d *Dispatcher) IrrigationCompleted(_ context.Context, ev device.IrrigationEvent) {
	d.Publish(irrigationEvent(KindIrrigationCompleted, ev))
}

// TelemetryRecorded implements telemetry.Observer.
func (d *Dispatcher) TelemetryRecorded(_ context.Context, r telemetry.Reading) {
	d.Publish(telemetryEvent(r))
}

// Publish enqueues e without blocking. A full queue drops the event.
func (d *Dispatcher) Publish(e Event) {
	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
		if d.onDrop != nil {
			d.onDrop()
		}
		d.logger.Warn("event queue full, dropping event", "kind", e.Kind, "sensor_id", e.SensorID)
	}
}

// Run delivers queued events until ctx is cancelled, then drains whatever
// is already queued and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	// Sinks get a live context for the final flush.
	ctx := context.Background()
	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, sink := range d.sinks {
		if err := d.handle(ctx, sink, e); err != nil {
			d.logger.Warn("sink failed",
				"sink", sink.Name(),
				"kind", e.Kind,
				"sensor_id", e.SensorID,
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, sink Sink, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sink.Handle(ctx, e)
}
