package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/device"
	"github.com/nerrad567/fieldsim-core/internal/simulation"
)

// DefaultWindow is the look-back used when a history query omits its start.
const DefaultWindow = 30 * 24 * time.Hour

// Source is the read side of the device registry the aggregator needs.
type Source interface {
	Get(ctx context.Context, id string) (*device.Device, error)
	Events(ctx context.Context, id string) ([]device.IrrigationEvent, error)
}

// Logger defines the logging interface used by the Aggregator.
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

// Entry is an irrigation event annotated with its device's display name.
type Entry struct {
	device.IrrigationEvent
	DeviceName string `json:"device_name"`
}

// Aggregator runs history and usage queries over a Source.
type Aggregator struct {
	source Source
	clock  simulation.Clock
	logger Logger
}

// NewAggregator creates an aggregator reading from source.
func NewAggregator(source Source, clock simulation.Clock) *Aggregator {
	return &Aggregator{source: source, clock: clock, logger: noopLogger{}}
}

// SetLogger sets the logger for the aggregator.
func (a *Aggregator) SetLogger(logger Logger) {
	a.logger = logger
}

// History returns the events of the given devices whose start time falls in
// [start, end], newest first. Events with equal start times keep the order
// of the request and of each device's log.
//
// A nil end means now; a nil start means DefaultWindow before end.
// Unknown and repeated IDs are skipped. An empty ID list yields an empty
// result.
func (a *Aggregator) History(ctx context.Context, ids []string, start, end *time.Time) ([]Entry, error) {
	from, to := a.window(start, end)
	if from.After(to) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	entries := []Entry{}
	for _, id := range dedupe(ids) {
		dev, events, err := a.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if dev == nil {
			continue
		}
		for _, ev := range events {
			if ev.StartTime.Before(from) || ev.StartTime.After(to) {
				continue
			}
			entries = append(entries, Entry{IrrigationEvent: ev, DeviceName: dev.Name})
		}
	}

	slices.SortStableFunc(entries, func(x, y Entry) int {
		return y.StartTime.Compare(x.StartTime)
	})
	return entries, nil
}

func (a *Aggregator) window(start, end *time.Time) (time.Time, time.Time) {
	to := a.clock.Now().UTC()
	if end != nil {
		to = end.UTC()
	}
	from := to.Add(-DefaultWindow)
	if start != nil {
		from = start.UTC()
	}
	return from, to
}

// load returns a nil device when id is unknown or was removed mid-query.
func (a *Aggregator) load(ctx context.Context, id string) (*device.Device, []device.IrrigationEvent, error) {
	dev, err := a.source.Get(ctx, id)
	if errors.Is(err, device.ErrDeviceNotFound) {
		a.logger.Debug("history skipping unknown device", "sensor_id", id)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading device %s: %w", id, err)
	}
	events, err := a.source.Events(ctx, id)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading events for %s: %w", id, err)
	}
	return dev, events, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
