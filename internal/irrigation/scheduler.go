package irrigation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/device"
	"github.com/nerrad567/fieldsim-core/internal/simulation"
)

// Registry is the part of the device registry the scheduler drives.
type Registry interface {
	StartIrrigation(ctx context.Context, id string, requestedMinutes int) (*device.IrrigationEvent, error)
	CompleteIrrigation(ctx context.Context, id, eventID string, at time.Time) (*device.IrrigationEvent, error)
	ActiveEvents(ctx context.Context) []device.IrrigationEvent
}

// Observer is notified of irrigation lifecycle changes.
// Calls happen on the triggering goroutine or the timer goroutine and must
// not block.
type Observer interface {
	IrrigationStarted(ctx context.Context, ev device.IrrigationEvent)
	IrrigationCompleted(ctx context.Context, ev device.IrrigationEvent)
}

// Logger defines the logging interface used by the Scheduler.
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

// Result is returned to the caller of Trigger without waiting for completion.
type Result struct {
	Event               device.IrrigationEvent `json:"event"`
	EstimatedWaterUsage float64                `json:"estimated_water_usage"`
	ExpectedCompletion  time.Time              `json:"expected_completion"`
}

// task is one armed completion.
type task struct {
	event device.IrrigationEvent
	timer simulation.Timer
}

// Scheduler creates irrigation events and completes them after their
// duration has elapsed on the injected clock.
type Scheduler struct {
	registry Registry
	clock    simulation.Clock
	// unit is the length of one irrigation minute.
	unit time.Duration

	mu      sync.Mutex
	pending map[string]*task
	closed  bool
	running sync.WaitGroup

	observers []Observer
	logger    Logger
}

// NewScheduler creates a scheduler. unit is the wall duration of one
// irrigation minute; zero means time.Minute.
func NewScheduler(registry Registry, clock simulation.Clock, unit time.Duration) *Scheduler {
	if unit <= 0 {
		unit = time.Minute
	}
	return &Scheduler{
		registry: registry,
		clock:    clock,
		unit:     unit,
		pending:  make(map[string]*task),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// AddObserver registers o for lifecycle notifications.
// Must be called before the first Trigger.
func (s *Scheduler) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Trigger starts an irrigation run on a device.
//
// The effective duration is requestedMinutes when positive, otherwise the
// device's configured duration. The event is created active and returned
// immediately; completion is applied later by a timer.
//
// Returns device.ErrDeviceNotFound for an unknown device,
// device.ErrInvalidConfiguration for a duration over
// device.MaxIrrigationDuration and ErrSchedulingFailure once the scheduler
// has shut down. None of these creates an event.
//
// The scheduler lock is not held while the registry starts the event, so
// triggers on different devices proceed in parallel. A run started while
// Shutdown is in progress stays active without a timer, like the runs
// Shutdown stops, and is armed again by Resume.
func (s *Scheduler) Trigger(ctx context.Context, sensorID string, requestedMinutes int) (*Result, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("%w: scheduler is shut down", ErrSchedulingFailure)
	}
	ev, err := s.registry.StartIrrigation(ctx, sensorID, requestedMinutes)
	if err != nil {
		return nil, err
	}
	delay := s.delay(ev.Duration)

	s.mu.Lock()
	armed := !s.closed
	if armed {
		s.arm(*ev, delay)
	}
	s.mu.Unlock()
	if !armed {
		s.logger.Warn("irrigation started during shutdown, left for resume",
			"sensor_id", sensorID,
			"event_id", ev.ID,
		)
	}

	s.logger.Info("irrigation started",
		"sensor_id", sensorID,
		"event_id", ev.ID,
		"duration_min", ev.Duration,
		"estimated_liters", ev.EstimatedWaterUsage(),
	)
	for _, o := range s.observers {
		o.IrrigationStarted(ctx, *ev)
	}

	return &Result{
		Event:               *ev,
		EstimatedWaterUsage: ev.EstimatedWaterUsage(),
		ExpectedCompletion:  ev.StartTime.Add(delay),
	}, nil
}

// Resume arms completions for active events that have no pending timer,
// such as events restored from a snapshot. Overdue events complete on the
// next clock tick. It returns the number of events armed.
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	active := s.registry.ActiveEvents(ctx)
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("%w: scheduler is shut down", ErrSchedulingFailure)
	}

	armed := 0
	for _, ev := range active {
		if _, ok := s.pending[taskKey(ev.SensorID, ev.ID)]; ok {
			continue
		}
		remaining := ev.StartTime.Add(s.delay(ev.Duration)).Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		s.arm(ev, remaining)
		armed++
	}
	if armed > 0 {
		s.logger.Info("resumed irrigation events", "count", armed)
	}
	return armed, nil
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Pending returns the number of armed completions.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Shutdown stops every pending timer and waits for completions already
// running to finish, or for ctx to expire. Events whose timers were
// stopped stay active. Further Trigger calls fail with ErrSchedulingFailure.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	stopped := 0
	for key, t := range s.pending {
		if t.timer.Stop() {
			stopped++
		}
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if stopped > 0 {
		s.logger.Info("irrigation scheduler stopped pending completions", "count", stopped)
	}

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running completions: %w", ctx.Err())
	}
}

// arm must be called with s.mu held.
func (s *Scheduler) arm(ev device.IrrigationEvent, delay time.Duration) {
	key := taskKey(ev.SensorID, ev.ID)
	t := &task{event: ev}
	t.timer = s.clock.AfterFunc(delay, func() { s.fire(key) })
	s.pending[key] = t
}

// fire completes the event behind key. The pending entry is removed under
// the lock before anything else, so each event completes at most once.
func (s *Scheduler) fire(key string) {
	s.mu.Lock()
	t, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
		s.running.Add(1)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	defer s.running.Done()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in irrigation completion", "key", key, "panic", r)
		}
	}()

	ctx := context.Background()
	at := s.clock.Now().UTC()
	done, err := s.registry.CompleteIrrigation(ctx, t.event.SensorID, t.event.ID, at)
	switch {
	case err == nil:
		s.logger.Info("irrigation completed",
			"sensor_id", done.SensorID,
			"event_id", done.ID,
			"water_used", done.WaterUsed,
		)
	case errors.Is(err, device.ErrDeviceNotFound):
		// Device removed while the run was in progress. There is no sensor
		// state to boost; finish the scheduler's copy for observers.
		finished := completeCopy(t.event, at)
		done = &finished
		s.logger.Debug("irrigation completed for removed device", "sensor_id", t.event.SensorID, "event_id", t.event.ID)
	default:
		s.logger.Warn("irrigation completion failed", "sensor_id", t.event.SensorID, "event_id", t.event.ID, "error", err)
		return
	}

	for _, o := range s.observers {
		o.IrrigationCompleted(ctx, *done)
	}
}

// delay converts minutes to wall time, saturating instead of overflowing.
func (s *Scheduler) delay(minutes int) time.Duration {
	if minutes <= 0 {
		return 0
	}
	if int64(minutes) > math.MaxInt64/int64(s.unit) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(minutes) * s.unit
}

func completeCopy(ev device.IrrigationEvent, at time.Time) device.IrrigationEvent {
	ev.EndTime = &at
	ev.Status = device.EventCompleted
	ev.ActualDuration = ev.Duration
	ev.WaterUsed = ev.EstimatedWaterUsage()
	return ev
}

func taskKey(sensorID, eventID string) string {
	return sensorID + "/" + eventID
}
