package irrigation

import (
	"context"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/device"
)

// DeviceSource is the read side of the registry used by AutoController.
type DeviceSource interface {
	List(ctx context.Context) []device.Device
	SensorState(ctx context.Context, id string) (device.SensorState, error)
	Events(ctx context.Context, id string) ([]device.IrrigationEvent, error)
}

// Triggerer starts irrigation runs.
type Triggerer interface {
	Trigger(ctx context.Context, sensorID string, requestedMinutes int) (*Result, error)
}

// AutoController irrigates devices in auto mode whose moisture is below
// their threshold and which have no run in progress.
type AutoController struct {
	devices   DeviceSource
	scheduler Triggerer
	interval  time.Duration
	logger    Logger
}

// NewAutoController creates a controller that checks every interval.
func NewAutoController(devices DeviceSource, scheduler Triggerer, interval time.Duration) *AutoController {
	return &AutoController{
		devices:   devices,
		scheduler: scheduler,
		interval:  interval,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the controller.
func (a *AutoController) SetLogger(logger Logger) {
	a.logger = logger
}

// Run checks devices on every tick until ctx is cancelled.
// A non-positive interval disables the loop.
func (a *AutoController) Run(ctx context.Context) {
	if a.interval <= 0 {
		return
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Check(ctx); n > 0 {
				a.logger.Info("auto irrigation triggered", "devices", n)
			}
		}
	}
}

// Check runs one pass over all devices and returns how many runs it started.
func (a *AutoController) Check(ctx context.Context) int {
	triggered := 0
	for _, d := range a.devices.List(ctx) {
		if !a.needsWater(ctx, &d) {
			continue
		}
		if _, err := a.scheduler.Trigger(ctx, d.SensorID, 0); err != nil {
			a.logger.Warn("auto irrigation failed", "sensor_id", d.SensorID, "error", err)
			continue
		}
		triggered++
	}
	return triggered
}

func (a *AutoController) needsWater(ctx context.Context, d *device.Device) bool {
	if !d.Settings.AutoMode || d.Status != device.StatusOnline || d.Type == device.TypeEnvironmentalMonitor {
		return false
	}
	state, err := a.devices.SensorState(ctx, d.SensorID)
	if err != nil || state.LastMoisture >= d.Settings.MoistureThreshold {
		return false
	}
	events, err := a.devices.Events(ctx, d.SensorID)
	if err != nil {
		return false
	}
	for i := range events {
		if events[i].Status == device.EventActive {
			return false
		}
	}
	return true
}
