package irrigation

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/device"
)

func TestAutoController_Check(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	off := false

	f.register(t, "dry", device.SettingsPatch{})
	f.register(t, "wet", device.SettingsPatch{})
	f.register(t, "manual", device.SettingsPatch{AutoMode: &off})
	for id, v := range map[string]float64{"dry": 12, "wet": 64, "manual": 8} {
		if _, err := f.registry.RecordMoisture(ctx, id, v, testStart); err != nil {
			t.Fatalf("RecordMoisture(%s) error = %v", id, err)
		}
	}

	auto := NewAutoController(f.registry, f.scheduler, time.Minute)

	if n := auto.Check(ctx); n != 1 {
		t.Fatalf("Check() = %d, want 1", n)
	}
	events, _ := f.registry.Events(ctx, "dry") //nolint:errcheck // Registered above
	if len(events) != 1 || events[0].Duration != device.DefaultIrrigationDuration {
		t.Errorf("dry events = %+v", events)
	}

	// A run is in progress, so the next pass leaves the device alone.
	if n := auto.Check(ctx); n != 0 {
		t.Errorf("second Check() = %d, want 0", n)
	}

	// Completion boosts 12 to 32, above the default threshold of 30.
	f.clock.Advance(time.Duration(device.DefaultIrrigationDuration) * time.Minute)
	if n := auto.Check(ctx); n != 0 {
		t.Errorf("Check() after completion = %d, want 0", n)
	}
}

func TestAutoController_SkipsOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "S1", device.SettingsPatch{})
	if _, err := f.registry.RecordMoisture(ctx, "S1", 6, testStart); err != nil {
		t.Fatalf("RecordMoisture() error = %v", err)
	}
	if _, err := f.registry.SetStatus(ctx, "S1", device.StatusOffline); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	if n := NewAutoController(f.registry, f.scheduler, time.Minute).Check(ctx); n != 0 {
		t.Errorf("Check() = %d, want 0 for offline device", n)
	}
}

func TestAutoController_RunDisabled(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	go func() {
		NewAutoController(f.registry, f.scheduler, 0).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() with zero interval did not return")
	}
}
