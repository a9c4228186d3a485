package simulation

import (
	"sync"
	"testing"
	"time"
)

func TestClampMoisture(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"within range", 42.26, 42.3},
		{"below floor", -3, MinMoisture},
		{"above ceiling", 110, MaxMoisture},
		{"exact floor", 5, 5},
		{"rounds down", 61.04, 61.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampMoisture(tt.in); got != tt.want {
				t.Errorf("ClampMoisture(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSeedMoisture_Bounds(t *testing.T) {
	for _, v := range []float64{0, 0.25, 0.999999} {
		got := SeedMoisture(NewFixedSource(v))
		if got < SeedMin || got > SeedMax {
			t.Errorf("SeedMoisture(%v) = %v, outside [%v, %v]", v, got, SeedMin, SeedMax)
		}
	}
}

func TestFixedSource_Wraps(t *testing.T) {
	src := NewFixedSource(0.1, 0.2)
	got := []float64{src.Float64(), src.Float64(), src.Float64()}
	want := []float64{0.1, 0.2, 0.1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRandomSource_Concurrent(t *testing.T) {
	src := NewRandomSource(42)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if v := src.Float64(); v < 0 || v >= 1 {
					t.Errorf("Float64() = %v, outside [0, 1)", v)
				}
			}
		}()
	}
	wg.Wait()
}

func TestManualClock_FiresInOrder(t *testing.T) {
	clock := NewManualClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	var fired []string
	clock.AfterFunc(2*time.Minute, func() { fired = append(fired, "b") })
	clock.AfterFunc(time.Minute, func() { fired = append(fired, "a") })
	stopped := clock.AfterFunc(time.Minute, func() { fired = append(fired, "x") })

	if !stopped.Stop() {
		t.Fatal("Stop() = false on pending timer")
	}
	if stopped.Stop() {
		t.Error("second Stop() = true")
	}

	clock.Advance(59 * time.Second)
	if len(fired) != 0 {
		t.Fatalf("fired early: %v", fired)
	}

	clock.Advance(2 * time.Minute)
	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Errorf("fired = %v, want [a b]", fired)
	}
	if clock.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", clock.Pending())
	}
}
