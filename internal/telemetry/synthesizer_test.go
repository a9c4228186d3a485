package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/simulation"
)

func isRoundedTenth(v float64) bool {
	return math.Abs(v*10-math.Round(v*10)) < 1e-9
}

func TestNext_AlwaysBoundedAndRounded(t *testing.T) {
	synth := NewSynthesizer(simulation.NewRandomSource(99), SynthConfig{})
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	for _, last := range []float64{-40, 0, 5, 5.04, 50, 94.99, 95, 200} {
		v := last
		for i := range 500 {
			at := start.Add(time.Duration(i) * 17 * time.Minute)
			v = synth.Next(v, at)
			if v < simulation.MinMoisture || v > simulation.MaxMoisture {
				t.Fatalf("Next() = %v, outside bounds (start %v, step %d)", v, last, i)
			}
			if !isRoundedTenth(v) {
				t.Fatalf("Next() = %v, not rounded to one decimal", v)
			}
		}
	}
}

func TestNext_TimeOfDayBias(t *testing.T) {
	day := time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC)
	night := time.Date(2026, 7, 1, 23, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		at     time.Time
		values []float64
		want   float64
	}{
		// Walk 0.5 maps to +0; bias draw 1.0 applies the full bias.
		{"daytime dries", day, []float64{0.5, 1.0}, 47},
		{"night recovers", night, []float64{0.5, 1.0}, 52},
		{"evening unbiased", evening, []float64{0.5, 1.0}, 50},
		// Walk 1.0 maps to +5, 0.0 to -5.
		{"walk up", evening, []float64{1.0}, 55},
		{"walk down", evening, []float64{0.0}, 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := NewSynthesizer(simulation.NewFixedSource(tt.values...), SynthConfig{})
			if got := synth.Next(50, tt.at); got != tt.want {
				t.Errorf("Next(50) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNext_ClampsAtCeiling(t *testing.T) {
	night := time.Date(2026, 7, 1, 2, 0, 0, 0, time.UTC)
	synth := NewSynthesizer(simulation.NewFixedSource(1.0), SynthConfig{})
	if got := synth.Next(94, night); got != simulation.MaxMoisture {
		t.Errorf("Next(94) = %v, want %v", got, simulation.MaxMoisture)
	}
}

func TestHistory_Shape(t *testing.T) {
	synth := NewSynthesizer(simulation.NewRandomSource(3), SynthConfig{})
	at := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	series := synth.History(61.2, at)

	if len(series) != DefaultHistoryPoints {
		t.Fatalf("len = %d, want %d", len(series), DefaultHistoryPoints)
	}
	if last := series[len(series)-1]; !last.Timestamp.Equal(at) || last.Moisture != 61.2 {
		t.Errorf("last point = %+v, want (%v, 61.2)", last, at)
	}
	if first := series[0]; !first.Timestamp.Equal(at.Add(-48 * time.Hour)) {
		t.Errorf("first timestamp = %v, want 48h before", first.Timestamp)
	}
	for i := 1; i < len(series); i++ {
		if gap := series[i].Timestamp.Sub(series[i-1].Timestamp); gap != DefaultHistoryInterval {
			t.Fatalf("gap at %d = %v, want %v", i, gap, DefaultHistoryInterval)
		}
		p := series[i-1]
		if p.Moisture < simulation.MinMoisture || p.Moisture > simulation.MaxMoisture || !isRoundedTenth(p.Moisture) {
			t.Fatalf("point %d = %v violates bounds or rounding", i-1, p.Moisture)
		}
	}
}

func TestHistory_BackwardBias(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want []float64
	}{
		// Drying afternoon: earlier points were wetter.
		{"day", time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC), []float64{59, 56, 53, 50}},
		// Recovering night: earlier points were drier.
		{"night", time.Date(2026, 7, 1, 23, 0, 0, 0, time.UTC), []float64{44, 46, 48, 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Walk 0.5 maps to +0; bias draw 1.0 applies the full bias.
			synth := NewSynthesizer(simulation.NewFixedSource(0.5, 1.0), SynthConfig{HistoryPoints: 4, HistoryInterval: time.Hour})
			series := synth.History(50, tt.at)
			for i, p := range series {
				if p.Moisture != tt.want[i] {
					t.Fatalf("series = %+v, want moistures %v", series, tt.want)
				}
			}
		})
	}
}

func TestSynthesize_CustomConfig(t *testing.T) {
	synth := NewSynthesizer(simulation.NewFixedSource(0.5), SynthConfig{HistoryPoints: 5, HistoryInterval: time.Hour})
	at := time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC)

	r := synth.Synthesize(40, at)
	if r.Moisture != 40 {
		t.Errorf("Moisture = %v, want 40", r.Moisture)
	}
	if r.Temperature != 25 || r.Humidity != 60 {
		t.Errorf("Temperature = %v Humidity = %v, want 25 and 60", r.Temperature, r.Humidity)
	}
	if len(r.History) != 5 || !r.History[0].Timestamp.Equal(at.Add(-4*time.Hour)) {
		t.Errorf("history = %+v", r.History)
	}
}
