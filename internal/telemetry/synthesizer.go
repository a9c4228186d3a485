package telemetry

import (
	"time"

	"github.com/nerrad567/fieldsim-core/internal/simulation"
)

// Defaults for the synthesizer.
const (
	DefaultHistoryPoints   = 97
	DefaultHistoryInterval = 30 * time.Minute

	// walkStep bounds the random walk applied on each step.
	walkStep = 5.0
	// dayDrying and nightRecovery bound the time-of-day bias.
	dayDrying     = 3.0
	nightRecovery = 2.0

	minTemperature = 15.0
	maxTemperature = 35.0
	minHumidity    = 40.0
	maxHumidity    = 80.0
)

// SynthConfig configures a Synthesizer.
type SynthConfig struct {
	// HistoryPoints is the length of the history series, including the current point.
	HistoryPoints int
	// HistoryInterval is the spacing between history points.
	HistoryInterval time.Duration
	// Location is the time zone in which day and night are evaluated.
	Location *time.Location

	// DayStart and DayEnd bound the drying window, inclusive hours.
	DayStart, DayEnd int
	// NightStart and NightEnd bound the recovery window, which wraps midnight.
	NightStart, NightEnd int
}

// DefaultSynthConfig returns 97 points at 30 minute spacing, drying from
// 10:00 to 16:59 and recovering from 20:00 to 06:59 UTC.
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		HistoryPoints:   DefaultHistoryPoints,
		HistoryInterval: DefaultHistoryInterval,
		Location:        time.UTC,
		DayStart:        10,
		DayEnd:          16,
		NightStart:      20,
		NightEnd:        6,
	}
}

// Point is one entry of a history series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Moisture  float64   `json:"moisture"`
}

// Reading is a synthesized telemetry sample.
type Reading struct {
	SensorID    string    `json:"sensor_id,omitempty"`
	Moisture    float64   `json:"moisture"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
	History     []Point   `json:"history"`
}

// Synthesizer produces moisture values by a bounded random walk with a
// time-of-day bias. It holds no per-device state and is safe for
// concurrent use if its Source is.
type Synthesizer struct {
	source simulation.Source
	cfg    SynthConfig
}

// NewSynthesizer creates a Synthesizer. Zero fields in cfg take defaults.
func NewSynthesizer(source simulation.Source, cfg SynthConfig) *Synthesizer {
	def := DefaultSynthConfig()
	if cfg.HistoryPoints <= 0 {
		cfg.HistoryPoints = def.HistoryPoints
	}
	if cfg.HistoryInterval <= 0 {
		cfg.HistoryInterval = def.HistoryInterval
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.DayStart == 0 && cfg.DayEnd == 0 && cfg.NightStart == 0 && cfg.NightEnd == 0 {
		cfg.DayStart, cfg.DayEnd = def.DayStart, def.DayEnd
		cfg.NightStart, cfg.NightEnd = def.NightStart, def.NightEnd
	}
	return &Synthesizer{source: source, cfg: cfg}
}

// Next applies one random-walk step to last as observed at time at.
// The result is always clamped to the moisture bounds and rounded.
func (s *Synthesizer) Next(last float64, at time.Time) float64 {
	return s.step(last, at, 1)
}

// step moves the walk one interval forward (dir 1) or backward (dir -1).
// Going backward the time-of-day bias flips: before a drying afternoon
// the soil was wetter, before a recovering night it was drier.
func (s *Synthesizer) step(last float64, at time.Time, dir float64) float64 {
	v := last + simulation.Uniform(s.source, -walkStep, walkStep)

	hour := at.In(s.cfg.Location).Hour()
	switch {
	case s.isDay(hour):
		v -= dir * s.source.Float64() * dayDrying
	case s.isNight(hour):
		v += dir * s.source.Float64() * nightRecovery
	}
	return simulation.ClampMoisture(v)
}

// Synthesize steps last forward to at and builds the history ending there.
func (s *Synthesizer) Synthesize(last float64, at time.Time) Reading {
	current := s.Next(last, at)
	return Reading{
		Moisture:    current,
		Temperature: simulation.RoundTenth(simulation.Uniform(s.source, minTemperature, maxTemperature)),
		Humidity:    simulation.RoundTenth(simulation.Uniform(s.source, minHumidity, maxHumidity)),
		Timestamp:   at,
		History:     s.History(current, at),
	}
}

// History replays the walk backward from current, returning the series
// oldest first. The last point is (at, current).
func (s *Synthesizer) History(current float64, at time.Time) []Point {
	n := s.cfg.HistoryPoints
	series := make([]Point, n)
	series[n-1] = Point{Timestamp: at, Moisture: simulation.ClampMoisture(current)}
	for i := n - 2; i >= 0; i-- {
		ts := at.Add(-time.Duration(n-1-i) * s.cfg.HistoryInterval)
		series[i] = Point{Timestamp: ts, Moisture: s.step(series[i+1].Moisture, ts, -1)}
	}
	return series
}

func (s *Synthesizer) isDay(hour int) bool {
	return hour >= s.cfg.DayStart && hour <= s.cfg.DayEnd
}

func (s *Synthesizer) isNight(hour int) bool {
	if s.cfg.NightStart <= s.cfg.NightEnd {
		return hour >= s.cfg.NightStart && hour <= s.cfg.NightEnd
	}
	return hour >= s.cfg.NightStart || hour <= s.cfg.NightEnd
}
