package simulation

import "math"

// Soil moisture bounds, in percent volumetric water content.
const (
	MinMoisture = 5.0
	MaxMoisture = 95.0

	// SeedMin and SeedMax bound the initial reading of a device with no history.
	SeedMin = 10.0
	SeedMax = 90.0
)

// ClampMoisture bounds v to [MinMoisture, MaxMoisture] and rounds it to one
// decimal place. Every reading stored or returned passes through here.
func ClampMoisture(v float64) float64 {
	if math.IsNaN(v) {
		return MinMoisture
	}
	return RoundTenth(math.Max(MinMoisture, math.Min(MaxMoisture, v)))
}

// RoundTenth rounds v to one decimal place.
func RoundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// SeedMoisture draws an initial reading uniformly from [SeedMin, SeedMax].
func SeedMoisture(src Source) float64 {
	return ClampMoisture(Uniform(src, SeedMin, SeedMax))
}
