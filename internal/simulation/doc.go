// Package simulation holds the environment model shared by the simulated
// field devices: a random source, a clock with one-shot timers, and the soil
// moisture bounds every synthesized or adjusted reading must respect.
//
// Production code uses NewRandomSource and RealClock. Tests substitute
// FixedSource and ManualClock so that telemetry and irrigation completions
// are deterministic.
package simulation
