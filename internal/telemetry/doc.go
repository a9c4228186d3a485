// Package telemetry synthesizes plausible soil moisture readings for
// simulated devices.
//
// Synthesizer is pure: given a last known value and a time it produces the
// next value and a 48 hour history series without touching any state.
// Service is the side-effecting read path used by callers asking for a
// device's telemetry: it synthesizes from the registry's sensor state,
// writes the new value back and notifies observers.
package telemetry
