// Package irrigation schedules irrigation runs for simulated devices.
//
// Trigger records an active event in the device registry and arms a single
// one-shot timer for its completion. When the timer fires the event is
// completed in the registry, which also boosts the device's moisture.
// Completions look devices up by ID; a device removed in the meantime is
// skipped quietly and observers still receive the terminal event.
//
// Overlapping runs on one device are allowed and complete independently.
//
// AutoController is an optional loop that triggers irrigation for devices in
// auto mode whose moisture has fallen below their threshold.
package irrigation
