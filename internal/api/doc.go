// Package api implements the HTTP REST API and WebSocket server for fieldsim.
//
// This package provides:
//   - REST endpoints for device registration, settings, calibration and status
//   - Telemetry reads and irrigation triggers
//   - Irrigation history and water usage analytics
//   - WebSocket hub streaming irrigation and telemetry events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, metrics)
//
// # Architecture
//
// Handlers call the device registry, telemetry service, irrigation scheduler
// and history aggregator directly. Events flow the other way through the
// events dispatcher, which broadcasts them on the Hub; clients subscribe to
// channels named after event kinds ("irrigation.started",
// "irrigation.completed", "telemetry") or to "*", and may narrow that to a
// list of sensor IDs.
//
// # Errors
//
// Domain errors map to status codes: unknown device or event 404, invalid
// input 400, duplicate device or completed event 409, scheduler shut down 503.
//
// # Graceful Degradation
//
// MQTT, the database and Prometheus collectors are optional. Without them
// the system endpoint omits their sections and /metrics is not mounted.
package api
