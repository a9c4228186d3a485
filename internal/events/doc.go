// Package events fans irrigation and telemetry notifications out to the
// service's external surfaces.
//
// The Dispatcher implements irrigation.Observer and telemetry.Observer. It
// queues each notification and delivers it from its own goroutine, so a
// slow broker or a full socket never holds up a timer callback or an HTTP
// request. Sinks wrap one destination each:
//
//   - MQTTSink publishes to fieldsim/irrigation/{id}/started|completed and
//     fieldsim/telemetry/{id}
//   - KafkaSink appends irrigation events keyed by sensor ID
//   - InfluxSink writes soil_moisture and irrigation points
//   - HubSink broadcasts to WebSocket clients
//   - MetricsSink updates Prometheus counters
//
// Sink errors are logged and dropped. The MQTT and Kafka sinks sit behind
// circuit breakers so an unreachable broker is skipped quickly.
//
// CommandHandler is the inbound direction: it turns MQTT irrigation
// commands into Scheduler.Trigger calls.
package events
