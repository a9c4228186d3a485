package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/nerrad567/fieldsim-core/internal/infrastructure/config"
	"github.com/nerrad567/fieldsim-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/fieldsim-core/internal/metrics"
)

// Publisher is satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTSink publishes every event to its per-device topic.
type MQTTSink struct {
	pub     Publisher
	breaker *gobreaker.CircuitBreaker
	topics  mqtt.Topics
}

// NewMQTTSink creates an MQTT sink guarded by breaker.
func NewMQTTSink(pub Publisher, breaker *gobreaker.CircuitBreaker) *MQTTSink {
	return &MQTTSink{pub: pub, breaker: breaker}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Handle implements Sink.
func (s *MQTTSink) Handle(_ context.Context, e Event) error {
	var topic string
	switch e.Kind {
	case KindIrrigationStarted:
		topic = s.topics.IrrigationStarted(e.SensorID)
	case KindIrrigationCompleted:
		topic = s.topics.IrrigationCompleted(e.SensorID)
	case KindTelemetry:
		topic = s.topics.Telemetry(e.SensorID)
	default:
		return nil
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.pub.PublishJSON(topic, e)
	})
	return err
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds the writer for the irrigation event topic.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// KafkaSink appends irrigation lifecycle events to a topic. Messages are
// keyed by sensor ID so each device's events stay ordered within a
// partition. Telemetry is not forwarded.
type KafkaSink struct {
	w       MessageWriter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewKafkaSink creates a Kafka sink guarded by breaker.
func NewKafkaSink(w MessageWriter, breaker *gobreaker.CircuitBreaker) *KafkaSink {
	return &KafkaSink{w: w, breaker: breaker, timeout: 5 * time.Second}
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Handle implements Sink.
func (s *KafkaSink) Handle(ctx context.Context, e Event) error {
	if e.Kind != KindIrrigationStarted && e.Kind != KindIrrigationCompleted {
		return nil
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	msg := kafka.Message{Key: []byte(e.SensorID), Value: value, Time: e.Timestamp}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return nil, s.w.WriteMessages(writeCtx, msg)
	})
	return err
}

// PointWriter is satisfied by *influxdb.Client.
type PointWriter interface {
	WriteMoisture(sensorID string, moisture, temperature, humidity float64, at time.Time)
	WriteIrrigation(sensorID, eventID string, durationMinutes int, waterUsed float64, at time.Time)
}

// InfluxSink writes telemetry samples and completed irrigation runs.
// Writes are batched by the client; errors surface through its error
// callback rather than here.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink creates an InfluxDB sink.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Handle implements Sink.
func (s *InfluxSink) Handle(_ context.Context, e Event) error {
	switch e.Kind {
	case KindTelemetry:
		r := e.Telemetry
		s.w.WriteMoisture(e.SensorID, r.Moisture, r.Temperature, r.Humidity, r.Timestamp)
	case KindIrrigationCompleted:
		ev := e.Irrigation
		s.w.WriteIrrigation(e.SensorID, ev.ID, ev.ActualDuration, ev.WaterUsed, e.Timestamp)
	}
	return nil
}

// Broadcaster is satisfied by the WebSocket hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// HubSink forwards every event to WebSocket subscribers on a channel named
// after its kind.
type HubSink struct {
	b Broadcaster
}

// NewHubSink creates a WebSocket sink.
func NewHubSink(b Broadcaster) *HubSink {
	return &HubSink{b: b}
}

// Name implements Sink.
func (s *HubSink) Name() string { return "websocket" }

// Handle implements Sink.
func (s *HubSink) Handle(_ context.Context, e Event) error {
	s.b.Broadcast(string(e.Kind), e)
	return nil
}

// MetricsSink counts events in Prometheus.
type MetricsSink struct {
	m *metrics.Metrics
}

// NewMetricsSink creates a metrics sink.
func NewMetricsSink(m *metrics.Metrics) *MetricsSink {
	return &MetricsSink{m: m}
}

// Name implements Sink.
func (s *MetricsSink) Name() string { return "metrics" }

// Handle implements Sink.
func (s *MetricsSink) Handle(_ context.Context, e Event) error {
	switch e.Kind {
	case KindIrrigationStarted:
		s.m.RecordStarted()
	case KindIrrigationCompleted:
		s.m.RecordCompleted(e.Irrigation.WaterUsed)
	case KindTelemetry:
		s.m.TelemetryReadings.Inc()
	}
	return nil
}
