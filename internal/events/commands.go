package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/fieldsim-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/fieldsim-core/internal/irrigation"
)

// ErrInvalidCommand is returned for malformed irrigation commands.
var ErrInvalidCommand = errors.New("events: invalid command")

// Triggerer starts irrigation runs. Satisfied by *irrigation.Scheduler.
type Triggerer interface {
	Trigger(ctx context.Context, sensorID string, requestedMinutes int) (*irrigation.Result, error)
}

// Subscriber is satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// IrrigationCommand is the payload of fieldsim/command/{id}/irrigate.
// A zero or absent duration uses the device default.
type IrrigationCommand struct {
	Duration int `json:"duration"`
}

// CommandHandler triggers irrigation from MQTT commands.
type CommandHandler struct {
	trigger Triggerer
	logger  Logger
}

// NewCommandHandler creates a command handler.
func NewCommandHandler(trigger Triggerer) *CommandHandler {
	return &CommandHandler{trigger: trigger, logger: noopLogger{}}
}

// SetLogger sets the logger for the handler.
func (h *CommandHandler) SetLogger(logger Logger) {
	h.logger = logger
}

// Subscribe registers the handler for every device's command topic.
// ctx bounds the Trigger calls made on behalf of received commands.
func (h *CommandHandler) Subscribe(ctx context.Context, sub Subscriber, qos byte) error {
	topic := mqtt.Topics{}.AllIrrigationCommands()
	if err := sub.Subscribe(topic, qos, func(topic string, payload []byte) error {
		return h.Handle(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe stops command delivery. Called on shutdown before the
// scheduler stops, so late commands are not turned into failed triggers.
func (h *CommandHandler) Unsubscribe(sub Subscriber) error {
	topic := mqtt.Topics{}.AllIrrigationCommands()
	if err := sub.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", topic, err)
	}
	return nil
}

// Handle parses one command message and triggers the run.
func (h *CommandHandler) Handle(ctx context.Context, topic string, payload []byte) error {
	sensorID, ok := mqtt.ParseIrrigationCommand(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidCommand, topic)
	}

	var cmd IrrigationCommand
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	}
	if cmd.Duration < 0 {
		return fmt.Errorf("%w: negative duration %d", ErrInvalidCommand, cmd.Duration)
	}

	res, err := h.trigger.Trigger(ctx, sensorID, cmd.Duration)
	if err != nil {
		return fmt.Errorf("triggering irrigation on %s: %w", sensorID, err)
	}
	h.logger.Info("irrigation triggered by command",
		"sensor_id", sensorID,
		"event_id", res.Event.ID,
		"duration", res.Event.Duration,
	)
	return nil
}
