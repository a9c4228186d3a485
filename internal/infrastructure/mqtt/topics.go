package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every fieldsim topic.
const TopicPrefix = "fieldsim"

// Topics provides builders for fieldsim MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.IrrigationStarted("sm_abc")
//	// Returns: "fieldsim/irrigation/sm_abc/started"
type Topics struct{}

// IrrigationStarted returns the topic announcing a new irrigation run.
func (Topics) IrrigationStarted(sensorID string) string {
	return fmt.Sprintf("%s/irrigation/%s/started", TopicPrefix, sensorID)
}

// IrrigationCompleted returns the topic announcing a finished run.
func (Topics) IrrigationCompleted(sensorID string) string {
	return fmt.Sprintf("%s/irrigation/%s/completed", TopicPrefix, sensorID)
}

// Telemetry returns the topic carrying synthesized readings.
func (Topics) Telemetry(sensorID string) string {
	return fmt.Sprintf("%s/telemetry/%s", TopicPrefix, sensorID)
}

// IrrigationCommand returns the topic on which a run can be requested.
//
// Example: fieldsim/command/sm_abc/irrigate
func (Topics) IrrigationCommand(sensorID string) string {
	return fmt.Sprintf("%s/command/%s/irrigate", TopicPrefix, sensorID)
}

// AllIrrigationCommands matches every irrigation command topic.
//
// Pattern: fieldsim/command/+/irrigate
func (Topics) AllIrrigationCommands() string {
	return TopicPrefix + "/command/+/irrigate"
}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ParseIrrigationCommand extracts the sensor ID from an irrigation command
// topic. ok is false for any other topic.
func ParseIrrigationCommand(topic string) (sensorID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "command" || parts[3] != "irrigate" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
