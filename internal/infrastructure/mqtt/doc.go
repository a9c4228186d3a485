// Package mqtt provides MQTT client connectivity for fieldsim.
//
// The service publishes irrigation lifecycle events and telemetry readings
// and accepts irrigation commands:
//
//	fieldsim/irrigation/{sensor_id}/started
//	fieldsim/irrigation/{sensor_id}/completed
//	fieldsim/telemetry/{sensor_id}
//	fieldsim/command/{sensor_id}/irrigate    (subscribed)
//	fieldsim/system/status                   (retained, LWT)
//
// The initial connection is retried with exponential backoff
// (cenkalti/backoff); after that paho reconnects on its own and tracked
// subscriptions are restored.
//
// Usage:
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishJSON(mqtt.Topics{}.IrrigationStarted(id), event)
package mqtt
