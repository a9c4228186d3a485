package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSoilMoisture = "soil_moisture"
	MeasurementIrrigation   = "irrigation"
)

// WriteMoisture records one synthesized reading.
func (c *Client) WriteMoisture(sensorID string, moisture, temperature, humidity float64, at time.Time) {
	c.writePoint(moisturePoint(sensorID, moisture, temperature, humidity, at))
}

// WriteIrrigation records a completed irrigation run at its end time.
func (c *Client) WriteIrrigation(sensorID, eventID string, durationMinutes int, waterUsed float64, at time.Time) {
	c.writePoint(irrigationPoint(sensorID, eventID, durationMinutes, waterUsed, at))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func moisturePoint(sensorID string, moisture, temperature, humidity float64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSoilMoisture,
		map[string]string{"sensor_id": sensorID},
		map[string]any{
			"moisture":    moisture,
			"temperature": temperature,
			"humidity":    humidity,
		},
		at,
	)
}

func irrigationPoint(sensorID, eventID string, durationMinutes int, waterUsed float64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementIrrigation,
		map[string]string{"sensor_id": sensorID, "event_id": eventID},
		map[string]any{
			"duration":   durationMinutes,
			"water_used": waterUsed,
		},
		at,
	)
}
