// Package influxdb writes fieldsim time series to InfluxDB v2.
//
// Two measurements are written:
//
//	soil_moisture  tags: sensor_id            fields: moisture, temperature, humidity
//	irrigation     tags: sensor_id, event_id  fields: duration, water_used
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Connect retries its initial ping with exponential
// backoff.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteMoisture("sm_abc", 42.5, 21.3, 60.1, time.Now())
package influxdb
