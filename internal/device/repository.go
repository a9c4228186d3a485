package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository persists registry snapshots.
type Repository interface {
	// Save replaces the stored snapshot with records.
	Save(ctx context.Context, records []Record) error

	// Load returns the stored snapshot. An empty store yields no records.
	Load(ctx context.Context) ([]Record, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with migrations applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save writes records in a single transaction, replacing the previous snapshot.
func (r *SQLiteRepository) Save(ctx context.Context, records []Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for _, table := range []string{"irrigation_events", "sensor_states", "devices"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for i := range records {
		if err := insertRecord(ctx, tx, &records[i]); err != nil {
			return fmt.Errorf("saving %s: %w", records[i].Device.SensorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec *Record) error {
	d := &rec.Device

	var calJSON []byte
	if d.Calibration != nil {
		var err error
		calJSON, err = json.Marshal(d.Calibration)
		if err != nil {
			return fmt.Errorf("marshalling calibration: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO devices (
			sensor_id, name, type, latitude, longitude, field,
			moisture_threshold, irrigation_duration, auto_mode, water_flow_rate,
			status, calibration, registered_at, last_ping, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SensorID, d.Name, string(d.Type), d.Location.Latitude, d.Location.Longitude, d.Location.Field,
		d.Settings.MoistureThreshold, d.Settings.IrrigationDuration, d.Settings.AutoMode, d.Settings.WaterFlowRate,
		string(d.Status), nullableString(calJSON), formatTime(d.RegisteredAt), formatTime(d.LastPing), formatTime(d.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sensor_states (sensor_id, last_moisture, last_update) VALUES (?, ?, ?)",
		d.SensorID, rec.State.LastMoisture, formatTime(rec.State.LastUpdate),
	); err != nil {
		return fmt.Errorf("inserting sensor state: %w", err)
	}

	for pos, ev := range rec.Events {
		var endTime any
		if ev.EndTime != nil {
			endTime = formatTime(*ev.EndTime)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO irrigation_events (
				sensor_id, id, position, start_time, duration, water_flow_rate,
				status, end_time, actual_duration, water_used
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.SensorID, ev.ID, pos, formatTime(ev.StartTime), ev.Duration, ev.WaterFlowRate,
			string(ev.Status), endTime, ev.ActualDuration, ev.WaterUsed,
		); err != nil {
			return fmt.Errorf("inserting irrigation event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// Load reads the stored snapshot ordered by sensor ID, with each event log
// in its original order.
func (r *SQLiteRepository) Load(ctx context.Context) ([]Record, error) {
	records, index, err := r.loadDevices(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.loadStates(ctx, records, index); err != nil {
		return nil, err
	}
	if err := r.loadEvents(ctx, records, index); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *SQLiteRepository) loadDevices(ctx context.Context) ([]Record, map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sensor_id, name, type, latitude, longitude, field,
			moisture_threshold, irrigation_duration, auto_mode, water_flow_rate,
			status, calibration, registered_at, last_ping, last_updated
		FROM devices
		ORDER BY sensor_id`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var records []Record
	index := make(map[string]int)
	for rows.Next() {
		var (
			d                                   Device
			typ, status                         string
			calJSON                             sql.NullString
			registeredAt, lastPing, lastUpdated string
		)
		if err := rows.Scan(
			&d.SensorID, &d.Name, &typ, &d.Location.Latitude, &d.Location.Longitude, &d.Location.Field,
			&d.Settings.MoistureThreshold, &d.Settings.IrrigationDuration, &d.Settings.AutoMode, &d.Settings.WaterFlowRate,
			&status, &calJSON, &registeredAt, &lastPing, &lastUpdated,
		); err != nil {
			return nil, nil, fmt.Errorf("scanning device: %w", err)
		}
		d.Type = DeviceType(typ)
		d.Status = Status(status)
		d.RegisteredAt = parseTime(registeredAt)
		d.LastPing = parseTime(lastPing)
		d.LastUpdated = parseTime(lastUpdated)
		if calJSON.Valid && calJSON.String != "" {
			var cal Calibration
			if err := json.Unmarshal([]byte(calJSON.String), &cal); err != nil {
				return nil, nil, fmt.Errorf("unmarshalling calibration for %s: %w", d.SensorID, err)
			}
			d.Calibration = &cal
		}
		index[d.SensorID] = len(records)
		records = append(records, Record{Device: d, Events: []IrrigationEvent{}})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating devices: %w", err)
	}
	return records, index, nil
}

func (r *SQLiteRepository) loadStates(ctx context.Context, records []Record, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, "SELECT sensor_id, last_moisture, last_update FROM sensor_states")
	if err != nil {
		return fmt.Errorf("querying sensor states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         string
			moisture   float64
			lastUpdate string
		)
		if err := rows.Scan(&id, &moisture, &lastUpdate); err != nil {
			return fmt.Errorf("scanning sensor state: %w", err)
		}
		if i, ok := index[id]; ok {
			records[i].State = SensorState{LastMoisture: moisture, LastUpdate: parseTime(lastUpdate)}
		}
	}
	return rows.Err()
}

func (r *SQLiteRepository) loadEvents(ctx context.Context, records []Record, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sensor_id, id, start_time, duration, water_flow_rate,
			status, end_time, actual_duration, water_used
		FROM irrigation_events
		ORDER BY sensor_id, position`)
	if err != nil {
		return fmt.Errorf("querying irrigation events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev        IrrigationEvent
			status    string
			startTime string
			endTime   sql.NullString
		)
		if err := rows.Scan(
			&ev.SensorID, &ev.ID, &startTime, &ev.Duration, &ev.WaterFlowRate,
			&status, &endTime, &ev.ActualDuration, &ev.WaterUsed,
		); err != nil {
			return fmt.Errorf("scanning irrigation event: %w", err)
		}
		ev.Status = EventStatus(status)
		ev.StartTime = parseTime(startTime)
		if endTime.Valid {
			end := parseTime(endTime.String)
			ev.EndTime = &end
		}
		if i, ok := index[ev.SensorID]; ok {
			records[i].Events = append(records[i].Events, ev)
		}
	}
	return rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime ignores errors; the format is written by formatTime.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // Format is controlled
	return t
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
