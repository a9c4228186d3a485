package device

import "time"

// DeviceType classifies a simulated field device.
type DeviceType string

const (
	TypeSoilMoisture         DeviceType = "soil_moisture"
	TypeIrrigationController DeviceType = "irrigation_controller"
	TypeEnvironmentalMonitor DeviceType = "environmental_monitor"
)

// AllDeviceTypes returns every recognised device type.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{TypeSoilMoisture, TypeIrrigationController, TypeEnvironmentalMonitor}
}

// Valid reports whether t is a recognised device type.
func (t DeviceType) Valid() bool {
	_, ok := idPrefixes[t]
	return ok
}

// Status is the connectivity status of a device.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Location places a device in a field.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Field     string  `json:"field,omitempty"`
}

// Settings is the irrigation configuration of a device.
type Settings struct {
	// MoistureThreshold is the moisture percentage below which auto mode irrigates.
	MoistureThreshold float64 `json:"moisture_threshold"`
	// IrrigationDuration is the default run length in minutes.
	IrrigationDuration int  `json:"irrigation_duration"`
	AutoMode           bool `json:"auto_mode"`
	// WaterFlowRate is in litres per minute.
	WaterFlowRate float64 `json:"water_flow_rate"`
}

// Default settings applied to fields omitted at registration.
const (
	DefaultMoistureThreshold  = 30.0
	DefaultIrrigationDuration = 15
	DefaultAutoMode           = true
	DefaultWaterFlowRate      = 10.0
)

// MaxIrrigationDuration is the longest run, in minutes, a device may be
// configured for or asked to perform.
const MaxIrrigationDuration = 24 * 60

// DefaultSettings returns the settings a device gets when none are supplied.
func DefaultSettings() Settings {
	return Settings{
		MoistureThreshold:  DefaultMoistureThreshold,
		IrrigationDuration: DefaultIrrigationDuration,
		AutoMode:           DefaultAutoMode,
		WaterFlowRate:      DefaultWaterFlowRate,
	}
}

// SettingsPatch is a partial settings update. Nil fields are left untouched.
type SettingsPatch struct {
	MoistureThreshold  *float64 `json:"moisture_threshold,omitempty"`
	IrrigationDuration *int     `json:"irrigation_duration,omitempty"`
	AutoMode           *bool    `json:"auto_mode,omitempty"`
	WaterFlowRate      *float64 `json:"water_flow_rate,omitempty"`
}

// Apply returns base with every non-nil field of p merged over it.
func (p SettingsPatch) Apply(base Settings) Settings {
	if p.MoistureThreshold != nil {
		base.MoistureThreshold = *p.MoistureThreshold
	}
	if p.IrrigationDuration != nil {
		base.IrrigationDuration = *p.IrrigationDuration
	}
	if p.AutoMode != nil {
		base.AutoMode = *p.AutoMode
	}
	if p.WaterFlowRate != nil {
		base.WaterFlowRate = *p.WaterFlowRate
	}
	return base
}

// Calibration is the most recent calibration record of a device.
type Calibration struct {
	Offset            float64   `json:"offset"`
	ReferenceMoisture *float64  `json:"reference_moisture,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	CalibratedBy      string    `json:"calibrated_by"`
	CalibratedAt      time.Time `json:"calibrated_at"`
}

// CalibrationInput is the caller-supplied part of a calibration.
type CalibrationInput struct {
	Offset            float64  `json:"offset"`
	ReferenceMoisture *float64 `json:"reference_moisture,omitempty"`
	Notes             string   `json:"notes,omitempty"`
	// CalibratedBy defaults to DefaultOperator when empty.
	CalibratedBy string `json:"calibrated_by,omitempty"`
}

// DefaultOperator is recorded when a calibration names no operator.
const DefaultOperator = "system"

// Device is a registered simulated field device.
type Device struct {
	SensorID string     `json:"sensor_id"`
	Name     string     `json:"name"`
	Type     DeviceType `json:"type"`
	Location Location   `json:"location"`
	Settings Settings   `json:"settings"`
	Status   Status     `json:"status"`

	Calibration *Calibration `json:"calibration,omitempty"`

	RegisteredAt time.Time `json:"registered_at"`
	LastPing     time.Time `json:"last_ping"`
	LastUpdated  time.Time `json:"last_updated"`
}

// DeepCopy returns an independent copy of the device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.Calibration != nil {
		cal := *d.Calibration
		if cal.ReferenceMoisture != nil {
			ref := *cal.ReferenceMoisture
			cal.ReferenceMoisture = &ref
		}
		cpy.Calibration = &cal
	}
	return &cpy
}

// RegisterRequest describes a device to register.
type RegisterRequest struct {
	// SensorID is optional; one is generated when empty.
	SensorID string     `json:"sensor_id,omitempty"`
	Name     string     `json:"name"`
	Type     DeviceType `json:"type"`
	Location Location   `json:"location"`
	// Settings fields left nil take the defaults.
	Settings SettingsPatch `json:"settings"`
}

// SensorState is the simulated physical reading of a device.
type SensorState struct {
	LastMoisture float64   `json:"last_moisture"`
	LastUpdate   time.Time `json:"last_update"`
}

// EventStatus is the lifecycle state of an irrigation event.
type EventStatus string

const (
	EventActive    EventStatus = "active"
	EventCompleted EventStatus = "completed"
)

// IrrigationEvent records one irrigation run.
type IrrigationEvent struct {
	ID        string    `json:"id"`
	SensorID  string    `json:"sensor_id"`
	StartTime time.Time `json:"start_time"`
	// Duration is the effective run length in minutes.
	Duration int `json:"duration"`
	// WaterFlowRate is the device's flow rate at trigger time.
	WaterFlowRate float64     `json:"water_flow_rate"`
	Status        EventStatus `json:"status"`

	EndTime        *time.Time `json:"end_time,omitempty"`
	ActualDuration int        `json:"actual_duration,omitempty"`
	WaterUsed      float64    `json:"water_used,omitempty"`
}

// EstimatedWaterUsage returns duration × flow rate in litres.
func (e IrrigationEvent) EstimatedWaterUsage() float64 {
	return float64(e.Duration) * e.WaterFlowRate
}

// clone returns a copy that shares no pointers with e.
func (e IrrigationEvent) clone() IrrigationEvent {
	if e.EndTime != nil {
		end := *e.EndTime
		e.EndTime = &end
	}
	return e
}

// DeviceStatus is an observation-time snapshot of a device.
// BatteryLevel and SignalStrength are synthesized per call and never stored.
type DeviceStatus struct {
	SensorID          string       `json:"sensor_id"`
	Name              string       `json:"name"`
	Type              DeviceType   `json:"type"`
	Status            Status       `json:"status"`
	Location          Location     `json:"location"`
	Settings          Settings     `json:"settings"`
	Calibration       *Calibration `json:"calibration,omitempty"`
	Moisture          float64      `json:"moisture"`
	BatteryLevel      float64      `json:"battery_level"`
	SignalStrength    float64      `json:"signal_strength"`
	ActiveIrrigations int          `json:"active_irrigations"`
	LastPing          time.Time    `json:"last_ping"`
	ObservedAt        time.Time    `json:"observed_at"`
}

// Record is the full state of one device, used for snapshots.
type Record struct {
	Device Device            `json:"device"`
	State  SensorState       `json:"state"`
	Events []IrrigationEvent `json:"events"`
}
