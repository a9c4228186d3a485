package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxNotesLength    = 1024
	maxSensorIDLength = 64
	maxCalibrationAbs = 50.0
	idSuffixLength    = 8
)

// idPrefixes maps each device type to the prefix of its generated IDs.
var idPrefixes = map[DeviceType]string{
	TypeSoilMoisture:         "sm",
	TypeIrrigationController: "ic",
	TypeEnvironmentalMonitor: "em",
}

// GenerateID returns a new sensor ID of the form
// <prefix>_<base36 unix millis>_<random suffix>.
func GenerateID(t DeviceType, now time.Time) string {
	prefix, ok := idPrefixes[t]
	if !ok {
		prefix = "dev"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:idSuffixLength]
	return prefix + "_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + suffix
}

// ValidateSettings checks that s is usable by the scheduler.
func ValidateSettings(s Settings) error {
	if !finite(s.MoistureThreshold) || s.MoistureThreshold < 0 || s.MoistureThreshold > 100 {
		return fmt.Errorf("%w: moisture threshold %v outside [0, 100]", ErrInvalidConfiguration, s.MoistureThreshold)
	}
	if err := ValidateDuration(s.IrrigationDuration); err != nil {
		return err
	}
	if !finite(s.WaterFlowRate) || s.WaterFlowRate <= 0 {
		return fmt.Errorf("%w: water flow rate must be positive, got %v", ErrInvalidConfiguration, s.WaterFlowRate)
	}
	return nil
}

// ValidateDuration checks a run length in minutes.
func ValidateDuration(minutes int) error {
	if minutes <= 0 || minutes > MaxIrrigationDuration {
		return fmt.Errorf("%w: irrigation duration %d outside [1, %d] minutes", ErrInvalidConfiguration, minutes, MaxIrrigationDuration)
	}
	return nil
}

// ValidateLocation checks coordinate ranges.
func ValidateLocation(l Location) error {
	if !finite(l.Latitude) || l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidConfiguration, l.Latitude)
	}
	if !finite(l.Longitude) || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidConfiguration, l.Longitude)
	}
	return nil
}

// ValidateCalibration checks a calibration input before it is recorded.
func ValidateCalibration(in CalibrationInput) error {
	if !finite(in.Offset) || math.Abs(in.Offset) > maxCalibrationAbs {
		return fmt.Errorf("%w: calibration offset %v outside [-%v, %v]", ErrInvalidConfiguration, in.Offset, maxCalibrationAbs, maxCalibrationAbs)
	}
	if ref := in.ReferenceMoisture; ref != nil && (!finite(*ref) || *ref < 0 || *ref > 100) {
		return fmt.Errorf("%w: reference moisture %v outside [0, 100]", ErrInvalidConfiguration, *ref)
	}
	if len(in.Notes) > maxNotesLength {
		return fmt.Errorf("%w: notes exceed %d characters", ErrInvalidConfiguration, maxNotesLength)
	}
	return nil
}

func validateRegistration(req RegisterRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown device type %q", ErrInvalidConfiguration, req.Type)
	}
	if len(req.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidConfiguration, maxNameLength)
	}
	if len(req.SensorID) > maxSensorIDLength || strings.ContainsAny(req.SensorID, " /?#") {
		return fmt.Errorf("%w: malformed sensor id %q", ErrInvalidConfiguration, req.SensorID)
	}
	return ValidateLocation(req.Location)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
