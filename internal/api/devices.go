package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/fieldsim-core/internal/device"
)

// handleListDevices returns devices, with optional query filters.
//
// Query parameters:
//   - type: filter by device type
//   - lat, lon, radius_km: only devices within radius_km of the point,
//     nearest first. All three are required together.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var typ device.DeviceType
	if t := q.Get("type"); t != "" {
		typ = device.DeviceType(t)
		if !typ.Valid() {
			writeBadRequest(w, "unknown device type: "+t)
			return
		}
	}

	var devices []device.Device
	switch {
	case q.Has("lat") || q.Has("lon") || q.Has("radius_km"):
		lat, lon, radius, err := parseNear(q.Get("lat"), q.Get("lon"), q.Get("radius_km"))
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		devices, err = s.registry.ListNear(ctx, lat, lon, radius)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		if typ != "" {
			devices = filterType(devices, typ)
		}
	case typ != "":
		devices = s.registry.ListByType(ctx, typ)
	default:
		devices = s.registry.List(ctx)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func parseNear(latStr, lonStr, radiusStr string) (lat, lon, radius float64, err error) {
	if latStr == "" || lonStr == "" || radiusStr == "" {
		return 0, 0, 0, errors.New("lat, lon and radius_km are required together")
	}
	if lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return 0, 0, 0, errors.New("invalid lat")
	}
	if lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return 0, 0, 0, errors.New("invalid lon")
	}
	if radius, err = strconv.ParseFloat(radiusStr, 64); err != nil {
		return 0, 0, 0, errors.New("invalid radius_km")
	}
	return lat, lon, radius, nil
}

func filterType(devices []device.Device, t device.DeviceType) []device.Device {
	out := devices[:0]
	for _, d := range devices {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

// handleCreateDevice registers a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req device.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.registry.Register(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dev)
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device and its history.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Unregister(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTelemetry synthesizes and returns the device's current reading.
func (s *Server) handleGetTelemetry(w http.ResponseWriter, r *http.Request) {
	reading, err := s.telemetry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// handleUpdateSettings merges a partial settings update.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch device.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.registry.UpdateSettings(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleGetStatus returns the device status snapshot.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.registry.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleSetStatus marks a device online or offline.
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status device.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.registry.SetStatus(r.Context(), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCalibrate records a calibration.
func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	var in device.CalibrationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cal, err := s.registry.Calibrate(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

// handleListEvents returns a device's irrigation events in creation order.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.registry.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
