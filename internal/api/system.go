package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemStats represents the system status response.
type SystemStats struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeStats   `json:"runtime"`
	WebSocket     WSStats        `json:"websocket"`
	MQTT          MQTTStats      `json:"mqtt"`
	Devices       DeviceStats    `json:"devices"`
	Irrigation    IrrigationStat `json:"irrigation"`
	Database      *DatabaseStats `json:"database,omitempty"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSStats contains WebSocket hub statistics.
type WSStats struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTStats contains MQTT client statistics.
type MQTTStats struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// DeviceStats contains device registry statistics.
type DeviceStats struct {
	Total    int            `json:"total"`
	ByType   map[string]int `json:"by_type"`
	ByStatus map[string]int `json:"by_status"`
}

// IrrigationStat contains scheduler statistics.
type IrrigationStat struct {
	Active             int `json:"active"`
	PendingCompletions int `json:"pending_completions"`
}

// DatabaseStats contains database connection pool statistics.
type DatabaseStats struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystem returns runtime and component statistics.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := SystemStats{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Devices: DeviceStats{
			ByType:   make(map[string]int),
			ByStatus: make(map[string]int),
		},
		Irrigation: IrrigationStat{
			Active:             len(s.registry.ActiveEvents(ctx)),
			PendingCompletions: s.scheduler.Pending(),
		},
	}

	if s.hub != nil {
		stats.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	if s.mqtt != nil {
		stats.MQTT = MQTTStats{Enabled: true, Connected: s.mqtt.IsConnected()}
	}

	devices := s.registry.List(ctx)
	stats.Devices.Total = len(devices)
	for _, d := range devices {
		stats.Devices.ByType[string(d.Type)]++
		stats.Devices.ByStatus[string(d.Status)]++
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		stats.Database = &DatabaseStats{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, stats)
}
