package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the body of GET /metrics.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Macros        MacroMetrics     `json:"macros"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics is zero when the server runs without a broker.
type MQTTMetrics struct {
	Configured bool `json:"configured"`
	Connected  bool `json:"connected"`
}

type MacroMetrics struct {
	Total      int `json:"total"`
	ActiveRuns int `json:"active_runs"`
}

// DatabaseMetrics mirrors the sql.DBStats fields worth watching on SQLite.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

const bytesPerMB = 1 << 20

func readRuntimeMetrics() RuntimeMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(ms.Alloc) / bytesPerMB,
		MemoryTotalMB: float64(ms.TotalAlloc) / bytesPerMB,
		NumGC:         ms.NumGC,
	}
}

func (s *Server) databaseMetrics() *DatabaseMetrics {
	if s.db == nil {
		return nil
	}
	st := s.db.Stats()
	return &DatabaseMetrics{
		OpenConnections: st.OpenConnections,
		InUse:           st.InUse,
		Idle:            st.Idle,
		WaitCount:       st.WaitCount,
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime:       readRuntimeMetrics(),
		WebSocket:     WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Macros: MacroMetrics{
			Total:      s.library.GetMacroCount(),
			ActiveRuns: len(s.runner.ActiveRuns()),
		},
		Database: s.databaseMetrics(),
	}
	if s.mqtt != nil {
		m.MQTT = MQTTMetrics{Configured: true, Connected: s.mqtt.IsConnected()}
	}
	writeJSON(w, http.StatusOK, m)
}
