package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the body of GET /api/v1/system.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	Controller    ControllerMetrics `json:"controller"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// ControllerMetrics summarises the controller streams.
type ControllerMetrics struct {
	Subsystems   int  `json:"subsystems"`
	OpenSessions int  `json:"open_sessions"`
	Reconnecting bool `json:"reconnecting"`
}

const bytesPerMB = 1024 * 1024

func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		Controller: ControllerMetrics{
			Subsystems:   len(s.controller.Subsystems()),
			OpenSessions: s.controller.OpenSessions(),
			Reconnecting: s.controller.Reconnecting(),
		},
	})
}
