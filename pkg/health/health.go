package health

import (
	"runtime"
	"time"
)

// ServerHealth is a point-in-time snapshot of process health for the
// health endpoint.
type ServerHealth struct {
	Status            string    `json:"status"`
	Uptime            int64     `json:"uptime_seconds"`
	Timestamp         time.Time `json:"timestamp"`
	OnlineConnections int       `json:"online_connections"`
	KnownIdentities   int       `json:"known_identities"`
	Goroutines        int       `json:"goroutines"`
	MemoryMB          uint64    `json:"memory_mb"`
}

// Monitor tracks server uptime and produces health snapshots
type Monitor struct {
	startTime time.Time
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{startTime: time.Now()}
}

// GetHealth returns the current server health
func (m *Monitor) GetHealth(online, known int) *ServerHealth {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	return &ServerHealth{
		Status:            "healthy",
		Uptime:            int64(time.Since(m.startTime).Seconds()),
		Timestamp:         time.Now(),
		OnlineConnections: online,
		KnownIdentities:   known,
		Goroutines:        runtime.NumGoroutine(),
		MemoryMB:          stats.Alloc / 1024 / 1024,
	}
}
