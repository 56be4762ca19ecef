// Package debug provides opt-in request logging and per-path request statistics
// for the exporter's HTTP server.
package debug

import (
	"sync"
	"time"
)

// DebugConfig holds debug mode state and the request statistics collected while it is on.
type DebugConfig struct {
	enabled bool
	mu      sync.RWMutex
	stats   *Stats
}

// Stats holds request statistics.
type Stats struct {
	RequestCount  int64
	TotalDuration time.Duration
	LastUpdated   time.Time
	Paths         map[string]*PathStats
}

// PathStats holds per-path statistics.
type PathStats struct {
	Count         int64
	TotalDuration time.Duration
	LastStatus    int
	LastAccess    time.Time
}

// NewDebugConfig creates a new DebugConfig with the specified enabled state.
func NewDebugConfig(enabled bool) *DebugConfig {
	return &DebugConfig{
		enabled: enabled,
		stats:   &Stats{Paths: make(map[string]*PathStats)},
	}
}

// IsEnabled returns whether debug mode is enabled.
func (d *DebugConfig) IsEnabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// RecordRequest records one served request. It is a no-op when debug mode is off.
func (d *DebugConfig) RecordRequest(path string, status int, duration time.Duration) {
	if !d.IsEnabled() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	d.stats.RequestCount++
	d.stats.TotalDuration += duration
	d.stats.LastUpdated = now

	ps := d.stats.Paths[path]
	if ps == nil {
		ps = &PathStats{}
		d.stats.Paths[path] = ps
	}
	ps.Count++
	ps.TotalDuration += duration
	ps.LastStatus = status
	ps.LastAccess = now
}

// GetStats returns a deep copy of the current statistics.
func (d *DebugConfig) GetStats() *Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := &Stats{
		RequestCount:  d.stats.RequestCount,
		TotalDuration: d.stats.TotalDuration,
		LastUpdated:   d.stats.LastUpdated,
		Paths:         make(map[string]*PathStats, len(d.stats.Paths)),
	}
	for path, ps := range d.stats.Paths {
		cp := *ps
		out.Paths[path] = &cp
	}
	return out
}

// ResetStats clears all collected statistics.
func (d *DebugConfig) ResetStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = &Stats{Paths: make(map[string]*PathStats)}
}
