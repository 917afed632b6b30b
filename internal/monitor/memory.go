// Package monitor watches the gateway process's own memory footprint. A
// pathological question (an unbounded fan-out join the Guard's LIMIT clamp
// doesn't fully protect against, or a result set summarized by the LLM)
// can spike heap usage; this reports pressure so cmd/serve can log it and,
// if it climbs past the configured threshold, force a collection.
package monitor

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// MemoryMonitor samples runtime.MemStats on an interval and forces garbage
// collection when allocation crosses gcThresholdMB or gcForceInterval has
// elapsed since the last forced collection.
type MemoryMonitor struct {
	mu                sync.RWMutex
	stats             Stats
	gcThresholdMB     int64
	gcForceInterval   time.Duration
	lastGC            time.Time
	stopMonitoring    chan struct{}
	monitoringStarted bool
}

// Stats is a snapshot of the process's memory usage at LastUpdated.
type Stats struct {
	AllocMB        float64   `json:"alloc_mb"`
	TotalAllocMB   float64   `json:"total_alloc_mb"`
	SysMB          float64   `json:"sys_mb"`
	NumGC          uint32    `json:"num_gc"`
	GCCPUFraction  float64   `json:"gc_cpu_fraction"`
	GoroutineCount int       `json:"goroutine_count"`
	LastUpdated    time.Time `json:"last_updated"`
}

// New creates a monitor that forces GC once allocation passes gcThresholdMB
// or gcForceInterval has elapsed, whichever comes first.
func New(gcThresholdMB int64, gcForceInterval time.Duration) *MemoryMonitor {
	return &MemoryMonitor{
		gcThresholdMB:   gcThresholdMB,
		gcForceInterval: gcForceInterval,
		stopMonitoring:  make(chan struct{}),
	}
}

// Start begins sampling on interval until the context is canceled or Stop
// is called. Safe to call once; a second call is a no-op.
func (m *MemoryMonitor) Start(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.monitoringStarted {
		return
	}

	m.monitoringStarted = true
	go m.monitorLoop(ctx, interval)
}

// Stop ends the sampling loop.
func (m *MemoryMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.monitoringStarted {
		return
	}

	select {
	case <-m.stopMonitoring:
	default:
		close(m.stopMonitoring)
	}

	m.monitoringStarted = false
}

// GetStats returns the most recent sample.
func (m *MemoryMonitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.stats
}

// ForceGC forces a collection if the configured threshold or interval has
// been exceeded since the last one.
func (m *MemoryMonitor) ForceGC() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	if m.stats.AllocMB > float64(m.gcThresholdMB) || now.Sub(m.lastGC) > m.gcForceInterval {
		runtime.GC()
		debug.FreeOSMemory()
		m.lastGC = now
		m.updateStats()
	}
}

// GetMemoryPressure returns allocated-over-system memory, clamped to
// [0, 1].
func (m *MemoryMonitor) GetMemoryPressure() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stats.SysMB == 0 {
		return 0
	}

	pressure := m.stats.AllocMB / m.stats.SysMB
	if pressure > 1.0 {
		pressure = 1.0
	}

	return pressure
}

// FormatStats renders the last sample as a human-readable block, suitable
// for a periodic log line.
func (m *MemoryMonitor) FormatStats() string {
	stats := m.GetStats()

	return fmt.Sprintf(
		"alloc=%.1fMB sys=%.1fMB goroutines=%d gc_runs=%d pressure=%.2f",
		stats.AllocMB, stats.SysMB, stats.GoroutineCount, stats.NumGC, m.GetMemoryPressure(),
	)
}

func (m *MemoryMonitor) monitorLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			m.updateStats()

			shouldForceGC := m.stats.AllocMB > float64(m.gcThresholdMB) ||
				time.Since(m.lastGC) > m.gcForceInterval

			m.mu.Unlock()

			if shouldForceGC {
				m.ForceGC()
			}
		case <-m.stopMonitoring:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *MemoryMonitor) updateStats() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.stats = Stats{
		AllocMB:        float64(memStats.Alloc) / 1024 / 1024,
		TotalAllocMB:   float64(memStats.TotalAlloc) / 1024 / 1024,
		SysMB:          float64(memStats.Sys) / 1024 / 1024,
		NumGC:          memStats.NumGC,
		GCCPUFraction:  memStats.GCCPUFraction,
		GoroutineCount: runtime.NumGoroutine(),
		LastUpdated:    time.Now(),
	}
}
