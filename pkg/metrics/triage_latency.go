// Package metrics tracks model call latencies and outcomes in process.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a sliding window of latency samples.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
	sorted     bool
}

// NewLatencyTracker creates a tracker keeping at most windowSize samples.
func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 500
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

// Record records a latency measurement.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) >= lt.maxSamples {
		// drop the oldest 10% at once to avoid shifting on every insert
		drop := lt.maxSamples / 10
		if drop < 1 {
			drop = 1
		}
		lt.samples = append(lt.samples[:0], lt.samples[drop:]...)
	}

	lt.samples = append(lt.samples, d.Microseconds())
	lt.sorted = false
}

// Stats returns latency statistics including percentiles.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	n := len(lt.samples)
	if n == 0 {
		return LatencyStats{}
	}

	if !lt.sorted {
		sort.Slice(lt.samples, func(i, j int) bool { return lt.samples[i] < lt.samples[j] })
		lt.sorted = true
	}

	var sum int64
	for _, v := range lt.samples {
		sum += v
	}

	return LatencyStats{
		Count: n,
		Min:   micros(lt.samples[0]),
		Max:   micros(lt.samples[n-1]),
		Avg:   micros(sum / int64(n)),
		P50:   micros(lt.percentile(0.50)),
		P95:   micros(lt.percentile(0.95)),
		P99:   micros(lt.percentile(0.99)),
	}
}

// percentile must be called with the lock held and samples sorted.
func (lt *LatencyTracker) percentile(p float64) int64 {
	idx := int(float64(len(lt.samples)-1) * p)
	return lt.samples[idx]
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count int
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// ToMap renders the stats in milliseconds for JSON responses.
func (s LatencyStats) ToMap() map[string]any {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return map[string]any{
		"count":  s.Count,
		"min_ms": ms(s.Min),
		"max_ms": ms(s.Max),
		"avg_ms": ms(s.Avg),
		"p50_ms": ms(s.P50),
		"p95_ms": ms(s.P95),
		"p99_ms": ms(s.P99),
	}
}

// ModelMetrics records latency per backend and a counter per call outcome.
type ModelMetrics struct {
	mu       sync.RWMutex
	window   int
	trackers map[string]*LatencyTracker
	outcomes map[string]int64
}

// NewModelMetrics creates an empty registry.
func NewModelMetrics(windowSize int) *ModelMetrics {
	return &ModelMetrics{
		window:   windowSize,
		trackers: make(map[string]*LatencyTracker),
		outcomes: make(map[string]int64),
	}
}

// Observe records one model call for backend with the given outcome label.
func (m *ModelMetrics) Observe(backend, outcome string, d time.Duration) {
	m.mu.Lock()
	tracker, ok := m.trackers[backend]
	if !ok {
		tracker = NewLatencyTracker(m.window)
		m.trackers[backend] = tracker
	}
	m.outcomes[outcome]++
	m.mu.Unlock()

	tracker.Record(d)
}

// Snapshot returns latency stats per backend and outcome counters.
func (m *ModelMetrics) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latency := make(map[string]any, len(m.trackers))
	for name, tracker := range m.trackers {
		latency[name] = tracker.Stats().ToMap()
	}
	outcomes := make(map[string]int64, len(m.outcomes))
	for k, v := range m.outcomes {
		outcomes[k] = v
	}
	return map[string]any{
		"latency":  latency,
		"outcomes": outcomes,
	}
}
