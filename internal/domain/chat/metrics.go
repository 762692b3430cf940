package chat

import (
	"sync"
	"time"
)

// Metrics aggregates turn counters. Successful turns feed MessageCount and the
// average latency; failed turns are counted separately.
type Metrics struct {
	mu            sync.Mutex
	started       time.Time
	messages      int64
	totalLatency  time.Duration
	failures      int64
	failedLatency time.Duration
}

// MetricsSnapshot is a consistent read of Metrics.
type MetricsSnapshot struct {
	MessageCount        int64   `json:"message_count"`
	FailureCount        int64   `json:"failure_count"`
	AvgLatencyMs        float64 `json:"avg_latency_ms"`
	CumulativeLatencyMs float64 `json:"cumulative_latency_ms"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
}

func newMetrics(now time.Time) *Metrics {
	return &Metrics{started: now}
}

func (m *Metrics) recordSuccess(d time.Duration) {
	m.mu.Lock()
	m.messages++
	m.totalLatency += d
	m.mu.Unlock()
}

func (m *Metrics) recordFailure(d time.Duration) {
	m.mu.Lock()
	m.failures++
	m.failedLatency += d
	m.mu.Unlock()
}

// Snapshot returns the counters. AvgLatencyMs is 0 before the first success.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	cumulative := float64(m.totalLatency) / float64(time.Millisecond)
	var avg float64
	if m.messages > 0 {
		avg = cumulative / float64(m.messages)
	}
	return MetricsSnapshot{
		MessageCount:        m.messages,
		FailureCount:        m.failures,
		AvgLatencyMs:        avg,
		CumulativeLatencyMs: cumulative,
		UptimeSeconds:       time.Since(m.started).Seconds(),
	}
}
