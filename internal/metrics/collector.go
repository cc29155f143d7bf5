// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Size metrics, in characters
	TotalPromptChars   int64
	TotalResponseChars int64
	MaxPromptChars     int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	AvgPromptChars   float64 `json:"avg_prompt_chars"`
	AvgResponseChars float64 `json:"avg_response_chars"`
	MaxPromptChars   int64   `json:"max_prompt_chars"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	ChunkSummary  *OperationSnapshot `json:"chunk_summary,omitempty"`
	MetaSummary   *OperationSnapshot `json:"meta_summary,omitempty"`
	Analysis      *OperationSnapshot `json:"analysis,omitempty"`
	Other         *OperationSnapshot `json:"other,omitempty"`
}

// Operation names for the collector.
const (
	OpChunkSummary = "chunk_summary"
	OpMetaSummary  = "meta_summary"
	OpAnalysis     = "analysis"
	OpOther        = "other"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe; a nil *Collector discards everything.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	prom      *promMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		prom:      newPromMetrics(),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordCall records timing and payload sizes for one upstream call.
func (c *Collector) RecordCall(op string, duration time.Duration, promptChars, responseChars int, failed bool) {
	if c == nil {
		return
	}
	c.prom.observeCall(op, duration, promptChars, failed)

	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	if failed {
		m.Failures++
	}
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	m.TotalPromptChars += int64(promptChars)
	m.TotalResponseChars += int64(responseChars)
	if int64(promptChars) > m.MaxPromptChars {
		m.MaxPromptChars = int64(promptChars)
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:            m.Count,
		Failures:         m.Failures,
		TotalTimeMs:      m.TotalTime.Milliseconds(),
		AvgTimeMs:        float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:        m.MinTime.Milliseconds(),
		MaxTimeMs:        m.MaxTime.Milliseconds(),
		AvgPromptChars:   float64(m.TotalPromptChars) / float64(m.Count),
		AvgResponseChars: float64(m.TotalResponseChars) / float64(m.Count),
		MaxPromptChars:   m.MaxPromptChars,
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		ChunkSummary:  snapshotOp(c.ops[OpChunkSummary]),
		MetaSummary:   snapshotOp(c.ops[OpMetaSummary]),
		Analysis:      snapshotOp(c.ops[OpAnalysis]),
		Other:         snapshotOp(c.ops[OpOther]),
	}
}
