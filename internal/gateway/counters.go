package gateway

import (
	"sync/atomic"
	"time"
)

// Counters tracks gateway-level totals using atomic operations for
// lock-free concurrency. They back the /statusz JSON view; the
// Prometheus collectors in internal/metrics are the scrape surface.
type Counters struct {
	completions  atomic.Int64
	messages     atomic.Int64
	errors       atomic.Int64
	totalTokens  atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// RecordCompletion records a successful exchange.
func (c *Counters) RecordCompletion(tokens int, latency time.Duration) {
	c.completions.Add(1)
	c.totalTokens.Add(int64(tokens))
	c.totalLatency.Add(int64(latency))
}

// RecordMessage records an inbound message.
func (c *Counters) RecordMessage() {
	c.messages.Add(1)
}

// RecordError records a failed exchange.
func (c *Counters) RecordError() {
	c.errors.Add(1)
}

// Snapshot returns a consistent point-in-time view of the counters.
func (c *Counters) Snapshot() CountersSnapshot {
	completions := c.completions.Load()
	snap := CountersSnapshot{
		Completions: completions,
		Messages:    c.messages.Load(),
		Errors:      c.errors.Load(),
		TotalTokens: c.totalTokens.Load(),
	}
	if completions > 0 {
		snap.AvgLatency = time.Duration(c.totalLatency.Load() / completions)
	}
	return snap
}

// CountersSnapshot is a serializable point-in-time counters view.
type CountersSnapshot struct {
	Completions int64         `json:"completions"`
	Messages    int64         `json:"messages"`
	Errors      int64         `json:"errors"`
	TotalTokens int64         `json:"total_tokens"`
	AvgLatency  time.Duration `json:"avg_latency_ns"`
}
