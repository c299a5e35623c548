package metrics

import (
	"context"
	"runtime"
	"time"
)

// Collector samples process statistics into gauges.
type Collector struct {
	metrics  *Metrics
	interval time.Duration
}

// NewCollector creates a collector. A non-positive interval means 15s.
func NewCollector(m *Metrics, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{metrics: m, interval: interval}
}

// Collect takes one sample.
func (c *Collector) Collect() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))
	c.metrics.MemoryBytes.Set(float64(mem.Alloc))
	c.metrics.Uptime.Set(time.Since(c.metrics.startTime).Seconds())
}

// Run samples immediately and then every interval until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	c.Collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}
