// Package metrics keeps in-process counters, gauges and histograms for the
// support context service and renders them in Prometheus text format.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Counter only goes up.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  atomic.Int64
}

// NewCounter creates a counter.
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{name: name, help: help, labels: copyLabels(labels)}
}

// Inc adds one.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds delta. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta > 0 {
		c.value.Add(delta)
	}
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.value.Load() }

// Reset sets the counter back to zero.
func (c *Counter) Reset() { c.value.Store(0) }

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Help returns the help text.
func (c *Counter) Help() string { return c.help }

// Labels returns a copy of the label set.
func (c *Counter) Labels() map[string]string { return copyLabels(c.labels) }

// Gauge holds a float value that can move both ways.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	bits   atomic.Uint64
}

// NewGauge creates a gauge.
func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{name: name, help: help, labels: copyLabels(labels)}
}

// Set replaces the value.
func (g *Gauge) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

// Add adds delta to the value.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Inc adds one.
func (g *Gauge) Inc() { g.Add(1) }

// Dec subtracts one.
func (g *Gauge) Dec() { g.Add(-1) }

// Value returns the current value.
func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// Help returns the help text.
func (g *Gauge) Help() string { return g.help }

// Labels returns a copy of the label set.
func (g *Gauge) Labels() map[string]string { return copyLabels(g.labels) }

// DefaultBuckets are millisecond latency bounds.
var DefaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64

	mu     sync.Mutex
	counts []int64 // per bucket, last slot is +Inf; not cumulative
	sum    float64
	count  int64
}

// NewHistogram creates a histogram. Nil or empty buckets use DefaultBuckets.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	return newHistogram(name, help, nil, buckets)
}

func newHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	return &Histogram{
		name:    name,
		help:    help,
		labels:  copyLabels(labels),
		buckets: bounds,
		counts:  make([]int64, len(bounds)+1),
	}
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.buckets, v)

	h.mu.Lock()
	h.counts[i]++
	h.sum += v
	h.count++
	h.mu.Unlock()
}

// HistogramSnapshot is a consistent view of a histogram.
type HistogramSnapshot struct {
	Buckets    []float64
	Cumulative []int64 // len(Buckets)+1, last entry is +Inf
	Sum        float64
	Count      int64
}

// Snapshot returns cumulative bucket counts with sum and count.
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	cum := make([]int64, len(h.counts))
	var running int64
	for i, c := range h.counts {
		running += c
		cum[i] = running
	}
	return HistogramSnapshot{
		Buckets:    append([]float64(nil), h.buckets...),
		Cumulative: cum,
		Sum:        h.sum,
		Count:      h.count,
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of observations.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Name returns the metric name.
func (h *Histogram) Name() string { return h.name }

// Help returns the help text.
func (h *Histogram) Help() string { return h.help }

// Labels returns a copy of the label set.
func (h *Histogram) Labels() map[string]string { return copyLabels(h.labels) }

// family holds one labelled child per distinct label-value tuple.
type family[M any] struct {
	name       string
	help       string
	labelNames []string
	make       func(labels map[string]string) M

	mu      sync.RWMutex
	members map[string]M
}

func (f *family[M]) init(name, help string, labelNames []string, mk func(map[string]string) M) {
	f.name = name
	f.help = help
	f.labelNames = labelNames
	f.make = mk
	f.members = make(map[string]M)
}

func (f *family[M]) with(values ...string) M {
	if len(values) != len(f.labelNames) {
		panic(fmt.Sprintf("metrics: %s expects %d label values, got %d", f.name, len(f.labelNames), len(values)))
	}
	key := strings.Join(values, "\xff")

	f.mu.RLock()
	m, ok := f.members[key]
	f.mu.RUnlock()
	if ok {
		return m
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[key]; ok {
		return m
	}
	labels := make(map[string]string, len(values))
	for i, n := range f.labelNames {
		labels[n] = values[i]
	}
	m = f.make(labels)
	f.members[key] = m
	return m
}

// all returns children ordered by label values for stable exposition.
func (f *family[M]) all() []M {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := make([]string, 0, len(f.members))
	for k := range f.members {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]M, len(keys))
	for i, k := range keys {
		out[i] = f.members[k]
	}
	return out
}

// CounterVec is a counter family keyed by labels.
type CounterVec struct{ family[*Counter] }

// NewCounterVec creates a counter family.
func NewCounterVec(name, help string, labelNames []string) *CounterVec {
	v := &CounterVec{}
	v.init(name, help, labelNames, func(l map[string]string) *Counter {
		return NewCounter(name, help, l)
	})
	return v
}

// WithLabels returns the counter for the given label values.
func (v *CounterVec) WithLabels(values ...string) *Counter { return v.with(values...) }

// GetAll returns every child counter.
func (v *CounterVec) GetAll() []*Counter { return v.all() }

// Name returns the metric name.
func (v *CounterVec) Name() string { return v.name }

// Help returns the help text.
func (v *CounterVec) Help() string { return v.help }

// GaugeVec is a gauge family keyed by labels.
type GaugeVec struct{ family[*Gauge] }

// NewGaugeVec creates a gauge family.
func NewGaugeVec(name, help string, labelNames []string) *GaugeVec {
	v := &GaugeVec{}
	v.init(name, help, labelNames, func(l map[string]string) *Gauge {
		return NewGauge(name, help, l)
	})
	return v
}

// WithLabels returns the gauge for the given label values.
func (v *GaugeVec) WithLabels(values ...string) *Gauge { return v.with(values...) }

// GetAll returns every child gauge.
func (v *GaugeVec) GetAll() []*Gauge { return v.all() }

// Name returns the metric name.
func (v *GaugeVec) Name() string { return v.name }

// Help returns the help text.
func (v *GaugeVec) Help() string { return v.help }

// HistogramVec is a histogram family keyed by labels.
type HistogramVec struct{ family[*Histogram] }

// NewHistogramVec creates a histogram family sharing one bucket layout.
func NewHistogramVec(name, help string, labelNames []string, buckets []float64) *HistogramVec {
	v := &HistogramVec{}
	v.init(name, help, labelNames, func(l map[string]string) *Histogram {
		return newHistogram(name, help, l, buckets)
	})
	return v
}

// WithLabels returns the histogram for the given label values.
func (v *HistogramVec) WithLabels(values ...string) *Histogram { return v.with(values...) }

// GetAll returns every child histogram.
func (v *HistogramVec) GetAll() []*Histogram { return v.all() }

// Name returns the metric name.
func (v *HistogramVec) Name() string { return v.name }

// Help returns the help text.
func (v *HistogramVec) Help() string { return v.help }

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
