package metrics

import (
	"context"
	"sync"
	"time"
)

// DataPoint is one finished time bucket.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// HistoryStore persists finished buckets so charts survive restarts.
type HistoryStore interface {
	SaveDataPoint(ctx context.Context, metric string, dp DataPoint) error
	LoadHistory(ctx context.Context, metric string, since time.Time) ([]DataPoint, error)
}

// Aggregation decides how observations inside a bucket are combined.
type Aggregation int

const (
	// Mean stores the average of the bucket's observations.
	Mean Aggregation = iota
	// Sum stores the total of the bucket's observations.
	Sum
)

// MetricHistory keeps a rolling window of fixed-size time buckets.
type MetricHistory struct {
	name       string
	bucketSize time.Duration
	maxBuckets int
	agg        Aggregation
	store      HistoryStore
	now        func() time.Time

	mu      sync.Mutex
	points  []DataPoint
	current time.Time
	acc     float64
	n       int64

	saves sync.WaitGroup
}

// NewMetricHistory creates a history. store may be nil; when set, earlier
// points inside the window are loaded from it.
func NewMetricHistory(name string, bucketSize time.Duration, maxBuckets int, agg Aggregation, store HistoryStore) *MetricHistory {
	h := &MetricHistory{
		name:       name,
		bucketSize: bucketSize,
		maxBuckets: maxBuckets,
		agg:        agg,
		store:      store,
		now:        time.Now,
	}
	h.current = h.now().Truncate(bucketSize)

	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		since := h.current.Add(-time.Duration(maxBuckets) * bucketSize)
		if points, err := store.LoadHistory(ctx, name, since); err == nil {
			h.points = h.trim(points)
		}
	}
	return h
}

// Record adds one observation to the current bucket.
func (h *MetricHistory) Record(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.roll()
	h.acc += v
	h.n++
}

// Points returns finished buckets followed by the open bucket when it has data.
func (h *MetricHistory) Points() []DataPoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.roll()
	out := append([]DataPoint(nil), h.points...)
	if h.n > 0 {
		out = append(out, DataPoint{Timestamp: h.current, Value: h.value()})
	}
	return out
}

// Wait blocks until pending saves to the store have finished.
func (h *MetricHistory) Wait() {
	h.saves.Wait()
}

// roll closes the open bucket once the clock has moved past it. Caller holds mu.
func (h *MetricHistory) roll() {
	bucket := h.now().Truncate(h.bucketSize)
	if !bucket.After(h.current) {
		return
	}
	if h.n > 0 {
		dp := DataPoint{Timestamp: h.current, Value: h.value()}
		h.points = h.trim(append(h.points, dp))
		h.save(dp)
	}
	h.current = bucket
	h.acc = 0
	h.n = 0
}

func (h *MetricHistory) value() float64 {
	if h.agg == Sum || h.n == 0 {
		return h.acc
	}
	return h.acc / float64(h.n)
}

func (h *MetricHistory) trim(points []DataPoint) []DataPoint {
	if len(points) > h.maxBuckets {
		return points[len(points)-h.maxBuckets:]
	}
	return points
}

func (h *MetricHistory) save(dp DataPoint) {
	if h.store == nil {
		return
	}
	h.saves.Add(1)
	go func() {
		defer h.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.store.SaveDataPoint(ctx, h.name, dp)
	}()
}

// TimeSeries groups the histories shown on dashboards: five-minute buckets
// over the last hour.
type TimeSeries struct {
	SearchRate     *MetricHistory
	SearchLatency  *MetricHistory
	ContextRate    *MetricHistory
	ContextSources *MetricHistory
}

const (
	historyBucket = 5 * time.Minute
	historyWindow = 12
)

// NewTimeSeries creates the dashboard histories. store may be nil.
func NewTimeSeries(store HistoryStore) *TimeSeries {
	return &TimeSeries{
		SearchRate:     NewMetricHistory("search_rate", historyBucket, historyWindow, Sum, store),
		SearchLatency:  NewMetricHistory("search_latency_ms", historyBucket, historyWindow, Mean, store),
		ContextRate:    NewMetricHistory("context_rate", historyBucket, historyWindow, Sum, store),
		ContextSources: NewMetricHistory("context_sources", historyBucket, historyWindow, Mean, store),
	}
}

// Snapshot returns every history keyed by name.
func (t *TimeSeries) Snapshot() map[string][]DataPoint {
	out := make(map[string][]DataPoint, 4)
	for _, h := range t.all() {
		out[h.name] = h.Points()
	}
	return out
}

// Wait blocks until all pending saves have finished.
func (t *TimeSeries) Wait() {
	for _, h := range t.all() {
		h.Wait()
	}
}

func (t *TimeSeries) all() []*MetricHistory {
	return []*MetricHistory{t.SearchRate, t.SearchLatency, t.ContextRate, t.ContextSources}
}
