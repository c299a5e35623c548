package metrics

import (
	"time"

	"github.com/ricesearch/support-context/internal/config"
	"github.com/ricesearch/support-context/internal/pkg/logger"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Search
	SearchRequests *Counter
	SearchLatency  *Histogram
	SearchResults  *Histogram

	// Context engine
	ContextBuilds    *Counter
	ContextLatency   *Histogram
	ContextSources   *CounterVec // labels: source_type
	ContextRelevance *Histogram
	EmptyContexts    *Counter

	// Corpus
	CorpusReloads *Counter
	CorpusItems   *GaugeVec // labels: kind

	// Search response cache
	CacheHits   *CounterVec // labels: cache
	CacheMisses *CounterVec // labels: cache

	// Bus
	BusEventsPublished *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic

	// HTTP
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// Process
	Goroutines  *Gauge
	MemoryBytes *Gauge
	Uptime      *Gauge

	// Dashboard histories
	TimeSeries *TimeSeries

	redis     *RedisStorage
	startTime time.Time
}

// New creates metrics with in-memory history.
func New() *Metrics {
	return newMetrics(nil)
}

// NewFromConfig creates metrics, persisting history to Redis when
// configured. An unreachable Redis falls back to memory with a warning.
func NewFromConfig(cfg config.MetricsConfig, log *logger.Logger) *Metrics {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.Persistence != "redis" || cfg.RedisURL == "" {
		return New()
	}

	storage, err := NewRedisStorage(cfg.RedisURL)
	if err != nil {
		log.WithComponent("metrics").WithError(err).Warn("Metrics history falling back to memory")
		return New()
	}
	return newMetrics(storage)
}

func newMetrics(storage *RedisStorage) *Metrics {
	var history HistoryStore
	if storage != nil {
		history = storage
	}

	return &Metrics{
		SearchRequests: NewCounter(
			"support_search_requests_total",
			"Searches executed (cache misses)",
			nil,
		),
		SearchLatency: NewHistogram(
			"support_search_latency_ms",
			"Search processing time in milliseconds",
			[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		),
		SearchResults: NewHistogram(
			"support_search_results",
			"Total matches per search",
			[]float64{0, 1, 5, 10, 20, 50, 100, 500},
		),

		ContextBuilds: NewCounter(
			"support_context_builds_total",
			"Chat contexts built",
			nil,
		),
		ContextLatency: NewHistogram(
			"support_context_latency_ms",
			"Context build time in milliseconds",
			[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		),
		ContextSources: NewCounterVec(
			"support_context_sources_total",
			"Sources returned in built contexts",
			[]string{"source_type"},
		),
		ContextRelevance: NewHistogram(
			"support_context_total_relevance",
			"Sum of relevance scores per built context",
			[]float64{0.5, 1, 2, 3, 5, 8, 10},
		),
		EmptyContexts: NewCounter(
			"support_context_empty_total",
			"Context builds that returned no sources",
			nil,
		),

		CorpusReloads: NewCounter(
			"support_corpus_reloads_total",
			"Corpus imports completed",
			nil,
		),
		CorpusItems: NewGaugeVec(
			"support_corpus_last_import_items",
			"Items loaded by the most recent corpus import",
			[]string{"kind"},
		),

		CacheHits: NewCounterVec(
			"support_cache_hits_total",
			"Search response cache hits",
			[]string{"cache"},
		),
		CacheMisses: NewCounterVec(
			"support_cache_misses_total",
			"Search response cache misses",
			[]string{"cache"},
		),

		BusEventsPublished: NewCounterVec(
			"support_bus_events_published_total",
			"Events published to the bus",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"support_bus_publish_latency_seconds",
			"Bus publish latency in seconds",
			[]string{"topic"},
			[]float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		),
		BusErrors: NewCounterVec(
			"support_bus_errors_total",
			"Failed bus publishes",
			[]string{"topic"},
		),

		HTTPRequests: NewCounterVec(
			"support_http_requests_total",
			"HTTP requests served",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"support_http_request_duration_seconds",
			"HTTP request duration in seconds",
			[]string{"method", "path"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		),
		HTTPRequestsInFlight: NewGauge(
			"support_http_requests_in_flight",
			"HTTP requests currently being served",
			nil,
		),

		Goroutines:  NewGauge("support_goroutines", "Number of goroutines", nil),
		MemoryBytes: NewGauge("support_memory_bytes", "Heap bytes allocated", nil),
		Uptime:      NewGauge("support_uptime_seconds", "Seconds since start", nil),

		TimeSeries: NewTimeSeries(history),
		redis:      storage,
		startTime:  time.Now(),
	}
}

// RecordSearch records one executed search.
func (m *Metrics) RecordSearch(latencyMs float64, total int) {
	m.SearchRequests.Inc()
	m.SearchLatency.Observe(latencyMs)
	m.SearchResults.Observe(float64(total))
	m.TimeSeries.SearchRate.Record(1)
	m.TimeSeries.SearchLatency.Record(latencyMs)
}

// RecordContext records one built context.
func (m *Metrics) RecordContext(latencyMs float64, sourcesByType map[string]int, totalRelevance float64) {
	m.ContextBuilds.Inc()
	m.ContextLatency.Observe(latencyMs)
	m.ContextRelevance.Observe(totalRelevance)

	count := 0
	for typ, n := range sourcesByType {
		m.ContextSources.WithLabels(typ).Add(int64(n))
		count += n
	}
	if count == 0 {
		m.EmptyContexts.Inc()
	}
	m.TimeSeries.ContextRate.Record(1)
	m.TimeSeries.ContextSources.Record(float64(count))
}

// RecordCorpusReload records a finished corpus import.
func (m *Metrics) RecordCorpusReload(articles, faqs, documents int) {
	m.CorpusReloads.Inc()
	m.CorpusItems.WithLabels("articles").Set(float64(articles))
	m.CorpusItems.WithLabels("faqs").Set(float64(faqs))
	m.CorpusItems.WithLabels("documents").Set(float64(documents))
}

// RecordCacheHit records a search cache hit.
func (m *Metrics) RecordCacheHit(cache string) {
	m.CacheHits.WithLabels(cache).Inc()
}

// RecordCacheMiss records a search cache miss.
func (m *Metrics) RecordCacheMiss(cache string) {
	m.CacheMisses.WithLabels(cache).Inc()
}

// RecordBusPublish records one publish outcome.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()
	m.BusEventLatency.WithLabels(topic).Observe(latency.Seconds())
	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(method, path string, status int, duration time.Duration) {
	path = normalizePath(path)
	m.HTTPRequests.WithLabels(method, path, statusLabel(status)).Inc()
	m.HTTPDuration.WithLabels(method, path).Observe(duration.Seconds())
}

// IsRedisPersisted reports whether history is stored in Redis.
func (m *Metrics) IsRedisPersisted() bool {
	return m.redis != nil
}

// Close waits for pending history saves and closes Redis.
func (m *Metrics) Close() error {
	m.TimeSeries.Wait()
	if m.redis != nil {
		return m.redis.Close()
	}
	return nil
}
