package metrics

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// PrometheusFormat renders every metric in the Prometheus text exposition
// format. Labelled families with no children are omitted.
func (m *Metrics) PrometheusFormat() string {
	var sb strings.Builder

	writeCounter(&sb, m.SearchRequests)
	writeHistogram(&sb, m.SearchLatency)
	writeHistogram(&sb, m.SearchResults)

	writeCounter(&sb, m.ContextBuilds)
	writeHistogram(&sb, m.ContextLatency)
	writeCounterVec(&sb, m.ContextSources)
	writeHistogram(&sb, m.ContextRelevance)
	writeCounter(&sb, m.EmptyContexts)

	writeCounter(&sb, m.CorpusReloads)
	writeGaugeVec(&sb, m.CorpusItems)

	writeCounterVec(&sb, m.CacheHits)
	writeCounterVec(&sb, m.CacheMisses)

	writeCounterVec(&sb, m.BusEventsPublished)
	writeHistogramVec(&sb, m.BusEventLatency)
	writeCounterVec(&sb, m.BusErrors)

	writeCounterVec(&sb, m.HTTPRequests)
	writeHistogramVec(&sb, m.HTTPDuration)
	writeGauge(&sb, m.HTTPRequestsInFlight)

	m.Uptime.Set(time.Since(m.startTime).Seconds())
	writeGauge(&sb, m.Goroutines)
	writeGauge(&sb, m.MemoryBytes)
	writeGauge(&sb, m.Uptime)

	return sb.String()
}

func writeHeader(sb *strings.Builder, name, help, typ string) {
	sb.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	sb.WriteString("# TYPE " + name + " " + typ + "\n")
}

func writeSample(sb *strings.Builder, name string, labels map[string]string, value string) {
	sb.WriteString(name)
	writeLabels(sb, labels)
	sb.WriteString(" " + value + "\n")
}

func writeCounter(sb *strings.Builder, c *Counter) {
	writeHeader(sb, c.Name(), c.Help(), "counter")
	writeSample(sb, c.Name(), c.Labels(), strconv.FormatInt(c.Value(), 10))
}

func writeGauge(sb *strings.Builder, g *Gauge) {
	writeHeader(sb, g.Name(), g.Help(), "gauge")
	writeSample(sb, g.Name(), g.Labels(), formatFloat(g.Value()))
}

func writeHistogram(sb *strings.Builder, h *Histogram) {
	writeHeader(sb, h.Name(), h.Help(), "histogram")
	writeHistogramSamples(sb, h)
}

func writeHistogramSamples(sb *strings.Builder, h *Histogram) {
	snap := h.Snapshot()
	labels := h.Labels()

	for i, bound := range snap.Buckets {
		writeSample(sb, h.Name()+"_bucket", withLabel(labels, "le", formatFloat(bound)), strconv.FormatInt(snap.Cumulative[i], 10))
	}
	writeSample(sb, h.Name()+"_bucket", withLabel(labels, "le", "+Inf"), strconv.FormatInt(snap.Cumulative[len(snap.Cumulative)-1], 10))
	writeSample(sb, h.Name()+"_sum", labels, formatFloat(snap.Sum))
	writeSample(sb, h.Name()+"_count", labels, strconv.FormatInt(snap.Count, 10))
}

func writeCounterVec(sb *strings.Builder, cv *CounterVec) {
	counters := cv.GetAll()
	if len(counters) == 0 {
		return
	}
	writeHeader(sb, cv.Name(), cv.Help(), "counter")
	for _, c := range counters {
		writeSample(sb, c.Name(), c.Labels(), strconv.FormatInt(c.Value(), 10))
	}
}

func writeGaugeVec(sb *strings.Builder, gv *GaugeVec) {
	gauges := gv.GetAll()
	if len(gauges) == 0 {
		return
	}
	writeHeader(sb, gv.Name(), gv.Help(), "gauge")
	for _, g := range gauges {
		writeSample(sb, g.Name(), g.Labels(), formatFloat(g.Value()))
	}
}

func writeHistogramVec(sb *strings.Builder, hv *HistogramVec) {
	histograms := hv.GetAll()
	if len(histograms) == 0 {
		return
	}
	writeHeader(sb, hv.Name(), hv.Help(), "histogram")
	for _, h := range histograms {
		writeHistogramSamples(sb, h)
	}
}

// writeLabels writes {k="v",...} with keys sorted, "le" last.
func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		if k != "le" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := labels["le"]; ok {
		keys = append(keys, "le")
	}

	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k + `="` + escapeLabel(labels[k]) + `"`)
	}
	sb.WriteString("}")
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := copyLabels(labels)
	out[key] = value
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func escapeHelp(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "\n", `\n`)
}
