package metrics

import (
	"encoding/json"
	"net/http"
)

// Handler serves the Prometheus exposition on GET.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(m.PrometheusFormat()))
	})
}

// ServeHTTP implements http.Handler.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.Handler().ServeHTTP(w, r)
}

type historyResponse struct {
	Persisted bool                   `json:"persisted"`
	Series    map[string][]DataPoint `json:"series"`
}

// HistoryHandler serves the dashboard histories as JSON on GET.
func (m *Metrics) HistoryHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(historyResponse{
			Persisted: m.IsRedisPersisted(),
			Series:    m.TimeSeries.Snapshot(),
		})
	})
}
