package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPMiddleware(t *testing.T) {
	m := New()

	handler := HTTPMiddleware(m, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.HTTPRequestsInFlight.Value() != 1 {
			t.Errorf("in-flight during request = %v, want 1", m.HTTPRequestsInFlight.Value())
		}
		w.WriteHeader(http.StatusBadRequest)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/search", nil))

	if got := m.HTTPRequests.WithLabels(http.MethodPost, "/v1/search", "400").Value(); got != 1 {
		t.Errorf("request count = %d, want 1", got)
	}
	if m.HTTPRequestsInFlight.Value() != 0 {
		t.Errorf("in-flight after request = %v, want 0", m.HTTPRequestsInFlight.Value())
	}
	if got := m.HTTPDuration.WithLabels(http.MethodPost, "/v1/search").Count(); got != 1 {
		t.Errorf("duration observations = %d, want 1", got)
	}
}

func TestHTTPMiddleware_DefaultStatus(t *testing.T) {
	m := New()

	handler := HTTPMiddleware(m, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := m.HTTPRequests.WithLabels(http.MethodGet, "/healthz", "200").Value(); got != 1 {
		t.Errorf("request count = %d, want 1", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/", "/"},
		{"", "/"},
		{"/healthz", "/healthz"},
		{"/v1/search/", "/v1/search"},
		{"/v1/search/cache/invalidate", "/v1/search/cache/invalidate"},
		{"/v1/context", "/v1/context"},
		{"/wp-admin/login.php", "other"},
		{"/v1/search/../../etc/passwd", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizePath(tt.input); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "200"},
		{201, "2xx"},
		{302, "3xx"},
		{429, "429"},
		{418, "4xx"},
		{503, "503"},
		{599, "5xx"},
		{999, "999"},
	}

	for _, tt := range tests {
		if got := statusLabel(tt.code); got != tt.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordSearch(5, 1)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "support_search_requests_total 1") {
		t.Error("body missing search counter")
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	New().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHistoryHandler(t *testing.T) {
	m := New()
	m.RecordSearch(8, 2)

	rec := httptest.NewRecorder()
	m.HistoryHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/history", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body historyResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Persisted {
		t.Error("Persisted = true, want false")
	}
	if pts := body.Series["search_latency_ms"]; len(pts) != 1 || pts[0].Value != 8 {
		t.Errorf("search_latency_ms = %v, want one point of 8", pts)
	}
}
