package search

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_HandleSearch(t *testing.T) {
	st := seedCorpus(t)
	h := NewHandler(newTestService(st, NewMemoryCache(time.Minute), nil))

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
		wantTotal  int
	}{
		{"ok", http.MethodPost, `{"query":"reset password"}`, http.StatusOK, 2},
		{"paged", http.MethodPost, `{"query":"settings","options":{"limit":1}}`, http.StatusOK, 2},
		{"missing query", http.MethodPost, `{"query":"  "}`, http.StatusBadRequest, 0},
		{"bad json", http.MethodPost, `{`, http.StatusBadRequest, 0},
		{"bad sort", http.MethodPost, `{"query":"x","options":{"sort_by":"alpha"}}`, http.StatusBadRequest, 0},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/search", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.HandleSearch(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", resp.Total, tt.wantTotal)
			}
		})
	}
	h.svc.Wait()
}

func TestHandler_DegradesOnBackendError(t *testing.T) {
	st := seedCorpus(t)
	st.faqErr = errors.New("db down")
	h := NewHandler(newTestService(st, nil, nil))

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"reset"}`))
	rec := httptest.NewRecorder()
	h.HandleSearch(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandler_HandleInvalidate(t *testing.T) {
	h := NewHandler(newTestService(seedCorpus(t), NewMemoryCache(time.Minute), nil))

	rec := httptest.NewRecorder()
	h.HandleInvalidate(rec, httptest.NewRequest(http.MethodPost, "/v1/search/cache/invalidate", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}
