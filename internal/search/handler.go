package search

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/ricesearch/support-context/internal/pkg/errors"
	"github.com/ricesearch/support-context/internal/pkg/security"
)

// Handler provides HTTP handlers for search operations.
type Handler struct {
	svc *Service
}

// NewHandler creates a new search handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleSearch handles POST /v1/search. Backend failures still answer 200
// with an empty result set.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apperrors.WriteJSON(w, http.StatusMethodNotAllowed, apperrors.ErrorResponse{
			Error: "method not allowed",
			Code:  apperrors.CodeInvalidRequest,
		})
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.ValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := security.ValidateQuery("query", req.Query); err != nil {
		apperrors.WriteError(w, apperrors.ValidationError(err.Error()))
		return
	}
	req.Query = security.SanitizeQuery(req.Query)
	switch req.Options.SortBy {
	case "", SortRelevance, SortConfidence, SortPopularity, SortDate:
	default:
		apperrors.WriteError(w, apperrors.ValidationError("unknown sort_by: "+string(req.Options.SortBy)))
		return
	}

	writeJSON(w, http.StatusOK, h.svc.Search(r.Context(), req))
}

// HandleInvalidate handles POST /v1/search/cache/invalidate.
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.InvalidateCache(r.Context()); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
