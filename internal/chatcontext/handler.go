package chatcontext

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/ricesearch/support-context/internal/pkg/errors"
	"github.com/ricesearch/support-context/internal/pkg/middleware"
	"github.com/ricesearch/support-context/internal/pkg/security"
)

// Handler serves context building over HTTP.
type Handler struct {
	engine *Engine
}

// NewHandler creates a context handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// HandleBuildContext handles POST /v1/context. The session falls back to the
// X-Session-ID header.
func (h *Handler) HandleBuildContext(w http.ResponseWriter, r *http.Request) {
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
	if req.SessionID == "" {
		req.SessionID = r.Header.Get(middleware.SessionHeader)
	}
	if err := validateRequest(req); err != nil {
		apperrors.WriteError(w, apperrors.ValidationError(err.Error()))
		return
	}
	req.Query = security.SanitizeQuery(req.Query)

	result, err := h.engine.BuildContext(r.Context(), req)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

func validateRequest(req Request) error {
	if err := security.ValidateQuery("query", req.Query); err != nil {
		return err
	}
	if err := security.ValidateSessionID(req.SessionID); err != nil {
		return err
	}
	if err := security.ValidateRange("max_sources", req.Options.MaxSources, 0, security.MaxSources); err != nil {
		return err
	}
	if m := req.Options.MinRelevanceScore; m != nil {
		return security.ValidateRange("min_relevance_score", *m, 0, 1)
	}
	return nil
}
