package assistant

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/ricesearch/support-context/internal/pkg/errors"
	"github.com/ricesearch/support-context/internal/pkg/middleware"
	"github.com/ricesearch/support-context/internal/pkg/security"
)

// Handler serves answers over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates an answer handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type answerRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// HandleAnswer handles POST /v1/answer.
func (h *Handler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apperrors.WriteJSON(w, http.StatusMethodNotAllowed, apperrors.ErrorResponse{
			Error: "method not allowed",
			Code:  apperrors.CodeInvalidRequest,
		})
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.ValidationError("invalid request body: "+err.Error()))
		return
	}
	if req.SessionID == "" {
		req.SessionID = r.Header.Get(middleware.SessionHeader)
	}
	if err := security.ValidateQuery("question", req.Question); err != nil {
		apperrors.WriteError(w, apperrors.ValidationError(err.Error()))
		return
	}
	if err := security.ValidateSessionID(req.SessionID); err != nil {
		apperrors.WriteError(w, apperrors.ValidationError(err.Error()))
		return
	}
	req.Question = security.SanitizeQuery(req.Question)

	answer, err := h.svc.Answer(r.Context(), req.SessionID, req.Question)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(answer)
}
