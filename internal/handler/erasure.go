package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/staybook/internal/domain"
	"github.com/yourorg/staybook/internal/service"
)

// ErasureHandler handles user depersonalization requests
type ErasureHandler struct {
	privacyService *service.PrivacyService
	logger         *slog.Logger
}

// NewErasureHandler creates a new erasure handler
func NewErasureHandler(privacyService *service.PrivacyService, logger *slog.Logger) *ErasureHandler {
	return &ErasureHandler{
		privacyService: privacyService,
		logger:         logger,
	}
}

type erasureRequest struct {
	Reason string `json:"reason"`
}

// ServeHTTP handles POST /api/users/{id}/erase requests
func (h *ErasureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.PathValue("id")
	if userID == "" {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}

	var req erasureRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "erasure request"
	}

	h.logger.Debug("erasure request", slog.String("user_id", userID))

	if err := h.privacyService.Depersonalize(r.Context(), userID, req.Reason); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		h.logger.Error("erasure failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "failed to erase user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
