package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/staybook/internal/domain"
	"github.com/yourorg/staybook/internal/service"
)

// DeleteHandler handles cascading soft-delete requests
type DeleteHandler struct {
	deletionService *service.DeletionService
	logger          *slog.Logger
}

// NewDeleteHandler creates a new delete handler
func NewDeleteHandler(deletionService *service.DeletionService, logger *slog.Logger) *DeleteHandler {
	return &DeleteHandler{
		deletionService: deletionService,
		logger:          logger,
	}
}

type deleteRequest struct {
	Reason string `json:"reason"`
}

type deleteResponse struct {
	Root    entityRefPayload       `json:"root"`
	Deleted map[domain.EntityType]int `json:"deleted"`
	Total   int                    `json:"total"`
}

type entityRefPayload struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ServeHTTP handles DELETE /api/entities/{type}/{id} requests
func (h *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entityType := r.PathValue("type")
	entityID := r.PathValue("id")
	if entityType == "" || entityID == "" {
		http.Error(w, "entity type and id required", http.StatusBadRequest)
		return
	}

	var req deleteRequest
	if r.Body != nil {
		// An empty or absent body is fine; reason defaults below.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "api request"
	}

	root := domain.EntityRef{Type: domain.EntityType(entityType), ID: entityID}
	h.logger.Debug("cascade delete request",
		slog.String("entity_type", entityType),
		slog.String("entity_id", entityID),
	)

	report, err := h.deletionService.SoftDelete(r.Context(), root, req.Reason)
	if err != nil {
		var vErr *domain.ValidationError
		switch {
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, "entity not found", http.StatusNotFound)
		case errors.As(err, &vErr):
			if vErr.Field == "bookings" {
				http.Error(w, vErr.Error(), http.StatusConflict)
				return
			}
			http.Error(w, vErr.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("cascade delete failed",
				slog.String("entity_type", entityType),
				slog.String("entity_id", entityID),
				slog.String("error", err.Error()),
			)
			http.Error(w, "failed to delete entity", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(deleteResponse{
		Root:    entityRefPayload{Type: string(report.Root.Type), ID: report.Root.ID},
		Deleted: report.Counts,
		Total:   report.Total(),
	})
}
