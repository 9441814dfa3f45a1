package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/staybook/internal/domain"
	"github.com/yourorg/staybook/internal/pricing"
)

// PriceHandler serves effective prices. Reads hit the cache written by
// the scheduler; on a miss the price is resolved on the spot and cached.
type PriceHandler struct {
	properties domain.PropertyRepository
	discounts  domain.DiscountRepository
	cache      domain.PriceCache
	resolver   *pricing.Resolver
	clock      domain.Clock
	logger     *slog.Logger
}

// NewPriceHandler creates a new price handler
func NewPriceHandler(
	properties domain.PropertyRepository,
	discounts domain.DiscountRepository,
	cache domain.PriceCache,
	resolver *pricing.Resolver,
	clock domain.Clock,
	logger *slog.Logger,
) *PriceHandler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &PriceHandler{
		properties: properties,
		discounts:  discounts,
		cache:      cache,
		resolver:   resolver,
		clock:      clock,
		logger:     logger,
	}
}

// ServeHTTP handles GET /api/properties/{id}/price requests. The
// optional viewer query parameter selects the user-specific context.
func (h *PriceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	propertyID := r.PathValue("id")
	if propertyID == "" {
		http.Error(w, "property id required", http.StatusBadRequest)
		return
	}
	viewerID := r.URL.Query().Get("viewer")

	price, err := h.cache.Get(r.Context(), propertyID, viewerID)
	if err == nil {
		writeJSON(w, price)
		return
	}
	if !errors.Is(err, domain.ErrNotFound) {
		h.logger.Warn("price cache read failed, resolving directly",
			slog.String("property_id", propertyID),
			slog.String("error", err.Error()),
		)
	}

	// Cache miss: resolve against the live discount set.
	prop, err := h.properties.GetByID(r.Context(), propertyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "property not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load property",
			slog.String("property_id", propertyID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "failed to resolve price", http.StatusInternalServerError)
		return
	}

	actives, err := h.discounts.ListActiveForProperty(r.Context(), propertyID)
	if err != nil {
		h.logger.Error("failed to list active discounts",
			slog.String("property_id", propertyID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "failed to resolve price", http.StatusInternalServerError)
		return
	}

	now := h.clock.Now()
	q := h.resolver.ResolvePrice(prop, viewerID, actives, now)
	resolved := &domain.EffectivePrice{
		PropertyID: q.PropertyID,
		ViewerID:   q.ViewerID,
		Currency:   q.Currency,
		BasePrice:  q.BasePrice,
		FinalPrice: q.FinalPrice,
		DiscountID: q.DiscountID,
		ComputedAt: now,
	}

	if err := h.cache.Set(r.Context(), resolved); err != nil {
		h.logger.Warn("failed to cache resolved price",
			slog.String("property_id", propertyID),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, resolved)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
