package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EffectivePrice is the cached outcome of price resolution for one
// property and viewer context, written by the scheduler after every
// cycle that touched the property's discount set.
type EffectivePrice struct {
	PropertyID string `json:"property_id"`
	// ViewerID is empty for the all-users context and set for rows
	// resolved against a user-scoped discount.
	ViewerID   string          `json:"viewer_id,omitempty"`
	Currency   string          `json:"currency"`
	BasePrice  decimal.Decimal `json:"base_price"`
	FinalPrice decimal.Decimal `json:"final_price"`
	DiscountID string          `json:"discount_id,omitempty"`
	ComputedAt time.Time       `json:"computed_at"`
}

// PriceCache stores effective prices keyed by (property, viewer).
// Reads tolerate staleness up to the scheduler's last completed cycle.
type PriceCache interface {
	Set(ctx context.Context, price *EffectivePrice) error
	// Get returns ErrNotFound when no row is cached for the pair.
	Get(ctx context.Context, propertyID, viewerID string) (*EffectivePrice, error)
}
