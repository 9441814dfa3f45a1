// Package pricing computes displayed prices. Everything here is pure:
// the resolver reads its inputs, applies the best eligible discount and
// returns a quote, with no side effects and no synchronization needs.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourorg/staybook/internal/domain"
)

// DefaultMinorUnits is the rounding precision for currencies missing
// from the configured table.
const DefaultMinorUnits = 2

// Quote is a resolved price for one property and viewer context.
type Quote struct {
	PropertyID string          `json:"property_id"`
	ViewerID   string          `json:"viewer_id,omitempty"`
	Currency   string          `json:"currency"`
	BasePrice  decimal.Decimal `json:"base_price"`
	FinalPrice decimal.Decimal `json:"final_price"`
	DiscountID string          `json:"discount_id,omitempty"`
}

// Resolver applies discounts against base prices under a currency
// precision table and a minimum-price floor.
type Resolver struct {
	minorUnits map[string]int32
	minPct     decimal.Decimal
}

// NewResolver builds a resolver. minorUnits maps currency codes to
// their minor-unit precision (2 for USD, 0 for JPY); minPricePercent
// is the floor below which no discount may push the final price,
// expressed as a percentage of the base price.
func NewResolver(minorUnits map[string]int32, minPricePercent int) *Resolver {
	table := make(map[string]int32, len(minorUnits))
	for code, places := range minorUnits {
		table[code] = places
	}
	return &Resolver{
		minorUnits: table,
		minPct:     decimal.NewFromInt(int64(minPricePercent)),
	}
}

// ResolvePrice computes the displayed price for a property given the
// candidate discounts and the viewer's eligibility.
func (r *Resolver) ResolvePrice(p *domain.Property, viewerID string, candidates []*domain.Discount, now time.Time) Quote {
	base := r.Round(p.BasePrice, p.Currency)
	q := Quote{
		PropertyID: p.ID,
		ViewerID:   viewerID,
		Currency:   p.Currency,
		BasePrice:  base,
		FinalPrice: base,
	}

	best := r.BestDiscount(base, p.Currency, viewerID, candidates, now)
	if best != nil {
		q.FinalPrice = r.FinalPrice(base, best, p.Currency)
		q.DiscountID = best.ID
	}
	return q
}

// BestDiscount selects the winning discount among the candidates, or
// nil when none is eligible. Selection: lowest final price, then the
// more specific scope (user-specific beats all-users), then the
// earliest start.
func (r *Resolver) BestDiscount(base decimal.Decimal, currency, viewerID string, candidates []*domain.Discount, now time.Time) *domain.Discount {
	floor := r.Round(base.Mul(r.minPct).Div(decimal.NewFromInt(100)), currency)

	var best *domain.Discount
	var bestFinal decimal.Decimal

	for _, d := range candidates {
		if !eligible(d, viewerID, now) {
			continue
		}
		final := r.FinalPrice(base, d, currency)
		if final.LessThan(floor) {
			continue
		}
		if best == nil || final.LessThan(bestFinal) {
			best, bestFinal = d, final
			continue
		}
		if !final.Equal(bestFinal) {
			continue
		}
		if beatsOnTie(d, best) {
			best, bestFinal = d, final
		}
	}
	return best
}

// FinalPrice applies one discount against the base price, rounded to
// the currency's minor units. Negative results clamp to zero.
func (r *Resolver) FinalPrice(base decimal.Decimal, d *domain.Discount, currency string) decimal.Decimal {
	final := base.Sub(saving(base, d))
	if final.IsNegative() {
		final = decimal.Zero
	}
	return r.Round(final, currency)
}

// Round rounds an amount to the currency's minor-unit precision,
// half away from zero.
func (r *Resolver) Round(amount decimal.Decimal, currency string) decimal.Decimal {
	places, ok := r.minorUnits[currency]
	if !ok {
		places = DefaultMinorUnits
	}
	return amount.Round(places)
}

func eligible(d *domain.Discount, viewerID string, now time.Time) bool {
	if d.Status != domain.DiscountActive {
		return false
	}
	if now.Before(d.StartsAt) || !now.Before(d.EndsAt) {
		return false
	}
	return d.AppliesTo(viewerID)
}

func saving(base decimal.Decimal, d *domain.Discount) decimal.Decimal {
	if d.ValueType == domain.ValuePercentage {
		return base.Mul(d.Value).Div(decimal.NewFromInt(100))
	}
	return d.Value
}

// beatsOnTie resolves equal final prices: user-specific scope wins over
// all-users, then the earlier start.
func beatsOnTie(challenger, incumbent *domain.Discount) bool {
	cUser := challenger.Scope == domain.ScopeUsers
	iUser := incumbent.Scope == domain.ScopeUsers
	if cUser != iUser {
		return cUser
	}
	return challenger.StartsAt.Before(incumbent.StartsAt)
}
