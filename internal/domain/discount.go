package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountStatus is the lifecycle state of a discount. Transitions are
// strictly temporal: scheduled -> active -> expired. Cancelled is the
// manual terminal state and is reachable from scheduled or active only.
type DiscountStatus string

const (
	DiscountScheduled DiscountStatus = "scheduled"
	DiscountActive    DiscountStatus = "active"
	DiscountExpired   DiscountStatus = "expired"
	DiscountCancelled DiscountStatus = "cancelled"
)

// DiscountValueType says how Value is applied against the base price.
type DiscountValueType string

const (
	ValuePercentage DiscountValueType = "percentage"
	ValueFixed      DiscountValueType = "fixed" // amount in the property's currency
)

// DiscountScope is the viewer set a discount applies to.
type DiscountScope string

const (
	ScopeAllUsers DiscountScope = "all"
	ScopeUsers    DiscountScope = "users"
)

// Discount is a time-boxed price reduction attached to a property.
type Discount struct {
	ID         string // UUID
	PropertyID string
	Name       string

	Status    DiscountStatus
	ValueType DiscountValueType
	Value     decimal.Decimal
	Scope     DiscountScope
	// UserIDs holds the eligible viewers when Scope is ScopeUsers.
	UserIDs []string

	StartsAt time.Time
	EndsAt   time.Time

	CreatedBy      string
	CreatedByToken string

	// IsDeleted tracks cascade deletion independently of Status, so a
	// deleted property's expired discounts never need an illegal
	// status transition.
	IsDeleted bool
	DeletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppliesTo reports whether the discount's scope covers the viewer.
// An empty viewerID means an anonymous or all-users context.
func (d *Discount) AppliesTo(viewerID string) bool {
	if d.Scope == ScopeAllUsers {
		return true
	}
	if viewerID == "" {
		return false
	}
	for _, id := range d.UserIDs {
		if id == viewerID {
			return true
		}
	}
	return false
}

// DiscountRepository is the scheduler's and resolver's view of the
// discount table.
type DiscountRepository interface {
	// ListActionable returns all discounts still subject to temporal
	// transitions, i.e. in the scheduled or active state.
	ListActionable(ctx context.Context) ([]*Discount, error)

	// UpdateStatus transitions a discount from one state to another.
	// The write is conditional on the current state so that concurrent
	// writers can never move a discount backwards; a lost race returns
	// ErrNotFound.
	UpdateStatus(ctx context.Context, id string, from, to DiscountStatus, at time.Time) error

	// ListActiveForProperty returns the active discounts attached to a
	// live property.
	ListActiveForProperty(ctx context.Context, propertyID string) ([]*Discount, error)
}
