package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Property is a bookable listing owned by a landlord profile.
type Property struct {
	ID        string // UUID
	ProfileID string // Owning landlord profile

	Title    string
	City     string
	Country  string
	Address  string
	Currency string // ISO 4217 code

	BasePrice decimal.Decimal // Nightly price before discounts

	IsDeleted bool
	DeletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DependentKind tags the generic dependent rows hanging off a property.
type DependentKind string

const (
	DependentPhoto   DependentKind = "photo"
	DependentAmenity DependentKind = "amenity"
	DependentReview  DependentKind = "review"
)

// Dependent is a generic property-owned record (photo, amenity link,
// review). Reviews carry authorship: AuthorID while the author is a
// live identity, AuthorToken once that user has been depersonalized.
type Dependent struct {
	ID         string // UUID
	PropertyID string
	Kind       DependentKind

	AuthorID    string
	AuthorToken string
	Body        string

	IsDeleted bool
	DeletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Booking is a stay reservation. The engine only reads bookings to
// refuse cascades over subtrees with upcoming stays; it never mutates
// them directly.
type Booking struct {
	ID         string
	PropertyID string
	GuestID    string
	Status     string // pending, confirmed, completed, cancelled
	CheckIn    time.Time
	CheckOut   time.Time
}

// PropertyRepository defines read access for properties outside of cascades
type PropertyRepository interface {
	GetByID(ctx context.Context, id string) (*Property, error)
}
