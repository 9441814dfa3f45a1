package domain

import "time"

// ProfileKind distinguishes individual landlords from companies
type ProfileKind string

const (
	ProfileIndividual ProfileKind = "individual"
	ProfileCompany    ProfileKind = "company"
)

// LandlordProfile is the hosting identity a user operates under. An
// individual profile carries the landlord's own contact data; a company
// profile owns a set of Employee records on top of its properties.
type LandlordProfile struct {
	ID     string // UUID
	UserID string // Owning user account
	Kind   ProfileKind

	Name        string
	Email       string
	Phone       string
	Address     string
	Description string

	// CreatedByToken replaces UserID's identity after the owning user
	// has been depersonalized.
	CreatedByToken string

	IsDeleted bool
	DeletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Employee links a user to a company profile. The row survives
// depersonalization of the user: UserID is cleared, UserToken takes its
// place and FullName keeps the display snapshot.
type Employee struct {
	ID        string // UUID
	ProfileID string // Company profile
	UserID    string
	UserToken string
	FullName  string
	Role      string

	IsDeleted bool
	DeletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
