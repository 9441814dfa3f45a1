package domain

import (
	"context"
	"time"
)

// User represents a platform account
type User struct {
	ID        string // UUID
	Email     string // Unique email address
	Username  string
	FirstName string
	LastName  string
	Phone     string
	About     string // Free-text profile blurb

	IsDeleted bool
	DeletedAt *time.Time

	// IsDepersonalized is the terminal privacy marker. Once set, the
	// personal fields above are permanently cleared and AnonymizedToken
	// stands in for the identity everywhere else in the graph.
	IsDepersonalized bool
	AnonymizedToken  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRepository defines read access for users outside of cascades
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
