package domain

import (
	"context"
	"time"
)

// Store opens transactions over the entity graph. Both cascade engines
// run their whole traversal inside one transaction so that no partial
// state is ever observable; the function's error aborts and rolls back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional surface the engines mutate through. The
// deletion engine uses the CascadeTx subset, the depersonalization
// engine uses PrivacyTx; the split keeps each engine honest about what
// it may touch.
type Tx interface {
	CascadeTx
	PrivacyTx
}

// CascadeTx is the generic graph walk surface.
type CascadeTx interface {
	// Get loads the cascade view of one record. Missing rows return
	// ErrNotFound.
	Get(ctx context.Context, ref EntityRef) (*EntityRecord, error)

	// Children lists records under parent along one declared relation.
	Children(ctx context.Context, parent EntityRef, relation string, child EntityType) ([]*EntityRecord, error)

	// MarkDeleted sets is_deleted and the deletion timestamp on a live
	// row. Marking an already-deleted row is a no-op.
	MarkDeleted(ctx context.Context, ref EntityRef, at time.Time) error

	// CountActiveBookings counts upcoming stays anywhere under root.
	// A positive count blocks the cascade.
	CountActiveBookings(ctx context.Context, root EntityRef, now time.Time) (int, error)
}

// PrivacyTx is the depersonalization surface: the user row itself plus
// every table that references a user identity.
type PrivacyTx interface {
	GetUser(ctx context.Context, id string) (*User, error)
	SaveUser(ctx context.Context, u *User) error

	// IndividualProfileOf returns the user's individual landlord
	// profile, or ErrNotFound when the user has none (or only a
	// company profile, which is not personal data).
	IndividualProfileOf(ctx context.Context, userID string) (*LandlordProfile, error)
	SaveProfile(ctx context.Context, p *LandlordProfile) error

	// RewriteEmployeeUser replaces the user reference on employment
	// rows with the opaque token, returning the number of rows touched.
	RewriteEmployeeUser(ctx context.Context, userID, token string, at time.Time) (int64, error)

	// RewriteDependentAuthor replaces review/dependent authorship.
	RewriteDependentAuthor(ctx context.Context, userID, token string, at time.Time) (int64, error)

	// TokenizeDiscountCreator replaces the creator reference on the
	// user's discounts and cancels any still scheduled or active.
	TokenizeDiscountCreator(ctx context.Context, userID, token string, at time.Time) (int64, error)
}
