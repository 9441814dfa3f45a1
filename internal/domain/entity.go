package domain

import "time"

// EntityType identifies a node type in the ownership graph.
type EntityType string

const (
	EntityUser            EntityType = "user"
	EntityLandlordProfile EntityType = "landlord_profile"
	EntityEmployee        EntityType = "employee"
	EntityProperty        EntityType = "property"
	EntityDiscount        EntityType = "discount"
	EntityDependent       EntityType = "dependent"
)

// EntityRef points at a single record of a declared entity type.
type EntityRef struct {
	Type EntityType
	ID   string
}

// EntityRecord is the cascade engine's view of a row: enough state to
// decide whether to visit it and how to expand it, nothing more.
type EntityRecord struct {
	Ref       EntityRef
	IsDeleted bool
	// ProfileKind is set for landlord_profile records (individual or company).
	ProfileKind ProfileKind
	// UserRefID is set for employee records and names the user the
	// employment row belongs to.
	UserRefID string
}

// DeletionReport lists every entity type and count affected by one
// cascade, for the audit trail.
type DeletionReport struct {
	Root        EntityRef
	Counts      map[EntityType]int
	CompletedAt time.Time
}

// NewDeletionReport returns an empty report rooted at ref.
func NewDeletionReport(ref EntityRef) *DeletionReport {
	return &DeletionReport{Root: ref, Counts: map[EntityType]int{}}
}

// Add records one deleted entity of the given type.
func (r *DeletionReport) Add(t EntityType) {
	r.Counts[t]++
}

// Total returns the number of entities marked deleted by the cascade.
func (r *DeletionReport) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Empty reports whether the cascade touched nothing (idempotent re-run).
func (r *DeletionReport) Empty() bool {
	return len(r.Counts) == 0
}
