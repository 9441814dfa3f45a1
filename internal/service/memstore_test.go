package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourorg/staybook/internal/domain"
)

// memStore is an in-memory domain.Store with snapshot semantics: InTx
// runs against a deep copy and commits it only when the function
// succeeds, so rollback behavior can be asserted directly.
type memStore struct {
	users      map[string]*domain.User
	profiles   map[string]*domain.LandlordProfile
	employees  map[string]*domain.Employee
	properties map[string]*domain.Property
	discounts  map[string]*domain.Discount
	dependents map[string]*domain.Dependent
	bookings   []*domain.Booking

	// failMarkAfter injects a store fault on the Nth MarkDeleted call
	// (0 = never fail).
	failMarkAfter int
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[string]*domain.User{},
		profiles:   map[string]*domain.LandlordProfile{},
		employees:  map[string]*domain.Employee{},
		properties: map[string]*domain.Property{},
		discounts:  map[string]*domain.Discount{},
		dependents: map[string]*domain.Dependent{},
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx := &memTx{store: s.clone(), failMarkAfter: s.failMarkAfter}
	if err := fn(tx); err != nil {
		return err
	}
	// Commit: adopt the copy's state.
	snapshot := tx.store
	s.users = snapshot.users
	s.profiles = snapshot.profiles
	s.employees = snapshot.employees
	s.properties = snapshot.properties
	s.discounts = snapshot.discounts
	s.dependents = snapshot.dependents
	s.bookings = snapshot.bookings
	return nil
}

func (s *memStore) clone() *memStore {
	out := newMemStore()
	for k, v := range s.users {
		u := *v
		out.users[k] = &u
	}
	for k, v := range s.profiles {
		p := *v
		out.profiles[k] = &p
	}
	for k, v := range s.employees {
		e := *v
		out.employees[k] = &e
	}
	for k, v := range s.properties {
		p := *v
		out.properties[k] = &p
	}
	for k, v := range s.discounts {
		d := *v
		out.discounts[k] = &d
	}
	for k, v := range s.dependents {
		d := *v
		out.dependents[k] = &d
	}
	out.bookings = append([]*domain.Booking(nil), s.bookings...)
	return out
}

type memTx struct {
	store         *memStore
	markCalls     int
	failMarkAfter int
}

var errInjected = errors.New("injected store fault")

func (t *memTx) Get(ctx context.Context, ref domain.EntityRef) (*domain.EntityRecord, error) {
	switch ref.Type {
	case domain.EntityUser:
		if u, ok := t.store.users[ref.ID]; ok {
			return &domain.EntityRecord{Ref: ref, IsDeleted: u.IsDeleted}, nil
		}
	case domain.EntityLandlordProfile:
		if p, ok := t.store.profiles[ref.ID]; ok {
			return &domain.EntityRecord{Ref: ref, IsDeleted: p.IsDeleted, ProfileKind: p.Kind}, nil
		}
	case domain.EntityEmployee:
		if e, ok := t.store.employees[ref.ID]; ok {
			return &domain.EntityRecord{Ref: ref, IsDeleted: e.IsDeleted, UserRefID: e.UserID}, nil
		}
	case domain.EntityProperty:
		if p, ok := t.store.properties[ref.ID]; ok {
			return &domain.EntityRecord{Ref: ref, IsDeleted: p.IsDeleted}, nil
		}
	case domain.EntityDiscount:
		if d, ok := t.store.discounts[ref.ID]; ok {
			return &domain.EntityRecord{Ref: ref, IsDeleted: d.IsDeleted}, nil
		}
	case domain.EntityDependent:
		if d, ok := t.store.dependents[ref.ID]; ok {
			return &domain.EntityRecord{Ref: ref, IsDeleted: d.IsDeleted}, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (t *memTx) Children(ctx context.Context, parent domain.EntityRef, relation string, child domain.EntityType) ([]*domain.EntityRecord, error) {
	var out []*domain.EntityRecord
	switch {
	case parent.Type == domain.EntityUser && relation == "profile":
		for _, p := range t.store.profiles {
			if p.UserID == parent.ID {
				out = append(out, &domain.EntityRecord{
					Ref:         domain.EntityRef{Type: child, ID: p.ID},
					IsDeleted:   p.IsDeleted,
					ProfileKind: p.Kind,
				})
			}
		}
	case parent.Type == domain.EntityLandlordProfile && relation == "properties":
		for _, p := range t.store.properties {
			if p.ProfileID == parent.ID {
				out = append(out, &domain.EntityRecord{
					Ref:       domain.EntityRef{Type: child, ID: p.ID},
					IsDeleted: p.IsDeleted,
				})
			}
		}
	case parent.Type == domain.EntityLandlordProfile && relation == "employees":
		for _, e := range t.store.employees {
			if e.ProfileID == parent.ID {
				out = append(out, &domain.EntityRecord{
					Ref:       domain.EntityRef{Type: child, ID: e.ID},
					IsDeleted: e.IsDeleted,
					UserRefID: e.UserID,
				})
			}
		}
	case parent.Type == domain.EntityProperty && relation == "discounts":
		for _, d := range t.store.discounts {
			if d.PropertyID == parent.ID {
				out = append(out, &domain.EntityRecord{
					Ref:       domain.EntityRef{Type: child, ID: d.ID},
					IsDeleted: d.IsDeleted,
				})
			}
		}
	case parent.Type == domain.EntityProperty && relation == "dependents":
		for _, d := range t.store.dependents {
			if d.PropertyID == parent.ID {
				out = append(out, &domain.EntityRecord{
					Ref:       domain.EntityRef{Type: child, ID: d.ID},
					IsDeleted: d.IsDeleted,
				})
			}
		}
	default:
		return nil, fmt.Errorf("unknown relation %s.%s", parent.Type, relation)
	}
	return out, nil
}

func (t *memTx) MarkDeleted(ctx context.Context, ref domain.EntityRef, at time.Time) error {
	t.markCalls++
	if t.failMarkAfter > 0 && t.markCalls >= t.failMarkAfter {
		return errInjected
	}
	switch ref.Type {
	case domain.EntityUser:
		if u, ok := t.store.users[ref.ID]; ok {
			u.IsDeleted = true
			u.DeletedAt = &at
			return nil
		}
	case domain.EntityLandlordProfile:
		if p, ok := t.store.profiles[ref.ID]; ok {
			p.IsDeleted = true
			p.DeletedAt = &at
			return nil
		}
	case domain.EntityEmployee:
		if e, ok := t.store.employees[ref.ID]; ok {
			e.IsDeleted = true
			e.DeletedAt = &at
			return nil
		}
	case domain.EntityProperty:
		if p, ok := t.store.properties[ref.ID]; ok {
			p.IsDeleted = true
			p.DeletedAt = &at
			return nil
		}
	case domain.EntityDiscount:
		if d, ok := t.store.discounts[ref.ID]; ok {
			d.IsDeleted = true
			d.DeletedAt = &at
			return nil
		}
	case domain.EntityDependent:
		if d, ok := t.store.dependents[ref.ID]; ok {
			d.IsDeleted = true
			d.DeletedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

func (t *memTx) CountActiveBookings(ctx context.Context, root domain.EntityRef, now time.Time) (int, error) {
	isActive := func(b *domain.Booking) bool {
		return (b.Status == "pending" || b.Status == "confirmed") && b.CheckOut.After(now)
	}
	propertyUnder := func(propertyID string) bool {
		p, ok := t.store.properties[propertyID]
		if !ok {
			return false
		}
		switch root.Type {
		case domain.EntityProperty:
			return p.ID == root.ID
		case domain.EntityLandlordProfile:
			return p.ProfileID == root.ID
		case domain.EntityUser:
			profile, ok := t.store.profiles[p.ProfileID]
			return ok && profile.UserID == root.ID
		}
		return false
	}

	n := 0
	for _, b := range t.store.bookings {
		if !isActive(b) {
			continue
		}
		if root.Type == domain.EntityUser && b.GuestID == root.ID {
			n++
			continue
		}
		if propertyUnder(b.PropertyID) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := t.store.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (t *memTx) SaveUser(ctx context.Context, u *domain.User) error {
	t.store.users[u.ID] = u
	return nil
}

func (t *memTx) IndividualProfileOf(ctx context.Context, userID string) (*domain.LandlordProfile, error) {
	for _, p := range t.store.profiles {
		if p.UserID == userID && p.Kind == domain.ProfileIndividual {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (t *memTx) SaveProfile(ctx context.Context, p *domain.LandlordProfile) error {
	t.store.profiles[p.ID] = p
	return nil
}

func (t *memTx) RewriteEmployeeUser(ctx context.Context, userID, token string, at time.Time) (int64, error) {
	var n int64
	for _, e := range t.store.employees {
		if e.UserID == userID {
			e.UserID = ""
			e.UserToken = token
			e.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (t *memTx) RewriteDependentAuthor(ctx context.Context, userID, token string, at time.Time) (int64, error) {
	var n int64
	for _, d := range t.store.dependents {
		if d.AuthorID == userID {
			d.AuthorID = ""
			d.AuthorToken = token
			d.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (t *memTx) TokenizeDiscountCreator(ctx context.Context, userID, token string, at time.Time) (int64, error) {
	var n int64
	for _, d := range t.store.discounts {
		if d.CreatedBy == userID {
			d.CreatedBy = ""
			d.CreatedByToken = token
			if d.Status == domain.DiscountScheduled || d.Status == domain.DiscountActive {
				d.Status = domain.DiscountCancelled
			}
			d.UpdatedAt = at
			n++
		}
	}
	return n, nil
}
