// Package graph declares the static ownership topology the cascade
// engines traverse. Edges are written down explicitly rather than
// discovered by reflection so that cascade completeness is checkable at
// startup.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yourorg/staybook/internal/domain"
)

// Edge is one directed ownership relation: the parent type owns a
// collection of Child records reachable under Relation.
type Edge struct {
	Relation string
	Child    domain.EntityType
}

// Descriptor holds the declared entity types and their ordered
// dependent collections.
type Descriptor struct {
	edges map[domain.EntityType][]Edge
}

// ConfigurationError is fatal and detected at startup: a declared
// ownership cycle or an edge pointing at an undeclared type.
type ConfigurationError struct {
	Reason string
	Cycle  []domain.EntityType
}

func (e *ConfigurationError) Error() string {
	if len(e.Cycle) == 0 {
		return "graph configuration: " + e.Reason
	}
	parts := make([]string, len(e.Cycle))
	for i, t := range e.Cycle {
		parts[i] = string(t)
	}
	return fmt.Sprintf("graph configuration: %s (%s)", e.Reason, strings.Join(parts, " -> "))
}

// New builds a descriptor from an adjacency declaration and validates
// it. Every type appearing as an edge target must have its own entry
// (leaves declare an empty edge list).
func New(decl map[domain.EntityType][]Edge) (*Descriptor, error) {
	d := &Descriptor{edges: make(map[domain.EntityType][]Edge, len(decl))}
	for t, children := range decl {
		d.edges[t] = append([]Edge(nil), children...)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Default returns the production booking-graph topology.
func Default() (*Descriptor, error) {
	return New(map[domain.EntityType][]Edge{
		domain.EntityUser: {
			{Relation: "profile", Child: domain.EntityLandlordProfile},
		},
		domain.EntityLandlordProfile: {
			{Relation: "properties", Child: domain.EntityProperty},
			{Relation: "employees", Child: domain.EntityEmployee},
		},
		domain.EntityProperty: {
			{Relation: "discounts", Child: domain.EntityDiscount},
			{Relation: "dependents", Child: domain.EntityDependent},
		},
		domain.EntityEmployee:  {},
		domain.EntityDiscount:  {},
		domain.EntityDependent: {},
	})
}

// ChildrenOf returns the ordered dependent collections of a type. The
// slice is shared; callers must not mutate it.
func (d *Descriptor) ChildrenOf(t domain.EntityType) []Edge {
	return d.edges[t]
}

// Declared reports whether the type participates in the graph.
func (d *Descriptor) Declared(t domain.EntityType) bool {
	_, ok := d.edges[t]
	return ok
}

func (d *Descriptor) validate() error {
	// Dangling edges first: every child must be a declared type.
	for t, children := range d.edges {
		for _, e := range children {
			if _, ok := d.edges[e.Child]; !ok {
				return &ConfigurationError{
					Reason: fmt.Sprintf("relation %q of %s targets undeclared type %q", e.Relation, t, e.Child),
				}
			}
		}
	}

	// Cycle check via DFS with colors. Iterate in sorted order so the
	// reported cycle is deterministic.
	types := make([]domain.EntityType, 0, len(d.edges))
	for t := range d.edges {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[domain.EntityType]int, len(d.edges))
	var stack []domain.EntityType

	var visit func(t domain.EntityType) *ConfigurationError
	visit = func(t domain.EntityType) *ConfigurationError {
		color[t] = gray
		stack = append(stack, t)
		for _, e := range d.edges[t] {
			switch color[e.Child] {
			case gray:
				cycle := append(cycleTail(stack, e.Child), e.Child)
				return &ConfigurationError{Reason: "ownership cycle declared", Cycle: cycle}
			case white:
				if err := visit(e.Child); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[t] = black
		return nil
	}

	for _, t := range types {
		if color[t] == white {
			if err := visit(t); err != nil {
				return err
			}
		}
	}
	return nil
}

func cycleTail(stack []domain.EntityType, from domain.EntityType) []domain.EntityType {
	for i, t := range stack {
		if t == from {
			return append([]domain.EntityType(nil), stack[i:]...)
		}
	}
	return append([]domain.EntityType(nil), stack...)
}
