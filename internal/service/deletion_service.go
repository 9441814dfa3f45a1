package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/staybook/internal/domain"
	"github.com/yourorg/staybook/internal/graph"
	"github.com/yourorg/staybook/internal/observability/metrics"
	"github.com/yourorg/staybook/internal/security/audit"
)

// DeletionService walks the ownership graph from a root entity and
// soft-deletes everything reachable, in one transaction.
type DeletionService struct {
	store  domain.Store
	desc   *graph.Descriptor
	audit  *audit.Logger
	logger *slog.Logger
	clock  domain.Clock
}

// NewDeletionService creates a deletion service over a validated graph
// descriptor.
func NewDeletionService(
	store domain.Store,
	desc *graph.Descriptor,
	auditLogger *audit.Logger,
	logger *slog.Logger,
	clock domain.Clock,
) *DeletionService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &DeletionService{
		store:  store,
		desc:   desc,
		audit:  auditLogger,
		logger: logger,
		clock:  clock,
	}
}

// SoftDelete marks the root and every live entity it transitively owns
// as deleted. A company profile additionally cascades into each
// employee's user account as a sub-root. Calling it on an
// already-deleted root is a no-op returning an empty report.
func (s *DeletionService) SoftDelete(ctx context.Context, root domain.EntityRef, reason string) (*domain.DeletionReport, error) {
	ctx, span := otel.Tracer("staybook/service").Start(ctx, "deletion.soft_delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("root.type", string(root.Type)),
		attribute.String("root.id", root.ID),
	)

	start := time.Now()

	if !s.desc.Declared(root.Type) {
		return nil, &domain.ValidationError{Field: "root", Reason: fmt.Sprintf("undeclared entity type %q", root.Type)}
	}

	report := domain.NewDeletionReport(root)
	now := s.clock.Now()

	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		rec, err := tx.Get(ctx, root)
		if err != nil {
			return err
		}
		if rec.IsDeleted {
			// Idempotent re-run: nothing to do, nothing to report.
			return nil
		}

		active, err := tx.CountActiveBookings(ctx, root, now)
		if err != nil {
			return err
		}
		if active > 0 {
			return &domain.ValidationError{
				Field:  "bookings",
				Reason: fmt.Sprintf("%d active bookings under %s %s", active, root.Type, root.ID),
			}
		}

		return s.cascade(ctx, tx, rec, now, report)
	})

	if err != nil {
		span.RecordError(err)
		result := "error"
		switch {
		case errors.Is(err, domain.ErrNotFound):
			result = "not_found"
			s.audit.OperationRefused(ctx, "soft_delete", root, "root not found")
		case isValidation(err):
			result = "refused"
			s.audit.OperationRefused(ctx, "soft_delete", root, err.Error())
		default:
			err = &domain.PersistenceError{Op: "soft delete cascade", Err: err}
		}
		metrics.ObserveCascade("soft_delete", result, time.Since(start))
		return nil, err
	}

	metrics.ObserveCascade("soft_delete", "success", time.Since(start))
	if !report.Empty() {
		report.CompletedAt = now
		metrics.ObserveCascadeSize("soft_delete", report.Total())
		s.audit.DeletionCompleted(ctx, report, reason)
		s.logger.Info("soft delete cascade committed",
			slog.String("root_type", string(root.Type)),
			slog.String("root_id", root.ID),
			slog.Int("entities", report.Total()),
		)
	}
	return report, nil
}

// cascade is a breadth-first walk over the descriptor. Already-deleted
// and already-visited nodes are skipped, so overlapping concurrent
// cascades converge on the store's committed state.
func (s *DeletionService) cascade(
	ctx context.Context,
	tx domain.Tx,
	root *domain.EntityRecord,
	now time.Time,
	report *domain.DeletionReport,
) error {
	visited := map[domain.EntityRef]bool{root.Ref: true}
	queue := []*domain.EntityRecord{root}

	for len(queue) > 0 {
		rec := queue[0]
		queue = queue[1:]

		if err := tx.MarkDeleted(ctx, rec.Ref, now); err != nil {
			return err
		}
		report.Add(rec.Ref.Type)

		companyRoot := rec.Ref.Type == domain.EntityLandlordProfile && rec.ProfileKind == domain.ProfileCompany

		for _, edge := range s.desc.ChildrenOf(rec.Ref.Type) {
			children, err := tx.Children(ctx, rec.Ref, edge.Relation, edge.Child)
			if err != nil {
				return err
			}
			for _, child := range children {
				if !child.IsDeleted && !visited[child.Ref] {
					visited[child.Ref] = true
					queue = append(queue, child)
				}

				// A company's employment rows pull each employee's own
				// user account into the cascade as a fresh sub-root.
				if companyRoot && edge.Child == domain.EntityEmployee && child.UserRefID != "" {
					userRef := domain.EntityRef{Type: domain.EntityUser, ID: child.UserRefID}
					if visited[userRef] {
						continue
					}
					userRec, err := tx.Get(ctx, userRef)
					if err != nil {
						if errors.Is(err, domain.ErrNotFound) {
							continue
						}
						return err
					}
					if !userRec.IsDeleted {
						visited[userRef] = true
						queue = append(queue, userRec)
					}
				}
			}
		}
	}
	return nil
}

func isValidation(err error) bool {
	var ve *domain.ValidationError
	return errors.As(err, &ve)
}
