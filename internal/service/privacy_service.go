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
	"github.com/yourorg/staybook/internal/observability/metrics"
	"github.com/yourorg/staybook/internal/security/anonymizer"
	"github.com/yourorg/staybook/internal/security/audit"
)

// PrivacyService performs irreversible depersonalization: personal
// fields are cleared and every reference to the user elsewhere in the
// graph is replaced with an opaque token, while the relational shape
// survives. Deletion and depersonalization are independent operations.
type PrivacyService struct {
	store      domain.Store
	anonymizer *anonymizer.Anonymizer
	audit      *audit.Logger
	logger     *slog.Logger
	clock      domain.Clock
}

func NewPrivacyService(
	store domain.Store,
	anon *anonymizer.Anonymizer,
	auditLogger *audit.Logger,
	logger *slog.Logger,
	clock domain.Clock,
) *PrivacyService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &PrivacyService{
		store:      store,
		anonymizer: anon,
		audit:      auditLogger,
		logger:     logger,
		clock:      clock,
	}
}

// Depersonalize erases the user's identity in one transaction. The
// user may be deleted or live. Re-invoking on an already-depersonalized
// user is a guarded no-op.
func (s *PrivacyService) Depersonalize(ctx context.Context, userID, reason string) error {
	ctx, span := otel.Tracer("staybook/service").Start(ctx, "privacy.depersonalize")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	token := s.anonymizer.Token(userID)
	now := s.clock.Now()

	var (
		alreadyDone bool
		references  int64
	)

	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u.IsDepersonalized {
			alreadyDone = true
			return nil
		}

		scrubUser(u, token, now)
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}

		n, err := tx.RewriteEmployeeUser(ctx, userID, token, now)
		if err != nil {
			return err
		}
		references += n

		n, err = tx.RewriteDependentAuthor(ctx, userID, token, now)
		if err != nil {
			return err
		}
		references += n

		n, err = tx.TokenizeDiscountCreator(ctx, userID, token, now)
		if err != nil {
			return err
		}
		references += n

		return s.scrubIndividualProfile(ctx, tx, userID, token, now)
	})

	if err != nil {
		span.RecordError(err)
		result := "error"
		if errors.Is(err, domain.ErrNotFound) {
			result = "not_found"
			s.audit.OperationRefused(ctx, "depersonalize", domain.EntityRef{Type: domain.EntityUser, ID: userID}, "user not found")
		} else {
			err = &domain.PersistenceError{Op: "depersonalization", Err: err}
		}
		metrics.ObserveCascade("depersonalize", result, time.Since(start))
		return err
	}

	if alreadyDone {
		metrics.ObserveCascade("depersonalize", "noop", time.Since(start))
		s.logger.Debug("user already depersonalized", slog.String("user_id", userID))
		return nil
	}

	metrics.ObserveCascade("depersonalize", "success", time.Since(start))
	s.audit.DepersonalizationCompleted(ctx, userID, token, reason, references)
	s.logger.Info("depersonalization committed",
		slog.String("user_id", userID),
		slog.Int64("references_rewritten", references),
	)
	return nil
}

// scrubUser overwrites every personal field with empty or placeholder
// values and sets the terminal markers. Placeholders keep uniqueness
// constraints on username/email satisfied.
func scrubUser(u *domain.User, token string, now time.Time) {
	u.Username = "deleted_" + u.ID
	u.Email = fmt.Sprintf("deleted_%s@example.invalid", u.ID)
	u.FirstName = ""
	u.LastName = ""
	u.Phone = ""
	u.About = ""
	u.AnonymizedToken = token
	u.IsDepersonalized = true
	u.IsDeleted = true
	if u.DeletedAt == nil {
		u.DeletedAt = &now
	}
}

// scrubIndividualProfile clears the personal contact data on an
// individual landlord profile. Company profiles are not personal data;
// only their membership rows are rewritten, which RewriteEmployeeUser
// already covered.
func (s *PrivacyService) scrubIndividualProfile(ctx context.Context, tx domain.Tx, userID, token string, now time.Time) error {
	p, err := tx.IndividualProfileOf(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	p.UserID = ""
	p.Name = "Deleted landlord"
	p.Email = fmt.Sprintf("deleted_%s@example.invalid", p.ID)
	p.Phone = "deleted_" + p.ID
	p.Address = ""
	p.Description = ""
	p.CreatedByToken = token
	p.IsDeleted = true
	p.DeletedAt = &now

	return tx.SaveProfile(ctx, p)
}
