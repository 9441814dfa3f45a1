package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/yourorg/staybook/internal/domain"
)

// PostgresDiscountRepository implements domain.DiscountRepository using PostgreSQL
type PostgresDiscountRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresDiscountRepository creates a new discount repository
func NewPostgresDiscountRepository(db *sql.DB, logger *slog.Logger) *PostgresDiscountRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDiscountRepository{db: db, logger: logger}
}

const discountColumns = `
	id, property_id, name, status, value_type, value, scope, user_ids,
	starts_at, ends_at, COALESCE(created_by, ''), COALESCE(created_by_token, ''),
	is_deleted, deleted_at, created_at, updated_at
`

// ListActionable returns all live discounts still subject to temporal
// transitions.
func (r *PostgresDiscountRepository) ListActionable(ctx context.Context) ([]*domain.Discount, error) {
	query := `
		SELECT ` + discountColumns + `
		FROM discounts
		WHERE status IN ('scheduled', 'active') AND is_deleted = false
		ORDER BY starts_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("failed to list actionable discounts",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list actionable discounts: %w", err)
	}
	defer rows.Close()

	return scanDiscounts(rows)
}

// UpdateStatus transitions a discount conditionally on its current
// state. A lost race against a concurrent writer returns ErrNotFound.
func (r *PostgresDiscountRepository) UpdateStatus(ctx context.Context, id string, from, to domain.DiscountStatus, at time.Time) error {
	query := `
		UPDATE discounts
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2 AND is_deleted = false
	`

	result, err := r.db.ExecContext(ctx, query, id, from, to, at)
	if err != nil {
		r.logger.Error("failed to update discount status",
			slog.String("discount_id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to update discount status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActiveForProperty returns the active discounts attached to a property.
func (r *PostgresDiscountRepository) ListActiveForProperty(ctx context.Context, propertyID string) ([]*domain.Discount, error) {
	query := `
		SELECT ` + discountColumns + `
		FROM discounts
		WHERE property_id = $1 AND status = 'active' AND is_deleted = false
		ORDER BY starts_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, propertyID)
	if err != nil {
		r.logger.Error("failed to list active discounts",
			slog.String("property_id", propertyID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list active discounts: %w", err)
	}
	defer rows.Close()

	return scanDiscounts(rows)
}

func scanDiscounts(rows *sql.Rows) ([]*domain.Discount, error) {
	var out []*domain.Discount
	for rows.Next() {
		d := &domain.Discount{}
		var deletedAt sql.NullTime
		err := rows.Scan(
			&d.ID, &d.PropertyID, &d.Name, &d.Status, &d.ValueType, &d.Value,
			&d.Scope, pq.Array(&d.UserIDs),
			&d.StartsAt, &d.EndsAt, &d.CreatedBy, &d.CreatedByToken,
			&d.IsDeleted, &deletedAt, &d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discount: %w", err)
		}
		if deletedAt.Valid {
			d.DeletedAt = &deletedAt.Time
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
