package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/staybook/internal/domain"
)

// PostgresPropertyRepository implements domain.PropertyRepository using PostgreSQL
type PostgresPropertyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPropertyRepository creates a new property repository
func NewPostgresPropertyRepository(db *sql.DB, logger *slog.Logger) *PostgresPropertyRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPropertyRepository{db: db, logger: logger}
}

// GetByID retrieves a live property by ID. Soft-deleted rows return
// ErrNotFound.
func (r *PostgresPropertyRepository) GetByID(ctx context.Context, id string) (*domain.Property, error) {
	p := &domain.Property{}
	var deletedAt sql.NullTime

	query := `
		SELECT id, profile_id, title, city, country, address, currency,
		       base_price, is_deleted, deleted_at, created_at, updated_at
		FROM properties
		WHERE id = $1 AND is_deleted = false
	`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.ProfileID, &p.Title, &p.City, &p.Country, &p.Address, &p.Currency,
		&p.BasePrice, &p.IsDeleted, &deletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("failed to get property",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	return p, nil
}
