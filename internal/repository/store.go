package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/staybook/internal/domain"
)

// PostgresStore implements domain.Store over a single *sql.DB. Every
// cascade runs inside one database transaction; fn's error rolls the
// whole traversal back.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new transactional store.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// InTx opens a transaction, runs fn against it and commits, rolling
// back on any error.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

// tableFor maps a declared entity type to its table. The tables all
// share the is_deleted/deleted_at soft-delete columns.
func tableFor(t domain.EntityType) (string, error) {
	switch t {
	case domain.EntityUser:
		return "users", nil
	case domain.EntityLandlordProfile:
		return "landlord_profiles", nil
	case domain.EntityEmployee:
		return "employees", nil
	case domain.EntityProperty:
		return "properties", nil
	case domain.EntityDiscount:
		return "discounts", nil
	case domain.EntityDependent:
		return "property_dependents", nil
	}
	return "", fmt.Errorf("unknown entity type %q", t)
}

// rootSelect builds the locking read for a cascade root. FOR UPDATE
// serializes concurrent cascades on the same row: the loser of the race
// blocks here, then observes the winner's committed is_deleted and
// short-circuits instead of re-running the traversal.
func rootSelect(t domain.EntityType) (string, error) {
	switch t {
	case domain.EntityLandlordProfile:
		return `SELECT is_deleted, kind FROM landlord_profiles WHERE id = $1 FOR UPDATE`, nil
	case domain.EntityEmployee:
		return `SELECT is_deleted, user_id FROM employees WHERE id = $1 FOR UPDATE`, nil
	default:
		table, err := tableFor(t)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`SELECT is_deleted FROM %s WHERE id = $1 FOR UPDATE`, table), nil
	}
}

func (t *pgTx) Get(ctx context.Context, ref domain.EntityRef) (*domain.EntityRecord, error) {
	rec := &domain.EntityRecord{Ref: ref}

	query, err := rootSelect(ref.Type)
	if err != nil {
		return nil, err
	}

	switch ref.Type {
	case domain.EntityLandlordProfile:
		err = t.tx.QueryRowContext(ctx, query, ref.ID).Scan(&rec.IsDeleted, &rec.ProfileKind)
	case domain.EntityEmployee:
		var userID sql.NullString
		err = t.tx.QueryRowContext(ctx, query, ref.ID).Scan(&rec.IsDeleted, &userID)
		rec.UserRefID = userID.String
	default:
		err = t.tx.QueryRowContext(ctx, query, ref.ID).Scan(&rec.IsDeleted)
	}

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s %s: %w", ref.Type, ref.ID, err)
	}
	return rec, nil
}

func (t *pgTx) Children(ctx context.Context, parent domain.EntityRef, relation string, child domain.EntityType) ([]*domain.EntityRecord, error) {
	var query string
	switch {
	case parent.Type == domain.EntityUser && relation == "profile":
		query = `SELECT id, is_deleted, kind, '' FROM landlord_profiles WHERE user_id = $1`
	case parent.Type == domain.EntityLandlordProfile && relation == "properties":
		query = `SELECT id, is_deleted, '', '' FROM properties WHERE profile_id = $1`
	case parent.Type == domain.EntityLandlordProfile && relation == "employees":
		query = `SELECT id, is_deleted, '', COALESCE(user_id, '') FROM employees WHERE profile_id = $1`
	case parent.Type == domain.EntityProperty && relation == "discounts":
		query = `SELECT id, is_deleted, '', '' FROM discounts WHERE property_id = $1`
	case parent.Type == domain.EntityProperty && relation == "dependents":
		query = `SELECT id, is_deleted, '', '' FROM property_dependents WHERE property_id = $1`
	default:
		return nil, fmt.Errorf("unknown relation %s.%s", parent.Type, relation)
	}

	rows, err := t.tx.QueryContext(ctx, query, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s of %s %s: %w", relation, parent.Type, parent.ID, err)
	}
	defer rows.Close()

	var out []*domain.EntityRecord
	for rows.Next() {
		rec := &domain.EntityRecord{Ref: domain.EntityRef{Type: child}}
		var kind string
		if err := rows.Scan(&rec.Ref.ID, &rec.IsDeleted, &kind, &rec.UserRefID); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", child, err)
		}
		rec.ProfileKind = domain.ProfileKind(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *pgTx) MarkDeleted(ctx context.Context, ref domain.EntityRef, at time.Time) error {
	table, err := tableFor(ref.Type)
	if err != nil {
		return err
	}

	// The is_deleted guard makes re-marking a no-op without clobbering
	// the original deletion timestamp.
	_, err = t.tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET is_deleted = true, deleted_at = $2, updated_at = $2
		WHERE id = $1 AND is_deleted = false
	`, table), ref.ID, at)
	if err != nil {
		return fmt.Errorf("failed to mark %s %s deleted: %w", ref.Type, ref.ID, err)
	}
	return nil
}

func (t *pgTx) CountActiveBookings(ctx context.Context, root domain.EntityRef, now time.Time) (int, error) {
	active := `b.status IN ('pending', 'confirmed') AND b.check_out > $2`

	var query string
	switch root.Type {
	case domain.EntityProperty:
		query = `SELECT COUNT(*) FROM bookings b WHERE b.property_id = $1 AND ` + active
	case domain.EntityLandlordProfile:
		query = `
			SELECT COUNT(*) FROM bookings b
			JOIN properties p ON p.id = b.property_id
			WHERE p.profile_id = $1 AND ` + active
	case domain.EntityUser:
		// A user's subtree covers their hosted properties and their own
		// upcoming stays as a guest.
		query = `
			SELECT COUNT(*) FROM bookings b
			LEFT JOIN properties p ON p.id = b.property_id
			LEFT JOIN landlord_profiles lp ON lp.id = p.profile_id
			WHERE (lp.user_id = $1 OR b.guest_id = $1) AND ` + active
	default:
		return 0, nil
	}

	var n int
	if err := t.tx.QueryRowContext(ctx, query, root.ID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active bookings under %s %s: %w", root.Type, root.ID, err)
	}
	return n, nil
}

func (t *pgTx) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	var deletedAt sql.NullTime

	err := t.tx.QueryRowContext(ctx, `
		SELECT id, email, username, first_name, last_name, phone, about,
		       is_deleted, deleted_at, is_depersonalized, COALESCE(anonymized_token, ''),
		       created_at, updated_at
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Phone, &u.About,
		&u.IsDeleted, &deletedAt, &u.IsDepersonalized, &u.AnonymizedToken,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	return u, nil
}

func (t *pgTx) SaveUser(ctx context.Context, u *domain.User) error {
	var deletedAt sql.NullTime
	if u.DeletedAt != nil {
		deletedAt = sql.NullTime{Time: *u.DeletedAt, Valid: true}
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE users
		SET email = $2, username = $3, first_name = $4, last_name = $5,
		    phone = $6, about = $7, is_deleted = $8, deleted_at = $9,
		    is_depersonalized = $10, anonymized_token = NULLIF($11, ''),
		    updated_at = NOW()
		WHERE id = $1
	`, u.ID, u.Email, u.Username, u.FirstName, u.LastName,
		u.Phone, u.About, u.IsDeleted, deletedAt,
		u.IsDepersonalized, u.AnonymizedToken)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *pgTx) IndividualProfileOf(ctx context.Context, userID string) (*domain.LandlordProfile, error) {
	p := &domain.LandlordProfile{}
	var deletedAt sql.NullTime

	err := t.tx.QueryRowContext(ctx, `
		SELECT id, COALESCE(user_id, ''), kind, name, email, phone, address, description,
		       COALESCE(created_by_token, ''), is_deleted, deleted_at, created_at, updated_at
		FROM landlord_profiles
		WHERE user_id = $1 AND kind = 'individual'
	`, userID).Scan(
		&p.ID, &p.UserID, &p.Kind, &p.Name, &p.Email, &p.Phone, &p.Address, &p.Description,
		&p.CreatedByToken, &p.IsDeleted, &deletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get individual profile of %s: %w", userID, err)
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	return p, nil
}

func (t *pgTx) SaveProfile(ctx context.Context, p *domain.LandlordProfile) error {
	var deletedAt sql.NullTime
	if p.DeletedAt != nil {
		deletedAt = sql.NullTime{Time: *p.DeletedAt, Valid: true}
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE landlord_profiles
		SET user_id = NULLIF($2, ''), name = $3, email = $4, phone = $5,
		    address = $6, description = $7, created_by_token = NULLIF($8, ''),
		    is_deleted = $9, deleted_at = $10, updated_at = NOW()
		WHERE id = $1
	`, p.ID, p.UserID, p.Name, p.Email, p.Phone,
		p.Address, p.Description, p.CreatedByToken,
		p.IsDeleted, deletedAt)
	if err != nil {
		return fmt.Errorf("failed to save profile %s: %w", p.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *pgTx) RewriteEmployeeUser(ctx context.Context, userID, token string, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE employees
		SET user_id = NULL, user_token = $2, updated_at = $3
		WHERE user_id = $1
	`, userID, token, at)
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite employee rows for user %s: %w", userID, err)
	}
	return res.RowsAffected()
}

func (t *pgTx) RewriteDependentAuthor(ctx context.Context, userID, token string, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE property_dependents
		SET author_id = NULL, author_token = $2, updated_at = $3
		WHERE author_id = $1
	`, userID, token, at)
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite dependent authorship for user %s: %w", userID, err)
	}
	return res.RowsAffected()
}

func (t *pgTx) TokenizeDiscountCreator(ctx context.Context, userID, token string, at time.Time) (int64, error) {
	// Live discounts of a depersonalized creator are cancelled; expired
	// and already-cancelled ones only lose the identity reference.
	res, err := t.tx.ExecContext(ctx, `
		UPDATE discounts
		SET created_by = NULL, created_by_token = $2,
		    status = CASE WHEN status IN ('scheduled', 'active') THEN 'cancelled' ELSE status END,
		    updated_at = $3
		WHERE created_by = $1
	`, userID, token, at)
	if err != nil {
		return 0, fmt.Errorf("failed to tokenize discount creator %s: %w", userID, err)
	}
	return res.RowsAffected()
}
