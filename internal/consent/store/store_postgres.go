package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"agentauth/internal/consent/models"
	"agentauth/pkg/domain"
	"agentauth/pkg/platform/sentinel"
)

// PostgresStore persists consents in the consents table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const consentColumns = `consent_id, user_id, developer_id, intent, max_amount, currency,
	allowed_merchants, allowed_categories, expires_at, single_use, is_active,
	revoked_at, used_at, signature, public_key, created_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Consent) error {
	cons := c.Constraints.Normalized()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consents (`+consentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, c.ID, c.UserID, c.DeveloperID, c.Intent, int64(cons.MaxAmount), string(cons.Currency),
		pq.Array(nonNil(cons.AllowedMerchants)), pq.Array(nonNil(cons.AllowedCategories)),
		c.ExpiresAt, c.SingleUse, c.IsActive, c.RevokedAt, c.UsedAt, c.Signature, c.PublicKey, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Consent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+consentColumns+` FROM consents WHERE consent_id = $1`, id)
	c, err := scanConsent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return c, nil
}

// Revoke sets revoked_at once; repeated calls return the already revoked record.
func (s *PostgresStore) Revoke(ctx context.Context, id string, at time.Time) (*models.Consent, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE consents
		SET is_active = FALSE, revoked_at = COALESCE(revoked_at, $2)
		WHERE consent_id = $1
		RETURNING `+consentColumns, id, at.UTC())
	c, err := scanConsent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("revoke consent: %w", err)
	}
	return c, nil
}

// ClaimUse sets used_at if it is unset. The conditional update makes the
// row the single point of agreement across instances.
func (s *PostgresStore) ClaimUse(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consents SET used_at = $2
		WHERE consent_id = $1 AND used_at IS NULL
	`, id, at.UTC())
	if err != nil {
		return false, fmt.Errorf("claim consent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim consent: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) ReleaseUse(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE consents SET used_at = NULL WHERE consent_id = $1`, id)
	if err != nil {
		return fmt.Errorf("release consent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanConsent(row *sql.Row) (*models.Consent, error) {
	var (
		c          models.Consent
		maxAmount  int64
		currency   string
		merchants  []string
		categories []string
		revokedAt  sql.NullTime
		usedAt     sql.NullTime
	)
	err := row.Scan(&c.ID, &c.UserID, &c.DeveloperID, &c.Intent, &maxAmount, &currency,
		pq.Array(&merchants), pq.Array(&categories), &c.ExpiresAt, &c.SingleUse, &c.IsActive,
		&revokedAt, &usedAt, &c.Signature, &c.PublicKey, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Constraints = models.Constraints{
		MaxAmount:         domain.Amount(maxAmount),
		Currency:          domain.Currency(currency),
		AllowedMerchants:  merchants,
		AllowedCategories: categories,
	}.Normalized()
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		c.RevokedAt = &t
	}
	if usedAt.Valid {
		t := usedAt.Time.UTC()
		c.UsedAt = &t
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState() == "23505"
	}
	return false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
