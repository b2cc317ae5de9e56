package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentauth/internal/authorization/models"
	"agentauth/pkg/domain"
	"agentauth/pkg/platform/sentinel"
	"agentauth/pkg/platform/tx"
)

// PostgresStore persists authorization records in the authorizations table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const authorizationColumns = `authorization_code, consent_id, developer_id, decision, amount, currency,
	merchant_id, merchant_name, merchant_category, action, expires_at, is_used,
	used_at, verified_by, created_at`

const columnCount = 15

// SaveBatch inserts records in one statement. Codes already present are left
// untouched so a retried batch is harmless.
func (s *PostgresStore) SaveBatch(ctx context.Context, records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args = make([]any, 0, len(records)*columnCount)
	)
	sb.WriteString(`INSERT INTO authorizations (` + authorizationColumns + `) VALUES `)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < columnCount; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*columnCount+j+1)
		}
		sb.WriteString(")")
		args = append(args, r.Code, r.ConsentID, r.DeveloperID, string(r.Decision), int64(r.Amount),
			string(r.Currency), r.MerchantID, r.MerchantName, r.MerchantCategory, r.Action,
			r.ExpiresAt.UTC(), r.IsUsed, r.UsedAt, nullString(r.VerifiedBy), r.CreatedAt.UTC())
	}
	sb.WriteString(` ON CONFLICT (authorization_code) DO NOTHING`)

	return tx.Run(ctx, s.db, func(ctx context.Context, sqlTx *sql.Tx) error {
		if _, err := sqlTx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("insert authorizations: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+authorizationColumns+` FROM authorizations WHERE authorization_code = $1`, code)
	var (
		r          models.Record
		decision   string
		amount     int64
		currency   string
		usedAt     sql.NullTime
		verifiedBy sql.NullString
	)
	err := row.Scan(&r.Code, &r.ConsentID, &r.DeveloperID, &decision, &amount, &currency,
		&r.MerchantID, &r.MerchantName, &r.MerchantCategory, &r.Action, &r.ExpiresAt, &r.IsUsed,
		&usedAt, &verifiedBy, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find authorization: %w", err)
	}
	r.Decision = models.Decision(decision)
	r.Amount = domain.Amount(amount)
	r.Currency = domain.Currency(currency)
	r.ExpiresAt = r.ExpiresAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	if usedAt.Valid {
		t := usedAt.Time.UTC()
		r.UsedAt = &t
	}
	r.VerifiedBy = verifiedBy.String
	return &r, nil
}

// MarkUsed flips is_used only if it is still false, so concurrent redemptions
// resolve to exactly one winner.
func (s *PostgresStore) MarkUsed(ctx context.Context, code string, at time.Time, verifiedBy string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE authorizations
		SET is_used = TRUE, used_at = $2, verified_by = $3
		WHERE authorization_code = $1 AND is_used = FALSE
	`, code, at.UTC(), nullString(verifiedBy))
	if err != nil {
		return fmt.Errorf("mark authorization used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark authorization used: %w", err)
	}
	if n == 1 {
		return nil
	}

	var used bool
	err = s.db.QueryRowContext(ctx,
		`SELECT is_used FROM authorizations WHERE authorization_code = $1`, code).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark authorization used: %w", err)
	}
	return sentinel.ErrAlreadyUsed
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
