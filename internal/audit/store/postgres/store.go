// Package postgres persists audit chains in audit_entries, with the tail of
// each chain kept in audit_chain_heads and locked for the duration of an
// append.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"agentauth/internal/audit"
	"agentauth/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const entryColumns = `event_id, event_type, occurred_at, severity, sequence, tenant_id,
	actor_type, actor_id, actor_ip, resource_type, resource_id, action, outcome,
	details, retention_days, previous_hash, record_hash, signature`

func (s *Store) Append(ctx context.Context, tenantID string, build audit.BuildFunc) (*audit.Entry, error) {
	var entry *audit.Entry
	err := tx.Run(ctx, s.db, func(ctx context.Context, t *sql.Tx) error {
		if _, err := t.ExecContext(ctx, `
			INSERT INTO audit_chain_heads (tenant_id, sequence, record_hash)
			VALUES ($1, 0, '')
			ON CONFLICT (tenant_id) DO NOTHING
		`, tenantID); err != nil {
			return fmt.Errorf("ensure chain head: %w", err)
		}

		var head audit.Head
		if err := t.QueryRowContext(ctx, `
			SELECT sequence, record_hash FROM audit_chain_heads
			WHERE tenant_id = $1
			FOR UPDATE
		`, tenantID).Scan(&head.Sequence, &head.Hash); err != nil {
			return fmt.Errorf("lock chain head: %w", err)
		}

		built, err := build(head)
		if err != nil {
			return err
		}
		if _, err := t.ExecContext(ctx, `
			INSERT INTO audit_entries (`+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		`, built.EventID, string(built.Type), built.Timestamp, string(built.Severity), built.Sequence,
			built.TenantID, built.Actor.Type, built.Actor.ID, built.Actor.IP,
			built.Resource.Type, built.Resource.ID, built.Action, built.Outcome,
			[]byte(built.Details), built.RetentionDays, built.PreviousHash, built.RecordHash, built.Signature,
		); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}

		if _, err := t.ExecContext(ctx, `
			UPDATE audit_chain_heads SET sequence = $2, record_hash = $3
			WHERE tenant_id = $1
		`, tenantID, built.Sequence, built.RecordHash); err != nil {
			return fmt.Errorf("advance chain head: %w", err)
		}
		entry = built
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) List(ctx context.Context, tenantID string, filter audit.Filter) ([]audit.Entry, error) {
	var (
		conds = []string{"tenant_id = $1"}
		args  = []any{tenantID}
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !filter.Start.IsZero() {
		add("occurred_at >= $%d", filter.Start)
	}
	if !filter.End.IsZero() {
		add("occurred_at <= $%d", filter.End)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		add("event_type = ANY($%d)", pq.Array(types))
	}

	query := `SELECT ` + entryColumns + ` FROM audit_entries WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY sequence`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e        audit.Entry
			typ, sev string
			details  []byte
		)
		if err := rows.Scan(&e.EventID, &typ, &e.Timestamp, &sev, &e.Sequence, &e.TenantID,
			&e.Actor.Type, &e.Actor.ID, &e.Actor.IP, &e.Resource.Type, &e.Resource.ID,
			&e.Action, &e.Outcome, &details, &e.RetentionDays,
			&e.PreviousHash, &e.RecordHash, &e.Signature); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Type = audit.EventType(typ)
		e.Severity = audit.Severity(sev)
		e.Timestamp = e.Timestamp.UTC()
		e.Details = audit.CanonicalDetails(details)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
