package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"aqms-backend/internal/model"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Append(ctx context.Context, entry model.AuditEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO auth_audit
		 (action, status, subject, reason, actor_user_id, actor_role, actor_ip, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Action, entry.Status, entry.Subject, entry.Reason,
		entry.Actor.UserID, entry.Actor.Role, entry.Actor.IP, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Query returns matching entries newest first.
func (r *AuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, error) {
	where := make([]string, 0, 6)
	args := make([]any, 0, 7)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if query.Action != "" {
		add("action = $%d", string(query.Action))
	}
	if query.Status != "" {
		add("status = $%d", query.Status)
	}
	if query.ActorID != "" {
		add("actor_user_id = $%d", query.ActorID)
	}
	if query.Subject != "" {
		add("subject = $%d", query.Subject)
	}
	if !query.From.IsZero() {
		add("occurred_at >= $%d", query.From)
	}
	if !query.To.IsZero() {
		add("occurred_at <= $%d", query.To)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, query.Limit)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, action, status, subject, reason, actor_user_id, actor_role, actor_ip, occurred_at
		 FROM auth_audit %s
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $%d`, whereClause, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(
			&e.ID, &e.Action, &e.Status, &e.Subject, &e.Reason,
			&e.Actor.UserID, &e.Actor.Role, &e.Actor.IP, &e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
