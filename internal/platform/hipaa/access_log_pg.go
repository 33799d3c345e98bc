package hipaa

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/clinicreport/internal/platform/db"
)

// PGAccessLog writes entries to the phi_access_log table of the tenant
// schema selected for the request.
type PGAccessLog struct {
	pool *pgxpool.Pool
}

func NewPGAccessLog(pool *pgxpool.Pool) *PGAccessLog {
	return &PGAccessLog{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (l *PGAccessLog) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return l.pool
}

func (l *PGAccessLog) Record(ctx context.Context, e *AccessEntry) error {
	prepare(e)
	_, err := l.conn(ctx).Exec(ctx, `
		INSERT INTO phi_access_log (
			id, user_id, user_name, roles, resource_type, resource_id, action,
			status, ip_address, user_agent, request_id, accessed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.UserID, e.UserName, e.Roles, e.ResourceType, e.ResourceID, e.Action,
		e.Status, e.IPAddress, e.UserAgent, e.RequestID, e.AccessedAt)
	if err != nil {
		return fmt.Errorf("hipaa: record access: %w", err)
	}
	return nil
}

func (l *PGAccessLog) List(ctx context.Context, f AccessFilter, limit, offset int) ([]*AccessEntry, int, error) {
	where, args := filterClause(f)
	q := l.conn(ctx)

	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM phi_access_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("hipaa: count access log: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT id, user_id, user_name, roles, resource_type, resource_id, action,
			status, ip_address, user_agent, request_id, accessed_at
		FROM phi_access_log%s
		ORDER BY accessed_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("hipaa: list access log: %w", err)
	}
	defer rows.Close()

	var out []*AccessEntry
	for rows.Next() {
		var e AccessEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserName, &e.Roles, &e.ResourceType, &e.ResourceID,
			&e.Action, &e.Status, &e.IPAddress, &e.UserAgent, &e.RequestID, &e.AccessedAt); err != nil {
			return nil, 0, fmt.Errorf("hipaa: scan access entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}

// filterClause builds the WHERE clause and positional args for f.
func filterClause(f AccessFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if f.Since != nil {
		add("accessed_at >= $%d", *f.Since)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
