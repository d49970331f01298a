package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/google/uuid"
)

// Store reads through the pool and writes through the Worker.
type Store struct {
	db     *sql.DB
	writer *Worker
}

func NewStore(db *sql.DB, writer *Worker) *Store {
	return &Store{db: db, writer: writer}
}

func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO audit_records(
  id, operation, issuer_id, access_key, request, response,
  status_code, status_message, latency_ms, created_at_ms, protocol, outcome
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID.String(), string(rec.Operation), rec.IssuerID, nullable(rec.AccessKey),
			rec.Request, rec.Response, rec.StatusCode, rec.StatusMessage,
			rec.LatencyMs, rec.Timestamp.UTC().UnixMilli(), nullable(rec.Protocol), string(rec.Outcome),
		); err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		return nil
	})
}

func (s *Store) List(ctx context.Context, issuerID string, f audit.Filter, offset, limit int) ([]audit.Record, int, error) {
	where, args := whereClause(issuerID, f)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("List count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, operation, issuer_id, access_key, request, response,
       status_code, status_message, latency_ms, created_at_ms, protocol, outcome
FROM audit_records`+where+`
ORDER BY created_at_ms DESC, id
LIMIT ? OFFSET ?;`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("List query: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			rec                 audit.Record
			id, op, outcome     string
			accessKey, protocol sql.NullString
			createdMs           int64
		)
		if err := rows.Scan(&id, &op, &rec.IssuerID, &accessKey, &rec.Request, &rec.Response,
			&rec.StatusCode, &rec.StatusMessage, &rec.LatencyMs, &createdMs, &protocol, &outcome); err != nil {
			return nil, 0, fmt.Errorf("List scan: %w", err)
		}
		rec.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, 0, fmt.Errorf("List id %q: %w", id, err)
		}
		rec.Operation = audit.Operation(op)
		rec.Outcome = audit.Outcome(outcome)
		rec.AccessKey = accessKey.String
		rec.Protocol = protocol.String
		rec.Timestamp = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("List rows: %w", err)
	}
	return out, total, nil
}

func (s *Store) Aggregate(ctx context.Context, issuerID string, since time.Time) ([]audit.Aggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT operation, outcome, COUNT(*), COALESCE(SUM(latency_ms), 0)
FROM audit_records
WHERE issuer_id = ? AND created_at_ms >= ?
GROUP BY operation, outcome;`, issuerID, since.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("Aggregate query: %w", err)
	}
	defer rows.Close()

	var out []audit.Aggregate
	for rows.Next() {
		var (
			g           audit.Aggregate
			op, outcome string
		)
		if err := rows.Scan(&op, &outcome, &g.Count, &g.LatencyMs); err != nil {
			return nil, fmt.Errorf("Aggregate scan: %w", err)
		}
		g.Operation = audit.Operation(op)
		g.Outcome = audit.Outcome(outcome)
		out = append(out, g)
	}
	return out, rows.Err()
}

func whereClause(issuerID string, f audit.Filter) (string, []any) {
	conds := []string{"issuer_id = ?"}
	args := []any{issuerID}

	if f.Operation != "" {
		conds = append(conds, "operation = ?")
		args = append(args, string(f.Operation))
	}
	if f.Status != "" {
		conds = append(conds, "status_code = ?")
		args = append(args, f.Status)
	}
	if !f.From.IsZero() {
		conds = append(conds, "created_at_ms >= ?")
		args = append(args, f.From.UTC().UnixMilli())
	}
	if !f.To.IsZero() {
		conds = append(conds, "created_at_ms <= ?")
		args = append(args, f.To.UTC().UnixMilli())
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
