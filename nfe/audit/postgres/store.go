// Package postgres is an audit.Store on PostgreSQL (lib/pq driver).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS nfe_audit_records (
  id             UUID PRIMARY KEY,
  operation      TEXT NOT NULL,
  issuer_id      TEXT NOT NULL,
  access_key     CHAR(44),
  request        TEXT NOT NULL,
  response       TEXT NOT NULL,
  status_code    TEXT NOT NULL,
  status_message TEXT NOT NULL,
  latency_ms     BIGINT NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL,
  protocol       TEXT,
  outcome        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nfe_audit_records_issuer_time
  ON nfe_audit_records(issuer_id, created_at);
`

// uniqueViolation is the SQLSTATE of a duplicate primary key.
const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects with dsn and creates the table when missing.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Append inserts rec. Writing the same record id twice is not an error.
func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nfe_audit_records (
			id, operation, issuer_id, access_key, request, response,
			status_code, status_message, latency_ms, created_at, protocol, outcome
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rec.ID, string(rec.Operation), rec.IssuerID, nullable(rec.AccessKey),
		rec.Request, rec.Response, rec.StatusCode, rec.StatusMessage,
		rec.LatencyMs, rec.Timestamp.UTC(), nullable(rec.Protocol), string(rec.Outcome),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil
		}
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, issuerID string, f audit.Filter, offset, limit int) ([]audit.Record, int, error) {
	where, args := whereClause(issuerID, f)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nfe_audit_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	n := len(args)
	query := `
		SELECT id, operation, issuer_id, access_key, request, response,
			   status_code, status_message, latency_ms, created_at, protocol, outcome
		FROM nfe_audit_records` + where + `
		ORDER BY created_at DESC, id
		LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			rec                 audit.Record
			op, outcome         string
			accessKey, protocol sql.NullString
		)
		if err := rows.Scan(&rec.ID, &op, &rec.IssuerID, &accessKey, &rec.Request, &rec.Response,
			&rec.StatusCode, &rec.StatusMessage, &rec.LatencyMs, &rec.Timestamp, &protocol, &outcome); err != nil {
			return nil, 0, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Operation = audit.Operation(op)
		rec.Outcome = audit.Outcome(outcome)
		rec.AccessKey = accessKey.String
		rec.Protocol = protocol.String
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, total, nil
}

func (s *Store) Aggregate(ctx context.Context, issuerID string, since time.Time) ([]audit.Aggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT operation, outcome, COUNT(*), COALESCE(SUM(latency_ms), 0)
		FROM nfe_audit_records
		WHERE issuer_id = $1 AND created_at >= $2
		GROUP BY operation, outcome
	`, issuerID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("aggregate audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Aggregate
	for rows.Next() {
		var (
			g           audit.Aggregate
			op, outcome string
		)
		if err := rows.Scan(&op, &outcome, &g.Count, &g.LatencyMs); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		g.Operation = audit.Operation(op)
		g.Outcome = audit.Outcome(outcome)
		out = append(out, g)
	}
	return out, rows.Err()
}

func whereClause(issuerID string, f audit.Filter) (string, []any) {
	conds := []string{"issuer_id = $1"}
	args := []any{issuerID}

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, cond+" $"+strconv.Itoa(len(args)))
	}
	if f.Operation != "" {
		add("operation =", string(f.Operation))
	}
	if f.Status != "" {
		add("status_code =", f.Status)
	}
	if !f.From.IsZero() {
		add("created_at >=", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("created_at <=", f.To.UTC())
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
