package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// #region dialect
type dialect struct {
	name   string
	schema []string
}

var (
	sqliteDialect = dialect{
		name: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS audit_events (
				seq            INTEGER PRIMARY KEY AUTOINCREMENT,
				id             TEXT NOT NULL UNIQUE,
				correlation_id TEXT NOT NULL,
				event_type     TEXT NOT NULL,
				data_json      TEXT,
				created_at     TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_events_correlation ON audit_events (correlation_id)`,
		},
	}
	postgresDialect = dialect{
		name: "postgres",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS audit_events (
				seq            BIGSERIAL PRIMARY KEY,
				id             TEXT NOT NULL UNIQUE,
				correlation_id TEXT NOT NULL,
				event_type     TEXT NOT NULL,
				data_json      TEXT,
				created_at     TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_events_correlation ON audit_events (correlation_id)`,
		},
	}
)

// bind rewrites '?' placeholders to $n for Postgres.
func (d dialect) bind(query string) string {
	if d.name != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// #endregion dialect

// #region sql-sink
// SQLSink stores events in an audit_events table on SQLite or Postgres.
type SQLSink struct {
	db      *sql.DB
	dialect dialect
	mu      sync.RWMutex
	closed  bool
}

// NewSQLiteSink opens (or creates) the SQLite database at path. ":memory:"
// is accepted; the pool is pinned to one connection so it stays one database.
func NewSQLiteSink(path string) (*SQLSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLSink(context.Background(), db, sqliteDialect)
}

// NewPostgresSink connects through the pgx driver and creates the table if
// needed.
func NewPostgresSink(ctx context.Context, dsn string) (*SQLSink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	return newSQLSink(ctx, db, postgresDialect)
}

func newSQLSink(ctx context.Context, db *sql.DB, d dialect) (*SQLSink, error) {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create audit schema: %w", err)
		}
	}
	return &SQLSink{db: db, dialect: d}, nil
}

func (s *SQLSink) Append(ctx context.Context, e Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	var data string
	if len(e.Data) > 0 {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("encode audit data: %w", err)
		}
		data = string(raw)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.dialect.bind(
		`INSERT INTO audit_events (id, correlation_id, event_type, data_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`),
		e.ID,
		e.CorrelationID,
		string(e.Type),
		nullIfEmpty(data),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", mapError(err))
	}
	return nil
}

func (s *SQLSink) Query(ctx context.Context, correlationID string) ([]Event, error) {
	return s.query(ctx, `SELECT id, correlation_id, event_type, data_json, created_at
		FROM audit_events WHERE correlation_id = ? ORDER BY seq`, correlationID)
}

func (s *SQLSink) List(ctx context.Context, f Filter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	q := `SELECT id, correlation_id, event_type, data_json, created_at FROM audit_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq"
	events, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return tail(events, f.Limit), nil
}

func (s *SQLSink) query(ctx context.Context, q string, args ...any) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSinkClosed
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.bind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			typ     string
			data    sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.CorrelationID, &typ, &data, &created); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = Type(typ)
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &e.Data); err != nil {
				return nil, fmt.Errorf("decode audit data for %s: %w", e.ID, err)
			}
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse audit timestamp for %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DB exposes the underlying pool for inspection tools.
func (s *SQLSink) DB() *sql.DB { return s.db }

func (s *SQLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// #endregion sql-sink

// #region helpers
const pgUniqueViolation = "23505"

// mapError translates unique violations on either engine to ErrDuplicateEvent.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %v", ErrDuplicateEvent, err)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrDuplicateEvent, err)
	}
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
