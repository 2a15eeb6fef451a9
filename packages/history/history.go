// Package history records hitwire exchanges in a SQLite database so earlier
// requests can be listed and compared.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/webclient"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	method      TEXT NOT NULL,
	url         TEXT NOT NULL,
	status      INTEGER NOT NULL,
	duration_us INTEGER NOT NULL,
	reused      INTEGER NOT NULL,
	body_bytes  INTEGER NOT NULL,
	headers     TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS exchanges_started_at ON exchanges (started_at);
`

// Entry is one recorded exchange
type Entry struct {
	ID        string            `json:"id"`
	StartedAt time.Time         `json:"startedAt"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Status    int               `json:"status"`
	Duration  time.Duration     `json:"duration"`
	Reused    bool              `json:"reused"`
	BodyBytes int               `json:"bodyBytes"`
	Headers   map[string]string `json:"headers,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Store is a history database
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens or creates the history database at path. A "sqlite://" or
// "sqlite:" prefix is accepted.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite:")
	if path == "" {
		return nil, fmt.Errorf("history database path is empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}

	return &Store{db: db, queryTimeout: 30 * time.Second}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NewEntry builds an entry from a finished exchange. res may be nil when
// the request failed before a response arrived.
func NewEntry(method, url string, started time.Time, res *webclient.Result, err error) *Entry {
	e := &Entry{
		ID:        uuid.NewString(),
		StartedAt: started.UTC(),
		Method:    method,
		URL:       url,
	}
	if res != nil {
		e.Status = res.StatusCode
		e.Duration = res.Duration
		e.Reused = res.Reused
		e.BodyBytes = len(res.Body)
		e.Headers = res.Headers
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Record stores an entry
func (s *Store) Record(ctx context.Context, e *Entry) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	headers, err := json.Marshal(e.Headers)
	if err != nil {
		return fmt.Errorf("encoding headers: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exchanges (id, started_at, method, url, status, duration_us, reused, body_bytes, headers, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StartedAt, e.Method, e.URL, e.Status, e.Duration.Microseconds(),
		e.Reused, e.BodyBytes, string(headers), e.Error)
	if err != nil {
		return fmt.Errorf("recording exchange: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := `SELECT id, started_at, method, url, status, duration_us, reused, body_bytes, headers, error
		FROM exchanges ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		var (
			e          Entry
			durationUs int64
			headers    string
		)
		if err := rows.Scan(&e.ID, &e.StartedAt, &e.Method, &e.URL, &e.Status,
			&durationUs, &e.Reused, &e.BodyBytes, &headers, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.Duration = time.Duration(durationUs) * time.Microsecond
		if headers != "" && headers != "null" {
			if err := json.Unmarshal([]byte(headers), &e.Headers); err != nil {
				return nil, fmt.Errorf("decoding headers of %s: %w", e.ID, err)
			}
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// Stats summarizes the recorded exchanges
type Stats struct {
	Total  int64 `json:"total"`
	Reused int64 `json:"reused"`
	Failed int64 `json:"failed"`
}

// Stats returns aggregate counts over every recorded exchange
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(reused), 0),
			COALESCE(SUM(CASE WHEN error != '' OR status >= 400 THEN 1 ELSE 0 END), 0)
		 FROM exchanges`).Scan(&st.Total, &st.Reused, &st.Failed)
	if err != nil {
		return st, fmt.Errorf("query failed: %w", err)
	}
	return st, nil
}
