package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var _ Store = (*SQLite)(nil)

// SQLite implements Store as rows in a single SQLite table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) an SQLite database at dsn and runs migrations.
// In-memory databases (":memory:" or mode=memory) are limited to a single
// connection so every caller sees the same database.
func NewSQLite(dsn string) (*SQLite, error) {
	const pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if !strings.Contains(dsn, "?") {
		dsn += "?" + pragmas
	} else if !strings.Contains(dsn, "journal_mode") {
		dsn += "&" + pragmas
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key Key) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM cache_entries
		WHERE namespace = ? AND digest = ? AND ext = ?`,
		key.Namespace, key.Digest, key.Ext,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("select cache entry %s: %w", key, err)
	}
	return data, nil
}

// Put inserts the entry; an existing row for key wins.
func (s *SQLite) Put(ctx context.Context, key Key, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO cache_entries (namespace, digest, ext, content_type, data, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.Namespace, key.Digest, key.Ext, mime.TypeByExtension("."+key.Ext),
		data, len(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert cache entry %s: %w", key, err)
	}
	return nil
}

// Count returns the number of entries in namespace.
func (s *SQLite) Count(ctx context.Context, namespace string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries WHERE namespace = ?`, namespace,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
