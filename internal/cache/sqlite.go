package cache

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/catalogai/doc-analyzer/internal/fault"
)

// Schema for the results table. Applied on open.
const schema = `
CREATE TABLE IF NOT EXISTS results (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_expiry ON results(expires_at);
`

// SQLite is a Store backed by a single-file database. Expired rows are
// ignored on read and purged opportunistically on write.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
	log *slog.Logger
}

// OpenSQLite opens (or creates) the database at path. A ttl of zero
// produces a store whose Set is a no-op.
func OpenSQLite(path string, ttl time.Duration, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fault.Wrap(fault.KindFileUnreadable, err, "cache: open database")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fault.Wrap(fault.KindFileUnreadable, err, "cache: apply schema")
	}
	return &SQLite{db: db, ttl: ttl, log: logger}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.ttl <= 0 {
		return nil, false, nil
	}
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM results WHERE key = ? AND expires_at > ?`,
		key, now().Unix(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	if s.ttl <= 0 {
		return nil
	}
	expires := now().Add(s.ttl).Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires,
	)
	if err != nil {
		return err
	}
	s.purgeExpired(ctx)
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE key = ?`, key)
	return err
}

func (s *SQLite) purgeExpired(ctx context.Context) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE expires_at <= ?`, now().Unix())
	if err != nil {
		s.log.Warn("cache.purge_failed", "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debug("cache.purged", "rows", n)
	}
}

func (s *SQLite) Close() error { return s.db.Close() }

var _ Store = (*SQLite)(nil)
