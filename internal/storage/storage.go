// Package storage persists the small amount of client state that has to
// survive between CLI invocations: tokens, the cached profile and the last
// submission result.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"srq20.org/internal/migrate"
)

// Store is a string key/value store. SetMany and Delete apply all keys or none.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// ErrUnsupportedDSN is returned by Open for DSNs it cannot map to a backend.
var ErrUnsupportedDSN = errors.New("storage: unsupported dsn")

// Open selects a backend from dsn:
//
//	memory:                      process-local map
//	sqlite:/path/state.db, path  SQLite file (modernc.org/sqlite)
//	postgres://..., postgresql://...
//	redis://..., rediss://...
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, fmt.Errorf("%w: empty", ErrUnsupportedDSN)
	case dsn == "memory:" || dsn == "memory":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return openPostgres(ctx, dsn)
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return OpenRedis(ctx, dsn)
	case strings.Contains(dsn, "://") && !strings.HasPrefix(dsn, "sqlite://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDSN, dsn)
	default:
		return openSQLite(ctx, sqlitePath(dsn))
	}
}

func sqlitePath(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	return strings.TrimPrefix(dsn, "sqlite:")
}

func openSQLite(ctx context.Context, path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path missing", ErrUnsupportedDSN)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("storage: create state dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)
	return migrated(ctx, NewSQLStore(db, migrate.SQLite))
}

func openPostgres(ctx context.Context, dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(15 * time.Minute)
	return migrated(ctx, NewSQLStore(db, migrate.Postgres))
}

func migrated(ctx context.Context, s *SQLStore) (Store, error) {
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
