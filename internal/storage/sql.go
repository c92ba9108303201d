package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"srq20.org/internal/migrate"
)

//go:embed migrations
var migrations embed.FS

// SQLStore keeps client state in a single client_state table.
type SQLStore struct {
	db      *sql.DB
	dialect migrate.Dialect
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database. Call Migrate before first use.
func NewSQLStore(db *sql.DB, dialect migrate.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

// Migrations returns the manager for the store's embedded schema.
func (s *SQLStore) Migrations() *migrate.Manager {
	return migrate.NewManager(s.db, migrations, "migrations/"+s.dialect.Name, s.dialect,
		migrate.WithMigrationsTable("client_state_migrations"))
}

// Migrate applies the embedded schema for the store's dialect.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := s.Migrations().Up(ctx); err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`select value from client_state where name = %s`, s.dialect.Placeholder(1))
	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

func (s *SQLStore) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	p := s.dialect.Placeholder
	query := fmt.Sprintf(`insert into client_state(name, value, updated_at) values (%s, %s, %s)
		on conflict(name) do update set value = excluded.value, updated_at = excluded.updated_at`,
		p(1), p(2), p(3))

	now := s.now()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, key := range sortedKeys(values) {
			if _, err := tx.ExecContext(ctx, query, key, values[key], now); err != nil {
				return fmt.Errorf("storage: set %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query := fmt.Sprintf(`delete from client_state where name = %s`, s.dialect.Placeholder(1))
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, query, key); err != nil {
				return fmt.Errorf("storage: delete %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
