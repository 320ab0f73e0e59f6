// Package sqlite provides a SQLite-backed durable medium.
//
// Every key lives in a single table:
//
//	kv(key TEXT PRIMARY KEY, value TEXT NOT NULL)
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - _txlock=immediate: conditional writes take the write lock up front
//
// SQLITE_FULL and the optional byte capacity both surface as
// medium.ErrQuotaExceeded.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/initiative/internal/medium"
)

// Schema version tracking:
// 0 - no schema
// 1 - kv table
const currentSchemaVersion = 1

// Medium stores keys in a SQLite database file.
type Medium struct {
	db       *sql.DB
	capacity int64
}

// Compile-time contract assertions.
var (
	_ medium.Medium  = (*Medium)(nil)
	_ medium.Swapper = (*Medium)(nil)
)

// Option configures a Medium.
type Option func(*Medium)

// WithCapacity bounds the total bytes of keys plus values.
// Zero or negative means unbounded.
func WithCapacity(bytes int64) Option {
	return func(m *Medium) {
		m.capacity = bytes
	}
}

// Open creates or opens a SQLite medium at path. ":memory:" is accepted
// for throwaway databases.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Medium, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	m := &Medium{db: db}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func dsn(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_txlock=immediate"
}

// Close closes the database connection.
func (m *Medium) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (m *Medium) DB() *sql.DB {
	return m.db
}

// Get implements medium.Medium.
func (m *Medium) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, true, nil
}

// Set implements medium.Medium.
func (m *Medium) Set(ctx context.Context, key, val string) (retErr error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set %q: begin: %w", key, classify(err))
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if err := m.write(ctx, tx, key, val); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set %q: commit: %w", key, classify(err))
	}
	return nil
}

// CompareAndSwap implements medium.Swapper.
func (m *Medium) CompareAndSwap(ctx context.Context, key, old string, oldExists bool, val string) (swapped bool, retErr error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("swap %q: begin: %w", key, classify(err))
	}
	defer func() {
		if retErr != nil || !swapped {
			_ = tx.Rollback()
		}
	}()

	var cur string
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&cur)
	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return false, fmt.Errorf("swap %q: read: %w", key, err)
	}
	if exists != oldExists || (exists && cur != old) {
		return false, nil
	}

	if err := m.write(ctx, tx, key, val); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("swap %q: commit: %w", key, classify(err))
	}
	return true, nil
}

// write upserts key inside tx after checking the configured capacity.
func (m *Medium) write(ctx context.Context, tx *sql.Tx, key, val string) error {
	if m.capacity > 0 {
		var used int64
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0) FROM kv WHERE key != ?`,
			key,
		).Scan(&used)
		if err != nil {
			return fmt.Errorf("set %q: measure: %w", key, err)
		}
		if used+int64(len(key)+len(val)) > m.capacity {
			return fmt.Errorf("set %q (%d bytes, %d/%d used): %w", key, len(val), used, m.capacity, medium.ErrQuotaExceeded)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, val)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, classify(err))
	}
	return nil
}

// Remove implements medium.Medium.
func (m *Medium) Remove(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, classify(err))
	}
	return nil
}

// Keys implements medium.Medium.
func (m *Medium) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT key FROM kv
		WHERE substr(key, 1, length(?1)) = ?1
		ORDER BY key ASC
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("keys %q: scan: %w", prefix, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, err)
	}
	return keys, nil
}

// classify maps SQLite capacity errors onto medium.ErrQuotaExceeded.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrFull {
		return fmt.Errorf("%w: %v", medium.ErrQuotaExceeded, err)
	}
	return err
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates the kv table and records the schema version.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.Exec(`
			CREATE TABLE IF NOT EXISTS kv (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)
		`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (m *Medium) verifyPragma(name, expected string) error {
	var value string
	if err := m.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
