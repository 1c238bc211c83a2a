// Package store implements the single-file embedded relational store that
// owns all durability for the platform: fixtures, odds, scores, bets, price
// history, positions, portfolio snapshots, model versions, ingestion
// metadata, and run history. All other components treat it as the sole
// source of truth.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// BackupFunc is the backup collaborator invoked before destructive
// operations. It returns the path of the created backup.
type BackupFunc func(label string) (string, error)

// Store wraps the sqlite database behind a migration-aware handle.
type Store struct {
	db       *sqlx.DB
	path     string
	log      *logrus.Logger
	backupFn BackupFunc
}

// Open opens (or creates) the database file, applies connection pragmas, and
// runs the migration ladder to the current schema version.
func Open(path string, log *logrus.Logger) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// One connection: sqlite serialises writers anyway, and a single
	// connection keeps transaction scopes predictable across goroutines.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// SetBackupFunc installs the backup collaborator used by destructive
// operations. Without one, resets refuse to run.
func (s *Store) SetBackupFunc(fn BackupFunc) {
	s.backupFn = fn
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a transaction. On error the transaction rolls back and
// the error is returned; otherwise it commits.
func (s *Store) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// All timestamps are persisted as RFC3339 UTC strings so that typed
// comparisons and lexicographic comparisons agree.

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	t, _ := time.Parse("2006-01-02", s)
	return t.UTC()
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
