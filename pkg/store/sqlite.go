package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens the database file and initializes the schema.
func NewSQLiteStore(dataSourceName string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// One connection keeps pragmas in effect and serializes writers, so
	// concurrent updates queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{sqlStore: newSQLStore(db, sqliteDialect{}, opts...)}
	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	s.log.WithField("driver", "sqlite3").Info("Database connection established and schema initialized.")
	return s, nil
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite3" }

// Decimal fields are stored as TEXT so no precision is lost.
func (sqliteDialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS loans (
			id TEXT PRIMARY KEY,
			account_no TEXT NOT NULL,
			customer_key TEXT NOT NULL DEFAULT '',
			slot_index INTEGER NOT NULL DEFAULT -1,
			sort_order INTEGER NOT NULL DEFAULT 0,
			loan_type TEXT NOT NULL,
			installment_amount TEXT NOT NULL DEFAULT '0',
			received_amount TEXT NOT NULL DEFAULT '0',
			late_amount TEXT NOT NULL DEFAULT '0',
			total_to_be_paid TEXT NOT NULL DEFAULT '0',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			account_no TEXT NOT NULL,
			amount TEXT NOT NULL,
			late_amount TEXT NOT NULL DEFAULT '0',
			paid_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_account_paid ON payments (account_no, paid_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_loans_account_no ON loans (account_no)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_loans_slot_index ON loans (slot_index) WHERE slot_index >= 1`,
	}
}

func (sqliteDialect) rebind(query string) string { return query }

func (sqliteDialect) inStrings(column string, values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")), args
}

func (sqliteDialect) isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
