package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// PostgresStore implements Storage against PostgreSQL via lib/pq.
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore wraps an already opened database handle. The caller is
// responsible for calling InitSchema.
func NewPostgresStore(db *sql.DB, opts ...Option) *PostgresStore {
	return &PostgresStore{sqlStore: newSQLStore(db, postgresDialect{}, opts...)}
}

// OpenPostgresStore connects, pings and initializes the schema.
func OpenPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := NewPostgresStore(db, opts...)
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	s.log.WithField("driver", "postgres").Info("Database connection established and schema initialized.")
	return s, nil
}

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS loans (
			id TEXT PRIMARY KEY,
			account_no TEXT NOT NULL,
			customer_key TEXT NOT NULL DEFAULT '',
			slot_index INTEGER NOT NULL DEFAULT -1,
			sort_order INTEGER NOT NULL DEFAULT 0,
			loan_type TEXT NOT NULL,
			installment_amount NUMERIC NOT NULL DEFAULT 0,
			received_amount NUMERIC NOT NULL DEFAULT 0,
			late_amount NUMERIC NOT NULL DEFAULT 0,
			total_to_be_paid NUMERIC NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			account_no TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			late_amount NUMERIC NOT NULL DEFAULT 0,
			paid_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_account_paid ON payments (account_no, paid_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_loans_account_no ON loans (account_no)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_loans_slot_index ON loans (slot_index) WHERE slot_index >= 1`,
	}
}

// rebind rewrites ? placeholders into $1, $2, ...
func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (postgresDialect) inStrings(column string, values []string) (string, []any) {
	return column + " = ANY(?)", []any{pq.Array(values)}
}

func (postgresDialect) isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
