package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loandesk/pkg/models"
	"github.com/sirupsen/logrus"
)

// dialect isolates the few places where SQLite and Postgres differ.
type dialect interface {
	name() string
	schema() []string
	rebind(query string) string
	inStrings(column string, values []string) (string, []any)
	isUniqueViolation(err error) bool
}

// Option configures a store at construction time.
type Option func(*sqlStore)

// WithLogger routes store diagnostics to the given logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *sqlStore) {
		s.log = log
	}
}

// sqlStore implements Storage on top of database/sql for any dialect.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logrus.FieldLogger
}

func newSQLStore(db *sql.DB, d dialect, opts ...Option) *sqlStore {
	s := &sqlStore{db: db, d: d, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitSchema creates tables first, then plain indexes, then unique indexes.
// A unique index that cannot be built (legacy duplicates) is logged and skipped
// so the slot audit can repair the data.
func (s *sqlStore) InitSchema(ctx context.Context) error {
	for _, stmt := range s.d.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if s.d.isUniqueViolation(err) {
				s.log.WithError(err).WithField("driver", s.d.name()).Warn("unique index not created, existing rows conflict")
				continue
			}
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

const loanColumns = `id, account_no, customer_key, slot_index, sort_order, loan_type, installment_amount, received_amount, late_amount, total_to_be_paid, created_at, updated_at`

const paymentColumns = `id, account_no, amount, late_amount, paid_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var loanType string
	err := row.Scan(&loan.ID, &loan.AccountNo, &loan.CustomerKey, &loan.Index, &loan.Order, &loanType,
		&loan.InstallmentAmount, &loan.ReceivedAmount, &loan.LateAmount, &loan.TotalToBePaid,
		&loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	loan.LoanType = models.LoanType(loanType)
	return &loan, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	if err := row.Scan(&p.ID, &p.AccountNo, &p.Amount, &p.LateAmount, &p.Date, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *sqlStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.db.ExecContext(ctx, s.d.rebind(
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		loan.ID, loan.AccountNo, loan.CustomerKey, loan.Index, loan.Order, string(loan.LoanType),
		loan.InstallmentAmount, loan.ReceivedAmount, loan.LateAmount, loan.TotalToBePaid,
		loan.CreatedAt.UTC(), loan.UpdatedAt.UTC(),
	)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return fmt.Errorf("account number %s already in use: %w", loan.AccountNo, ErrConflict)
		}
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (s *sqlStore) getLoanWhere(ctx context.Context, where string, arg any) (*models.Loan, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+loanColumns+` FROM loans WHERE `+where), arg)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (s *sqlStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return s.getLoanWhere(ctx, `id = ?`, id)
}

func (s *sqlStore) GetLoanByAccountNo(ctx context.Context, accountNo string) (*models.Loan, error) {
	return s.getLoanWhere(ctx, `account_no = ?`, accountNo)
}

// GetLoanBySlot returns the occupant of a slot. Should legacy data hold
// duplicates, the most recently updated occupant wins.
func (s *sqlStore) GetLoanBySlot(ctx context.Context, index int) (*models.Loan, error) {
	return s.getLoanWhere(ctx, `slot_index = ? ORDER BY updated_at DESC LIMIT 1`, index)
}

func (s *sqlStore) queryLoans(ctx context.Context, query string, args ...any) ([]*models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func (s *sqlStore) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	return s.queryLoans(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY sort_order ASC, created_at ASC`)
}

// GetSlottedLoans returns every loan whose index is not the unassigned marker,
// including out-of-range values written outside the engine.
func (s *sqlStore) GetSlottedLoans(ctx context.Context) ([]*models.Loan, error) {
	return s.queryLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE slot_index <> ? ORDER BY slot_index ASC, updated_at DESC`, models.UnassignedIndex)
}

func (s *sqlStore) ListAccountNumbers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account_no FROM loans`)
	if err != nil {
		return nil, fmt.Errorf("failed to list account numbers: %w", err)
	}
	defer rows.Close()

	var accountNos []string
	for rows.Next() {
		var accountNo string
		if err := rows.Scan(&accountNo); err != nil {
			return nil, fmt.Errorf("failed to scan account number: %w", err)
		}
		accountNos = append(accountNos, accountNo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return accountNos, nil
}

// DeleteLoan removes a loan and its payments within a transaction.
func (s *sqlStore) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var accountNo string
	err = tx.QueryRowContext(ctx, s.d.rebind(`SELECT account_no FROM loans WHERE id = ?`), id).Scan(&accountNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to look up loan: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM payments WHERE account_no = ?`), accountNo); err != nil {
		return fmt.Errorf("failed to delete associated payments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM loans WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}

	return tx.Commit()
}

func (s *sqlStore) SetLoanIndex(ctx context.Context, id uuid.UUID, index int) error {
	result, err := s.db.ExecContext(ctx, s.d.rebind(`UPDATE loans SET slot_index = ?, updated_at = ? WHERE id = ?`),
		index, time.Now().UTC(), id)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return fmt.Errorf("slot %d already occupied: %w", index, ErrConflict)
		}
		return fmt.Errorf("failed to update loan index: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLoanOrder updates the sort key and reports how many rows matched.
func (s *sqlStore) SetLoanOrder(ctx context.Context, id uuid.UUID, order int) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.d.rebind(`UPDATE loans SET sort_order = ?, updated_at = ? WHERE id = ?`),
		order, time.Now().UTC(), id)
	if err != nil {
		return 0, fmt.Errorf("failed to update loan order: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected, nil
}

func (s *sqlStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := s.db.ExecContext(ctx, s.d.rebind(
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		payment.ID, payment.AccountNo, payment.Amount, payment.LateAmount,
		payment.Date.UTC(), payment.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// ListPayments returns matching payments ordered by account, then newest first.
func (s *sqlStore) ListPayments(ctx context.Context, filter PaymentFilter) ([]*models.Payment, error) {
	if len(filter.AccountNos) == 0 {
		return nil, nil
	}

	in, args := s.d.inStrings("account_no", filter.AccountNos)
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + in
	if filter.Start != nil {
		query += ` AND paid_at >= ?`
		args = append(args, filter.Start.UTC())
	}
	if filter.End != nil {
		query += ` AND paid_at <= ?`
		args = append(args, filter.End.UTC())
	}
	query += ` ORDER BY account_no ASC, paid_at DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payments: %w", err)
	}
	return payments, nil
}

func (s *sqlStore) DeletePaymentsForAccount(ctx context.Context, accountNo string) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM payments WHERE account_no = ?`), accountNo)
	if err != nil {
		return 0, fmt.Errorf("failed to delete payments for account %s: %w", accountNo, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}
