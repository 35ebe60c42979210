package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loandesk/pkg/models"
)

var (
	// ErrNotFound is returned when a lookup or targeted update matches nothing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a unique constraint.
	ErrConflict = errors.New("unique constraint violated")
)

// PaymentFilter selects payments for History. Nil bounds are open-ended.
type PaymentFilter struct {
	AccountNos []string
	Start      *time.Time
	End        *time.Time
}

// Storage defines the interface for database operations related to loans and payments.
type Storage interface {
	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	GetLoanByAccountNo(ctx context.Context, accountNo string) (*models.Loan, error)
	GetLoanBySlot(ctx context.Context, index int) (*models.Loan, error)
	GetAllLoans(ctx context.Context) ([]*models.Loan, error)
	GetSlottedLoans(ctx context.Context) ([]*models.Loan, error)
	ListAccountNumbers(ctx context.Context) ([]string, error)
	DeleteLoan(ctx context.Context, id uuid.UUID) error

	SetLoanIndex(ctx context.Context, id uuid.UUID, index int) error
	SetLoanOrder(ctx context.Context, id uuid.UUID, order int) (int64, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	ListPayments(ctx context.Context, filter PaymentFilter) ([]*models.Payment, error)
	DeletePaymentsForAccount(ctx context.Context, accountNo string) (int64, error)

	Close() error
}
