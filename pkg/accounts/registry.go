package accounts

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loandesk/pkg/apperr"
	"github.com/mcclellann/loandesk/pkg/models"
	"github.com/mcclellann/loandesk/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxOpenAttempts = 5

// OpenAccountRequest carries the caller-supplied fields of a new loan.
type OpenAccountRequest struct {
	CustomerKey       string          `json:"customerKey"`
	LoanType          models.LoanType `json:"loanType"`
	InstallmentAmount decimal.Decimal `json:"installmentAmount"`
	ReceivedAmount    decimal.Decimal `json:"receivedAmount"`
	LateAmount        decimal.Decimal `json:"lateAmount"`
	TotalToBePaid     decimal.Decimal `json:"totalToBePaid"`
}

func (r OpenAccountRequest) validate() error {
	if !r.LoanType.Valid() {
		return apperr.Validation("loanType must be one of daily, monthly, pending")
	}
	amounts := []struct {
		name  string
		value decimal.Decimal
	}{
		{"installmentAmount", r.InstallmentAmount},
		{"receivedAmount", r.ReceivedAmount},
		{"lateAmount", r.LateAmount},
		{"totalToBePaid", r.TotalToBePaid},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			return apperr.Validation("%s must not be negative", a.name)
		}
	}
	if r.LoanType == models.LoanTypePending && !r.TotalToBePaid.IsPositive() {
		return apperr.Validation("totalToBePaid is required for pending loans")
	}
	return nil
}

// Registry opens, lists and closes loan accounts.
type Registry struct {
	storage   store.Storage
	allocator *Allocator
	log       logrus.FieldLogger
}

func NewRegistry(s store.Storage, log logrus.FieldLogger) *Registry {
	return &Registry{storage: s, allocator: NewAllocator(s, log), log: log}
}

// OpenAccount creates a loan under a freshly allocated account number. When a
// concurrent opener takes the same number first, a new number is allocated.
func (r *Registry) OpenAccount(ctx context.Context, req OpenAccountRequest) (*models.Loan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxOpenAttempts; attempt++ {
		accountNo, err := r.allocator.NextAccountNumber(ctx)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		loan := &models.Loan{
			ID:                uuid.New(),
			AccountNo:         accountNo,
			CustomerKey:       req.CustomerKey,
			Index:             models.UnassignedIndex,
			Order:             0,
			LoanType:          req.LoanType,
			InstallmentAmount: req.InstallmentAmount,
			ReceivedAmount:    req.ReceivedAmount,
			LateAmount:        req.LateAmount,
			TotalToBePaid:     req.TotalToBePaid,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		err = r.storage.CreateLoan(ctx, loan)
		if err == nil {
			r.log.WithFields(logrus.Fields{"accountNo": accountNo, "loanType": loan.LoanType}).Info("account opened")
			return loan, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, store.AppError(err, "new loan")
		}
		lastErr = err
		r.log.WithFields(logrus.Fields{"accountNo": accountNo, "attempt": attempt}).Warn("account number taken concurrently, reallocating")
	}
	return nil, apperr.Conflict(lastErr, "could not allocate a unique account number")
}

// GetLoan retrieves a loan by its ID.
func (r *Registry) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := r.storage.GetLoan(ctx, id)
	if err != nil {
		return nil, store.AppError(err, "loan %s", id)
	}
	return loan, nil
}

// ListLoans returns all loans by order, then numeric account number.
func (r *Registry) ListLoans(ctx context.Context) ([]*models.Loan, error) {
	loans, err := r.storage.GetAllLoans(ctx)
	if err != nil {
		return nil, store.AppError(err, "loans")
	}
	slices.SortStableFunc(loans, func(a, b *models.Loan) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return compareAccountNo(a.AccountNo, b.AccountNo)
	})
	return loans, nil
}

// DeleteLoan removes a loan together with its payments.
func (r *Registry) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	if err := r.storage.DeleteLoan(ctx, id); err != nil {
		return store.AppError(err, "loan %s", id)
	}
	r.log.WithField("loanId", id).Info("loan deleted")
	return nil
}

func compareAccountNo(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return cmp.Compare(a, b)
}
