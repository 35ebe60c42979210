// Package storetest provides an in-memory Storage whose methods can be made
// to fail on demand.
package storetest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mcclellann/loandesk/pkg/models"
	"github.com/mcclellann/loandesk/pkg/store"
)

var _ store.Storage = (*Store)(nil)

// Store wraps a MemoryStore with per-method and per-loan failures.
type Store struct {
	*store.MemoryStore

	mu          sync.Mutex
	errs        map[string]error
	orderErrs   map[uuid.UUID]error
	beforeIndex func(id uuid.UUID, index int)
}

func New(loans ...*models.Loan) *Store {
	s := &Store{
		MemoryStore: store.NewMemoryStore(),
		errs:        make(map[string]error),
		orderErrs:   make(map[uuid.UUID]error),
	}
	s.Seed(loans...)
	return s
}

// Fail makes every call to the named Storage method return err.
func (s *Store) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[method] = err
}

// Recover undoes Fail.
func (s *Store) Recover(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errs, method)
}

// FailOrderFor makes SetLoanOrder fail for one loan only.
func (s *Store) FailOrderFor(id uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderErrs[id] = err
}

// OnSetIndex runs fn before each SetLoanIndex reaches the store, so a test
// can slip a competing write in between a read and the write.
func (s *Store) OnSetIndex(fn func(id uuid.UUID, index int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeIndex = fn
}

func (s *Store) err(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[method]
}

func (s *Store) CreateLoan(ctx context.Context, loan *models.Loan) error {
	if err := s.err("CreateLoan"); err != nil {
		return err
	}
	return s.MemoryStore.CreateLoan(ctx, loan)
}

func (s *Store) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	if err := s.err("GetLoan"); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetLoan(ctx, id)
}

func (s *Store) GetLoanByAccountNo(ctx context.Context, accountNo string) (*models.Loan, error) {
	if err := s.err("GetLoanByAccountNo"); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetLoanByAccountNo(ctx, accountNo)
}

func (s *Store) GetLoanBySlot(ctx context.Context, index int) (*models.Loan, error) {
	if err := s.err("GetLoanBySlot"); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetLoanBySlot(ctx, index)
}

func (s *Store) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	if err := s.err("GetAllLoans"); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetAllLoans(ctx)
}

func (s *Store) GetSlottedLoans(ctx context.Context) ([]*models.Loan, error) {
	if err := s.err("GetSlottedLoans"); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetSlottedLoans(ctx)
}

func (s *Store) ListAccountNumbers(ctx context.Context) ([]string, error) {
	if err := s.err("ListAccountNumbers"); err != nil {
		return nil, err
	}
	return s.MemoryStore.ListAccountNumbers(ctx)
}

func (s *Store) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	if err := s.err("DeleteLoan"); err != nil {
		return err
	}
	return s.MemoryStore.DeleteLoan(ctx, id)
}

func (s *Store) SetLoanIndex(ctx context.Context, id uuid.UUID, index int) error {
	s.mu.Lock()
	before := s.beforeIndex
	s.mu.Unlock()
	if before != nil {
		before(id, index)
	}
	if err := s.err("SetLoanIndex"); err != nil {
		return err
	}
	return s.MemoryStore.SetLoanIndex(ctx, id, index)
}

func (s *Store) SetLoanOrder(ctx context.Context, id uuid.UUID, order int) (int64, error) {
	if err := s.err("SetLoanOrder"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	err := s.orderErrs[id]
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.MemoryStore.SetLoanOrder(ctx, id, order)
}

func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if err := s.err("CreatePayment"); err != nil {
		return err
	}
	return s.MemoryStore.CreatePayment(ctx, payment)
}

func (s *Store) ListPayments(ctx context.Context, filter store.PaymentFilter) ([]*models.Payment, error) {
	if err := s.err("ListPayments"); err != nil {
		return nil, err
	}
	return s.MemoryStore.ListPayments(ctx, filter)
}

func (s *Store) DeletePaymentsForAccount(ctx context.Context, accountNo string) (int64, error) {
	if err := s.err("DeletePaymentsForAccount"); err != nil {
		return 0, err
	}
	return s.MemoryStore.DeletePaymentsForAccount(ctx, accountNo)
}
