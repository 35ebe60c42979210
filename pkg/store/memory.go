package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loandesk/pkg/models"
)

// MemoryStore is an in-process Storage with the same uniqueness rules as the
// SQL stores. It backs the "memory" driver.
type MemoryStore struct {
	mu       sync.Mutex
	loans    map[uuid.UUID]*models.Loan
	payments []*models.Payment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans: make(map[uuid.UUID]*models.Loan),
	}
}

// Seed inserts loans without checking constraints, to model legacy data.
func (m *MemoryStore) Seed(loans ...*models.Loan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range loans {
		c := *l
		m.loans[l.ID] = &c
	}
}

func (m *MemoryStore) CreateLoan(_ context.Context, loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.AccountNo == loan.AccountNo || l.ID == loan.ID {
			return ErrConflict
		}
	}
	c := *loan
	m.loans[loan.ID] = &c
	return nil
}

func (m *MemoryStore) GetLoan(_ context.Context, id uuid.UUID) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *l
	return &c, nil
}

func (m *MemoryStore) GetLoanByAccountNo(_ context.Context, accountNo string) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.AccountNo == accountNo {
			c := *l
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetLoanBySlot(_ context.Context, index int) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Loan
	for _, l := range m.loans {
		if l.Index == index && (found == nil || l.UpdatedAt.After(found.UpdatedAt)) {
			found = l
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	c := *found
	return &c, nil
}

func (m *MemoryStore) snapshot(keep func(*models.Loan) bool) []*models.Loan {
	var loans []*models.Loan
	for _, l := range m.loans {
		if keep(l) {
			c := *l
			loans = append(loans, &c)
		}
	}
	return loans
}

func (m *MemoryStore) GetAllLoans(_ context.Context) ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loans := m.snapshot(func(*models.Loan) bool { return true })
	slices.SortFunc(loans, func(a, b *models.Loan) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return loans, nil
}

func (m *MemoryStore) GetSlottedLoans(_ context.Context) ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loans := m.snapshot(func(l *models.Loan) bool { return l.Index != models.UnassignedIndex })
	slices.SortFunc(loans, func(a, b *models.Loan) int {
		if c := cmp.Compare(a.Index, b.Index); c != 0 {
			return c
		}
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return loans, nil
}

func (m *MemoryStore) ListAccountNumbers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	accountNos := make([]string, 0, len(m.loans))
	for _, l := range m.loans {
		accountNos = append(accountNos, l.AccountNo)
	}
	return accountNos, nil
}

func (m *MemoryStore) DeleteLoan(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return ErrNotFound
	}
	m.payments = slices.DeleteFunc(m.payments, func(p *models.Payment) bool { return p.AccountNo == l.AccountNo })
	delete(m.loans, id)
	return nil
}

func (m *MemoryStore) SetLoanIndex(_ context.Context, id uuid.UUID, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return ErrNotFound
	}
	if index >= models.MinSlotIndex {
		for _, other := range m.loans {
			if other.ID != id && other.Index == index {
				return ErrConflict
			}
		}
	}
	l.Index = index
	l.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetLoanOrder(_ context.Context, id uuid.UUID, order int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return 0, nil
	}
	l.Order = order
	l.UpdatedAt = time.Now()
	return 1, nil
}

func (m *MemoryStore) CreatePayment(_ context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *payment
	m.payments = append(m.payments, &c)
	return nil
}

func (m *MemoryStore) ListPayments(_ context.Context, filter PaymentFilter) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var payments []*models.Payment
	for _, p := range m.payments {
		if !slices.Contains(filter.AccountNos, p.AccountNo) {
			continue
		}
		if filter.Start != nil && p.Date.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && p.Date.After(*filter.End) {
			continue
		}
		c := *p
		payments = append(payments, &c)
	}
	slices.SortStableFunc(payments, func(a, b *models.Payment) int {
		if c := cmp.Compare(a.AccountNo, b.AccountNo); c != 0 {
			return c
		}
		return b.Date.Compare(a.Date)
	})
	return payments, nil
}

func (m *MemoryStore) DeletePaymentsForAccount(_ context.Context, accountNo string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.payments)
	m.payments = slices.DeleteFunc(m.payments, func(p *models.Payment) bool { return p.AccountNo == accountNo })
	return int64(before - len(m.payments)), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
