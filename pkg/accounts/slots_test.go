package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loandesk/pkg/apperr"
	"github.com/mcclellann/loandesk/pkg/models"
	"github.com/mcclellann/loandesk/pkg/store"
	"github.com/mcclellann/loandesk/pkg/store/storetest"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoan(accountNo string, index int) *models.Loan {
	now := time.Now()
	return &models.Loan{
		ID:                uuid.New(),
		AccountNo:         accountNo,
		Index:             index,
		LoanType:          models.LoanTypeDaily,
		InstallmentAmount: decimal.NewFromInt(100),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func newSlotManager(t *testing.T, loans ...*models.Loan) (*SlotManager, *storetest.Store) {
	t.Helper()
	s := storetest.New(loans...)
	log, _ := test.NewNullLogger()
	return NewSlotManager(s, log), s
}

func indexOf(t *testing.T, s store.Storage, id uuid.UUID) int {
	t.Helper()
	l, err := s.GetLoan(context.Background(), id)
	require.NoError(t, err)
	return l.Index
}

func TestAssignSlot_Displacement(t *testing.T) {
	a, b := newLoan("1", -1), newLoan("2", -1)
	m, s := newSlotManager(t, a, b)
	ctx := context.Background()

	require.NoError(t, m.AssignSlot(ctx, "1", 5))
	assert.Equal(t, 5, indexOf(t, s, a.ID))

	require.NoError(t, m.AssignSlot(ctx, "2", 5))
	assert.Equal(t, models.UnassignedIndex, indexOf(t, s, a.ID))
	assert.Equal(t, 5, indexOf(t, s, b.ID))
}

func TestAssignSlot_NoSwap(t *testing.T) {
	a, b := newLoan("1", 3), newLoan("2", 5)
	m, s := newSlotManager(t, a, b)

	require.NoError(t, m.AssignSlot(context.Background(), "1", 5))
	assert.Equal(t, 5, indexOf(t, s, a.ID))
	// The evicted loan does not inherit slot 3.
	assert.Equal(t, models.UnassignedIndex, indexOf(t, s, b.ID))

	_, err := s.GetLoanBySlot(context.Background(), 3)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAssignSlot_Validation(t *testing.T) {
	a := newLoan("1", 7)
	m, s := newSlotManager(t, a)
	ctx := context.Background()

	for _, index := range []int{0, 85, -1} {
		err := m.AssignSlot(ctx, "1", index)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "index %d", index)
		assert.Equal(t, 7, indexOf(t, s, a.ID))
	}

	err := m.AssignSlot(ctx, "", 5)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestAssignSlot_NotFound(t *testing.T) {
	a := newLoan("1", 5)
	m, s := newSlotManager(t, a)

	err := m.AssignSlot(context.Background(), "999", 5)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, 5, indexOf(t, s, a.ID))
}

func TestAssignSlot_Idempotent(t *testing.T) {
	a, b := newLoan("1", -1), newLoan("2", 9)
	m, s := newSlotManager(t, a, b)
	ctx := context.Background()

	require.NoError(t, m.AssignSlot(ctx, "1", 5))
	firstA, _ := s.GetLoan(ctx, a.ID)
	firstB, _ := s.GetLoan(ctx, b.ID)

	require.NoError(t, m.AssignSlot(ctx, "1", 5))
	secondA, _ := s.GetLoan(ctx, a.ID)
	secondB, _ := s.GetLoan(ctx, b.ID)

	assert.Equal(t, firstA, secondA)
	assert.Equal(t, firstB, secondB)
	assert.Equal(t, 5, secondA.Index)
}

func TestAssignSlot_RetriesOnConflict(t *testing.T) {
	a, c := newLoan("1", -1), newLoan("3", -1)
	m, s := newSlotManager(t, a, c)
	ctx := context.Background()

	raced := false
	s.OnSetIndex(func(id uuid.UUID, index int) {
		if raced || id != a.ID || index != 5 {
			return
		}
		raced = true
		// A competing writer lands in slot 5 between the occupant read and our write.
		require.NoError(t, s.SetLoanIndex(ctx, c.ID, 5))
	})

	require.NoError(t, m.AssignSlot(ctx, "1", 5))
	assert.True(t, raced)
	assert.Equal(t, 5, indexOf(t, s, a.ID))
	assert.Equal(t, models.UnassignedIndex, indexOf(t, s, c.ID))
}

func TestAssignSlot_ConflictExhausted(t *testing.T) {
	a := newLoan("1", -1)
	m, s := newSlotManager(t, a)
	s.Fail("SetLoanIndex", store.ErrConflict)

	err := m.AssignSlot(context.Background(), "1", 5)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestAssignSlot_TransientFailure(t *testing.T) {
	a := newLoan("1", -1)
	m, s := newSlotManager(t, a)
	s.Fail("GetLoanBySlot", errors.New("i/o timeout"))

	err := m.AssignSlot(context.Background(), "1", 5)
	assert.True(t, apperr.Is(err, apperr.KindTransientStore))
	assert.Equal(t, models.UnassignedIndex, indexOf(t, s, a.ID))
}

func TestAuditSlots(t *testing.T) {
	older := newLoan("1", 5)
	older.UpdatedAt = time.Now().Add(-time.Hour)
	newer := newLoan("2", 5)
	tooHigh := newLoan("3", 99)
	zero := newLoan("4", 0)
	fine := newLoan("5", 12)
	idle := newLoan("6", -1)
	m, s := newSlotManager(t, older, newer, tooHigh, zero, fine, idle)

	report, err := m.AuditSlots(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 2, report.OutOfRange)
	assert.Equal(t, 1, report.Duplicates)
	assert.ElementsMatch(t, []string{"1", "3", "4"}, report.Evicted)

	assert.Equal(t, 5, indexOf(t, s, newer.ID))
	assert.Equal(t, 12, indexOf(t, s, fine.ID))
	assert.Equal(t, models.UnassignedIndex, indexOf(t, s, older.ID))
	assert.Equal(t, models.UnassignedIndex, indexOf(t, s, tooHigh.ID))
	assert.Equal(t, models.UnassignedIndex, indexOf(t, s, zero.ID))
}
