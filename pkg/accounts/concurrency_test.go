package accounts

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/mcclellann/loandesk/pkg/apperr"
	"github.com/mcclellann/loandesk/pkg/models"
	"github.com/mcclellann/loandesk/pkg/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStorage(t *testing.T) *store.SQLiteStore {
	t.Helper()
	log, _ := test.NewNullLogger()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "accounts.db"), store.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAccount_ConcurrentOpenersGetDistinctNumbers(t *testing.T) {
	s := newSQLiteStorage(t)
	log, _ := test.NewNullLogger()
	r := NewRegistry(s, log)
	ctx := context.Background()

	const openers = 10
	loans := make([]*models.Loan, openers)
	errs := make([]error, openers)

	var wg sync.WaitGroup
	for i := 0; i < openers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			loans[i], errs[i] = r.OpenAccount(ctx, monthlyRequest())
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, err := range errs {
		if err != nil {
			// Only exhausting the reallocation attempts is acceptable.
			assert.True(t, apperr.Is(err, apperr.KindConflict), "opener %d: %v", i, err)
			continue
		}
		no := loans[i].AccountNo
		assert.False(t, seen[no], "account number %s handed out twice", no)
		seen[no] = true
	}
	require.NotEmpty(t, seen)

	stored, err := s.ListAccountNumbers(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, len(seen))
}

func TestAssignSlot_ConcurrentAssignersLeaveOneOccupant(t *testing.T) {
	s := newSQLiteStorage(t)
	log, _ := test.NewNullLogger()
	m := NewSlotManager(s, log)
	ctx := context.Background()

	const assigners = 10
	for i := 1; i <= assigners; i++ {
		require.NoError(t, s.CreateLoan(ctx, newLoan(strconv.Itoa(i), models.UnassignedIndex)))
	}

	errs := make([]error, assigners)
	var wg sync.WaitGroup
	for i := 0; i < assigners; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.AssignSlot(ctx, strconv.Itoa(i+1), 7)
		}()
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindConflict), "assigner %d: %v", i+1, err)
	}
	assert.Positive(t, succeeded)

	slotted, err := s.GetSlottedLoans(ctx)
	require.NoError(t, err)
	require.Len(t, slotted, 1)
	assert.Equal(t, 7, slotted[0].Index)

	occupant, err := s.GetLoanBySlot(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, slotted[0].ID, occupant.ID)
}
