package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mcclellann/loandesk/pkg/apperr"
	"github.com/mcclellann/loandesk/pkg/models"
	"github.com/mcclellann/loandesk/pkg/store"
	"github.com/mcclellann/loandesk/pkg/store/storetest"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderOf(t *testing.T, s store.Storage, id uuid.UUID) int {
	t.Helper()
	l, err := s.GetLoan(context.Background(), id)
	require.NoError(t, err)
	return l.Order
}

func TestReorder(t *testing.T) {
	l1, l2, l3 := newLoan("1", -1), newLoan("2", -1), newLoan("3", -1)
	s := storetest.New(l1, l2, l3)
	log, _ := test.NewNullLogger()
	r := NewReorderer(s, log)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		err := r.Reorder(ctx, []string{l3.ID.String(), l1.ID.String(), l2.ID.String()})
		require.NoError(t, err)
		assert.Equal(t, 0, orderOf(t, s, l3.ID))
		assert.Equal(t, 1, orderOf(t, s, l1.ID))
		assert.Equal(t, 2, orderOf(t, s, l2.ID))
	})

	t.Run("Unknown Id Is Skipped", func(t *testing.T) {
		err := r.Reorder(ctx, []string{uuid.NewString(), l2.ID.String()})
		require.NoError(t, err)
		assert.Equal(t, 1, orderOf(t, s, l2.ID))
	})

	t.Run("Malformed Id", func(t *testing.T) {
		err := r.Reorder(ctx, []string{l1.ID.String(), "not-a-uuid"})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		// Nothing was dispatched.
		assert.Equal(t, 1, orderOf(t, s, l1.ID))
	})

	t.Run("Duplicate Id", func(t *testing.T) {
		err := r.Reorder(ctx, []string{l2.ID.String(), l3.ID.String(), l2.ID.String()})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Equal(t, 0, orderOf(t, s, l3.ID))
	})

	t.Run("Not A Sequence", func(t *testing.T) {
		err := r.Reorder(ctx, nil)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("Empty Sequence", func(t *testing.T) {
		assert.NoError(t, r.Reorder(ctx, []string{}))
	})

	t.Run("Store Failure", func(t *testing.T) {
		s.Fail("SetLoanOrder", errors.New("disk full"))
		defer s.Recover("SetLoanOrder")

		err := r.Reorder(ctx, []string{l1.ID.String(), l2.ID.String()})
		assert.True(t, apperr.Is(err, apperr.KindTransientStore))
	})
}

func TestReorder_PartialFailureKeepsAppliedUpdates(t *testing.T) {
	loans := []*models.Loan{newLoan("1", -1), newLoan("2", -1), newLoan("3", -1), newLoan("4", -1)}
	ids := make([]string, len(loans))
	for i, l := range loans {
		l.Order = 9
		ids[i] = l.ID.String()
	}
	s := storetest.New(loans...)
	s.FailOrderFor(loans[2].ID, errors.New("row locked"))
	log, _ := test.NewNullLogger()

	err := NewReorderer(s, log).Reorder(context.Background(), ids)
	assert.True(t, apperr.Is(err, apperr.KindTransientStore))

	assert.Equal(t, 0, orderOf(t, s, loans[0].ID))
	assert.Equal(t, 1, orderOf(t, s, loans[1].ID))
	assert.Equal(t, 9, orderOf(t, s, loans[2].ID))
	assert.Equal(t, 3, orderOf(t, s, loans[3].ID))
}
