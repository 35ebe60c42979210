package accounts

import (
	"context"
	"errors"

	"github.com/mcclellann/loandesk/pkg/apperr"
	"github.com/mcclellann/loandesk/pkg/models"
	"github.com/mcclellann/loandesk/pkg/store"
	"github.com/sirupsen/logrus"
)

const maxAssignAttempts = 3

type attemptOutcome int

const (
	attemptSucceeded attemptOutcome = iota
	attemptConflicted
	attemptFailed
)

// SlotManager assigns loans to the physical filing slots 1..84.
type SlotManager struct {
	storage store.Storage
	log     logrus.FieldLogger
}

func NewSlotManager(s store.Storage, log logrus.FieldLogger) *SlotManager {
	return &SlotManager{storage: s, log: log}
}

// AssignSlot places the loan with accountNo into slot index. A different loan
// already holding the slot is moved to unassigned; it does not take over the
// target's previous slot.
func (m *SlotManager) AssignSlot(ctx context.Context, accountNo string, index int) error {
	if accountNo == "" {
		return apperr.Validation("accountNo is required")
	}
	if index < models.MinSlotIndex || index > models.MaxSlotIndex {
		return apperr.Validation("index must be between %d and %d, got %d", models.MinSlotIndex, models.MaxSlotIndex, index)
	}

	log := m.log.WithFields(logrus.Fields{"accountNo": accountNo, "index": index})

	var lastErr error
	for attempt := 1; attempt <= maxAssignAttempts; attempt++ {
		outcome, err := m.tryAssign(ctx, log, accountNo, index)
		switch outcome {
		case attemptSucceeded:
			log.Info("slot assigned")
			return nil
		case attemptConflicted:
			lastErr = err
			log.WithField("attempt", attempt).WithError(err).Warn("slot assignment conflicted, retrying")
		default:
			return err
		}
	}
	return apperr.Conflict(lastErr, "slot %d is being changed concurrently, retry with fresh state", index)
}

func (m *SlotManager) tryAssign(ctx context.Context, log logrus.FieldLogger, accountNo string, index int) (attemptOutcome, error) {
	target, err := m.storage.GetLoanByAccountNo(ctx, accountNo)
	if err != nil {
		return attemptFailed, store.AppError(err, "loan with account number %s", accountNo)
	}

	occupant, err := m.storage.GetLoanBySlot(ctx, index)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return attemptFailed, store.AppError(err, "slot %d", index)
	}

	if occupant != nil && occupant.AccountNo != target.AccountNo {
		err := m.storage.SetLoanIndex(ctx, occupant.ID, models.UnassignedIndex)
		if errors.Is(err, store.ErrNotFound) {
			// Occupant deleted under us; re-read.
			return attemptConflicted, err
		}
		if err != nil {
			return attemptFailed, store.AppError(err, "slot %d occupant %s", index, occupant.AccountNo)
		}
		log.WithField("evicted", occupant.AccountNo).Info("evicted slot occupant")
	}

	if occupant != nil && occupant.ID == target.ID {
		return attemptSucceeded, nil
	}

	err = m.storage.SetLoanIndex(ctx, target.ID, index)
	switch {
	case err == nil:
		return attemptSucceeded, nil
	case errors.Is(err, store.ErrConflict):
		return attemptConflicted, err
	default:
		return attemptFailed, store.AppError(err, "loan with account number %s", accountNo)
	}
}

// AuditReport summarizes a slot audit pass.
type AuditReport struct {
	Scanned    int      `json:"scanned"`
	OutOfRange int      `json:"outOfRange"`
	Duplicates int      `json:"duplicates"`
	Evicted    []string `json:"evicted"`
}

// AuditSlots resets out-of-range indexes and resolves duplicate occupants,
// keeping the most recently updated loan in each slot.
func (m *SlotManager) AuditSlots(ctx context.Context) (*AuditReport, error) {
	loans, err := m.storage.GetSlottedLoans(ctx)
	if err != nil {
		return nil, store.AppError(err, "slotted loans")
	}

	report := &AuditReport{Scanned: len(loans), Evicted: []string{}}
	held := make(map[int]bool, len(loans))
	for _, loan := range loans {
		switch {
		case !loan.HasSlot():
			report.OutOfRange++
		case held[loan.Index]:
			report.Duplicates++
		default:
			held[loan.Index] = true
			continue
		}

		err := m.storage.SetLoanIndex(ctx, loan.ID, models.UnassignedIndex)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return report, store.AppError(err, "slot of account %s", loan.AccountNo)
		}
		report.Evicted = append(report.Evicted, loan.AccountNo)
		m.log.WithFields(logrus.Fields{"accountNo": loan.AccountNo, "index": loan.Index}).Warn("audit reset slot index")
	}

	m.log.WithFields(logrus.Fields{
		"scanned":    report.Scanned,
		"outOfRange": report.OutOfRange,
		"duplicates": report.Duplicates,
	}).Info("slot audit complete")
	return report, nil
}
