package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loandesk/pkg/apperr"
	"github.com/mcclellann/loandesk/pkg/cache"
	"github.com/mcclellann/loandesk/pkg/models"
	"github.com/mcclellann/loandesk/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	generationKey    = "ledger:history:gen"
	historyKeyPrefix = "ledger:history:"
)

// HistoryRange bounds History by payment date, inclusive. Nil bounds are open.
type HistoryRange struct {
	Start *time.Time
	End   *time.Time
}

// Ledger records payments and serves per-account payment histories.
type Ledger struct {
	storage    store.Storage
	cache      cache.Cache
	historyTTL time.Duration
	log        logrus.FieldLogger
}

// NewLedger creates a Ledger. A nil cache or a non-positive historyTTL
// disables history caching; entries of superseded generations are only
// reclaimed through their TTL.
func NewLedger(s store.Storage, c cache.Cache, historyTTL time.Duration, log logrus.FieldLogger) *Ledger {
	return &Ledger{
		storage:    s,
		cache:      c,
		historyTTL: historyTTL,
		log:        log,
	}
}

// RecordPayment appends an immutable payment entry for an account.
func (l *Ledger) RecordPayment(ctx context.Context, accountNo string, amount decimal.Decimal, date time.Time, lateAmount decimal.Decimal) (*models.Payment, error) {
	if accountNo == "" {
		return nil, apperr.Validation("accountNo is required")
	}
	if amount.IsNegative() {
		return nil, apperr.Validation("amount must not be negative")
	}
	if lateAmount.IsNegative() {
		return nil, apperr.Validation("lateAmount must not be negative")
	}
	if date.IsZero() {
		return nil, apperr.Validation("date is required")
	}

	payment := &models.Payment{
		ID:         uuid.New(),
		AccountNo:  accountNo,
		Amount:     amount,
		LateAmount: lateAmount,
		Date:       date.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.storage.CreatePayment(ctx, payment); err != nil {
		return nil, store.AppError(err, "payment for account %s", accountNo)
	}
	l.Invalidate(ctx)

	l.log.WithFields(logrus.Fields{
		"accountNo": accountNo,
		"amount":    amount.StringFixed(2),
		"date":      payment.Date.Format(time.RFC3339),
	}).Info("payment recorded")
	return payment, nil
}

// History groups the matching payments by account, newest first. Accounts
// without matching payments are absent from the result.
func (l *Ledger) History(ctx context.Context, accountNos []string, r HistoryRange) (map[string][]*models.Payment, error) {
	accounts := normalizeAccounts(accountNos)
	if len(accounts) == 0 {
		return map[string][]*models.Payment{}, nil
	}

	key := l.historyKey(ctx, accounts, r)
	if key != "" {
		if history, ok := l.cachedHistory(ctx, key); ok {
			return history, nil
		}
	}

	payments, err := l.storage.ListPayments(ctx, store.PaymentFilter{
		AccountNos: accounts,
		Start:      r.Start,
		End:        r.End,
	})
	if err != nil {
		return nil, store.AppError(err, "payment history")
	}

	history := make(map[string][]*models.Payment)
	for _, p := range payments {
		history[p.AccountNo] = append(history[p.AccountNo], p)
	}
	for _, entries := range history {
		slices.SortStableFunc(entries, func(a, b *models.Payment) int {
			return b.Date.Compare(a.Date)
		})
	}

	if key != "" {
		l.storeHistory(ctx, key, history)
	}
	return history, nil
}

// DeleteAllForLoan removes every payment of the loan's account. An unknown
// loan and a loan without payments are both reported as NotFound, with
// different messages.
func (l *Ledger) DeleteAllForLoan(ctx context.Context, loanID uuid.UUID) (int64, error) {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return 0, store.AppError(err, "loan %s", loanID)
	}

	deleted, err := l.storage.DeletePaymentsForAccount(ctx, loan.AccountNo)
	if err != nil {
		return 0, store.AppError(err, "payments of account %s", loan.AccountNo)
	}
	if deleted == 0 {
		return 0, apperr.NotFound("no payments found for loan %s", loanID)
	}
	l.Invalidate(ctx)

	l.log.WithFields(logrus.Fields{"loanId": loanID, "accountNo": loan.AccountNo, "deleted": deleted}).Warn("payments deleted for loan")
	return deleted, nil
}

// Invalidate moves cached histories to a new generation. Call it after any
// write that touches payments outside the ledger, such as a loan deletion.
func (l *Ledger) Invalidate(ctx context.Context) {
	if l.cache == nil {
		return
	}
	if _, err := l.cache.Incr(ctx, generationKey); err != nil {
		l.log.WithError(err).Error("failed to bump history cache generation")
	}
}

func (l *Ledger) historyKey(ctx context.Context, accounts []string, r HistoryRange) string {
	if l.cache == nil || l.historyTTL <= 0 {
		return ""
	}
	gen, ok, err := l.cache.Get(ctx, generationKey)
	if err != nil {
		l.log.WithError(err).Warn("history cache unavailable")
		return ""
	}
	if !ok {
		gen = "0"
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", strings.Join(accounts, ","), formatBound(r.Start), formatBound(r.End))
	return historyKeyPrefix + gen + ":" + hex.EncodeToString(h.Sum(nil))
}

func (l *Ledger) cachedHistory(ctx context.Context, key string) (map[string][]*models.Payment, bool) {
	raw, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		l.log.WithError(err).Warn("history cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var history map[string][]*models.Payment
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		l.log.WithError(err).Warn("discarding corrupt history cache entry")
		return nil, false
	}
	return history, true
}

func (l *Ledger) storeHistory(ctx context.Context, key string, history map[string][]*models.Payment) {
	raw, err := json.Marshal(history)
	if err != nil {
		l.log.WithError(err).Warn("failed to encode history for cache")
		return
	}
	if err := l.cache.Set(ctx, key, string(raw), l.historyTTL); err != nil {
		l.log.WithError(err).Warn("history cache write failed")
	}
}

// normalizeAccounts trims, drops empties, dedupes and sorts.
func normalizeAccounts(accountNos []string) []string {
	out := make([]string, 0, len(accountNos))
	for _, a := range accountNos {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
