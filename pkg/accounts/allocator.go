// Package accounts allocates account numbers and manages the physical slot
// index and display order of loans.
package accounts

import (
	"context"
	"strconv"
	"strings"

	"github.com/mcclellann/loandesk/pkg/store"
	"github.com/sirupsen/logrus"
)

// Allocator hands out the smallest positive account number not in use.
// It does not reserve the number; uniqueness is enforced when the loan is created.
type Allocator struct {
	storage store.Storage
	log     logrus.FieldLogger
}

func NewAllocator(s store.Storage, log logrus.FieldLogger) *Allocator {
	return &Allocator{storage: s, log: log}
}

// NextAccountNumber returns the smallest positive integer not currently used
// as an account number, in decimal form.
func (a *Allocator) NextAccountNumber(ctx context.Context) (string, error) {
	accountNos, err := a.storage.ListAccountNumbers(ctx)
	if err != nil {
		return "", store.AppError(err, "account numbers")
	}
	next := smallestUnused(accountNos)
	a.log.WithFields(logrus.Fields{"existing": len(accountNos), "next": next}).Debug("allocated account number")
	return next, nil
}

// smallestUnused only counts values in the canonical form it produces
// itself: a positive decimal without sign or leading zeros. Anything else
// ("007", "+5", "A-7") can never collide with a candidate.
func smallestUnused(accountNos []string) string {
	used := make(map[int]struct{}, len(accountNos))
	for _, s := range accountNos {
		s = strings.TrimSpace(s)
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || strconv.Itoa(n) != s {
			continue
		}
		used[n] = struct{}{}
	}

	candidate := 1
	for {
		if _, taken := used[candidate]; !taken {
			return strconv.Itoa(candidate)
		}
		candidate++
	}
}
