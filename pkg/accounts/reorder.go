package accounts

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mcclellann/loandesk/pkg/apperr"
	"github.com/mcclellann/loandesk/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Reorderer rewrites the display order of a batch of loans.
type Reorderer struct {
	storage store.Storage
	log     logrus.FieldLogger
}

func NewReorderer(s store.Storage, log logrus.FieldLogger) *Reorderer {
	return &Reorderer{storage: s, log: log}
}

// Reorder sets each loan's order to its position in ids. Updates run
// concurrently and are not atomic: on failure, positions that were already
// written stay written. Ids that match no loan are skipped; an id listed
// twice is rejected.
func (r *Reorderer) Reorder(ctx context.Context, ids []string) error {
	if ids == nil {
		return apperr.Validation("loans must be an array of loan ids")
	}

	parsed := make([]uuid.UUID, len(ids))
	seen := make(map[uuid.UUID]int, len(ids))
	for i, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.Validation("invalid loan id %q at position %d", raw, i)
		}
		if first, dup := seen[id]; dup {
			return apperr.Validation("loan id %s appears at positions %d and %d", id, first, i)
		}
		seen[id] = i
		parsed[i] = id
	}

	var unknown atomic.Int64
	var g errgroup.Group
	for i, id := range parsed {
		i, id := i, id
		g.Go(func() error {
			n, err := r.storage.SetLoanOrder(ctx, id, i)
			if err != nil {
				return store.AppError(err, "order of loan %s", id)
			}
			if n == 0 {
				unknown.Add(1)
			}
			return nil
		})
	}

	log := r.log.WithField("count", len(parsed))
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("reorder failed, some positions may have been updated")
		return err
	}
	log.WithField("unknown", unknown.Load()).Info("loans reordered")
	return nil
}
