package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/mcclellann/loandesk/pkg/accounts"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const auditTimeout = 5 * time.Minute

// SlotAuditor repairs the slot index.
type SlotAuditor interface {
	AuditSlots(ctx context.Context) (*accounts.AuditReport, error)
}

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron    *cron.Cron
	auditor SlotAuditor
	log     logrus.FieldLogger
}

// NewScheduler creates a scheduler running the slot audit on slotAuditSpec,
// a six-field cron expression evaluated in UTC.
func NewScheduler(slotAuditSpec string, auditor SlotAuditor, log logrus.FieldLogger) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron:    c,
		auditor: auditor,
		log:     log,
	}

	if _, err := s.cron.AddFunc(slotAuditSpec, s.runSlotAudit); err != nil {
		return nil, fmt.Errorf("failed to register slot audit job: %w", err)
	}
	return s, nil
}

func (s *Scheduler) runSlotAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	start := time.Now()
	report, err := s.auditor.AuditSlots(ctx)
	if err != nil {
		s.log.WithError(err).Error("scheduled slot audit failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"scanned":    report.Scanned,
		"outOfRange": report.OutOfRange,
		"duplicates": report.Duplicates,
		"evicted":    len(report.Evicted),
		"duration":   time.Since(start).String(),
	}).Info("scheduled slot audit complete")
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	s.log.Info("starting cron scheduler")
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("cron scheduler stopped")
}

// NextRun reports when the slot audit fires next. It is zero before Start.
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
