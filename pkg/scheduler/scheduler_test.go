package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/mcclellann/loandesk/pkg/accounts"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuditor struct {
	calls  int
	report *accounts.AuditReport
	err    error
}

func (f *fakeAuditor) AuditSlots(ctx context.Context) (*accounts.AuditReport, error) {
	f.calls++
	return f.report, f.err
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := NewScheduler("every night", &fakeAuditor{}, log)
	assert.Error(t, err)

	// Five-field specs are rejected; seconds are required.
	_, err = NewScheduler("0 3 * * *", &fakeAuditor{}, log)
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	log, _ := test.NewNullLogger()
	s, err := NewScheduler("0 0 3 * * *", &fakeAuditor{}, log)
	require.NoError(t, err)

	s.Start()
	next := s.NextRun()
	s.Stop()

	require.False(t, next.IsZero())
	assert.Equal(t, 3, next.UTC().Hour())
	assert.Equal(t, 0, next.UTC().Minute())
}

func TestRunSlotAudit(t *testing.T) {
	log, hook := test.NewNullLogger()
	auditor := &fakeAuditor{report: &accounts.AuditReport{Scanned: 4, Duplicates: 1, Evicted: []string{"9"}}}
	s, err := NewScheduler("0 0 3 * * *", auditor, log)
	require.NoError(t, err)

	s.runSlotAudit()
	assert.Equal(t, 1, auditor.calls)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, 1, hook.LastEntry().Data["evicted"])

	auditor.err = errors.New("store down")
	s.runSlotAudit()
	assert.Equal(t, 2, auditor.calls)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
