package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/backoffice/pkg/observability"
)

// Pruner deletes audit rows older than a cutoff
type Pruner interface {
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// RetentionScheduler prunes audit rows on a cron schedule
type RetentionScheduler struct {
	cron    *cron.Cron
	store   Pruner
	policy  RetentionPolicy
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewRetentionScheduler validates policy and schedules the prune job.
// Nothing runs until Start.
func NewRetentionScheduler(store Pruner, policy RetentionPolicy, logger *observability.Logger, metrics *observability.Metrics) (*RetentionScheduler, error) {
	if policy.MaxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", policy.MaxAge)
	}

	s := &RetentionScheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		store:   store,
		policy:  policy,
		logger:  logger.WithField("component", "audit_retention"),
		metrics: metrics,
		now:     time.Now,
	}

	_, err := s.cron.AddFunc(policy.Schedule, func() {
		defer observability.RecoverPanic(s.logger, "audit retention")
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.WithError(err).Error("audit retention run failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", policy.Schedule, err)
	}
	return s, nil
}

// RunOnce prunes rows older than the policy's max age
func (s *RetentionScheduler) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.policy.MaxAge)
	n, err := s.store.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.AuditPrunedTotal.Add(float64(n))
	}
	s.logger.WithFields(map[string]interface{}{
		"removed": n,
		"cutoff":  cutoff.UTC().Format(time.RFC3339),
	}).Info("audit retention complete")
	return n, nil
}

// Start begins running the schedule in the background
func (s *RetentionScheduler) Start() {
	s.cron.Start()
	s.logger.WithField("schedule", s.policy.Schedule).Info("audit retention scheduled")
}

// Stop halts the schedule and waits for a running prune, bounded by ctx
func (s *RetentionScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
