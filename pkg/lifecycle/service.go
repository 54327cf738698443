// Package lifecycle owns the request SLA batch jobs. Each job is one
// conditional bulk update, so the selection predicate and the mutation commit
// atomically and re-running a job is safe.
package lifecycle

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DefaultSLAWindowDays is the age after which an unmatched request is flagged
// or closed
const DefaultSLAWindowDays = 30

// RequestBatchStore is the batch access the jobs need
type RequestBatchStore interface {
	FlagUnmatched(ctx context.Context, cutoff time.Time) (int64, error)
	CloseUnmatched(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier receives the flag batch summary after it commits
type Notifier interface {
	NotifyFlaggedBatch(ctx context.Context, flaggedCount int64) (int, error)
}

// JobResult reports one batch job run. Zero matches is a successful no-op.
type JobResult struct {
	Count int64 `json:"count"`
	NoOp  bool  `json:"no_op"`
}

// Service runs the SLA enforcement jobs
type Service struct {
	requests RequestBatchStore
	notifier Notifier
	logger   ectologger.Logger
}

// NewService creates a new lifecycle service
func NewService(requests RequestBatchStore, notifier Notifier, logger ectologger.Logger) *Service {
	return &Service{
		requests: requests,
		notifier: notifier,
		logger:   logger,
	}
}

func cutoffFor(days int) time.Time {
	if days <= 0 {
		days = DefaultSLAWindowDays
	}
	return time.Now().UTC().AddDate(0, 0, -days)
}

// FlagUnmatched flags unmatched requests older than the SLA window and then
// fans a summary out to every active admin. The flags are committed before
// any notification is attempted, so notification failure never unflags.
func (s *Service) FlagUnmatched(ctx context.Context, days int) (*JobResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Lifecycle.FlagUnmatched")
	defer span.End()

	start := time.Now()
	count, err := s.requests.FlagUnmatched(ctx, cutoffFor(days))
	if err != nil {
		metrics.RecordSLAJob("flag_unmatched", "error", 0, time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordSLAJob("flag_unmatched", "ok", int(count), time.Since(start).Seconds())

	if count > 0 {
		if _, err := s.notifier.NotifyFlaggedBatch(ctx, count); err != nil {
			// flags are already durable; log and move on
			s.logger.WithContext(ctx).WithError(err).Error("failed to fan out flag batch summary")
		}
	}

	return &JobResult{Count: count, NoOp: count == 0}, nil
}

// CloseUnmatched closes unmatched requests past the SLA window or their own
// expiry. Idempotent; a second run right after the first closes nothing.
func (s *Service) CloseUnmatched(ctx context.Context, days int) (*JobResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Lifecycle.CloseUnmatched")
	defer span.End()

	start := time.Now()
	count, err := s.requests.CloseUnmatched(ctx, cutoffFor(days))
	if err != nil {
		metrics.RecordSLAJob("close_unmatched", "error", 0, time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordSLAJob("close_unmatched", "ok", int(count), time.Since(start).Seconds())

	return &JobResult{Count: count, NoOp: count == 0}, nil
}
