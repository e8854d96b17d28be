package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/internal/execution"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// IdempotencySweeper drops expired idempotency records
type IdempotencySweeper interface {
	SweepIdempotency(ctx context.Context) (int, error)
}

// ReadCacheSweeper drops expired read views
type ReadCacheSweeper interface {
	SweepReadCache() int
}

// ============================================================
// Idempotency sweep
// ============================================================

// IdempotencySweepJob removes idempotency records past their TTL
type IdempotencySweepJob struct {
	sweeper IdempotencySweeper
	logger  *logger.Logger
}

// NewIdempotencySweepJob creates the job
func NewIdempotencySweepJob(sweeper IdempotencySweeper, log *logger.Logger) *IdempotencySweepJob {
	return &IdempotencySweepJob{sweeper: sweeper, logger: log}
}

// Name returns the job name
func (j *IdempotencySweepJob) Name() string { return "idempotency_sweep" }

// Schedule returns the cron schedule (every minute)
func (j *IdempotencySweepJob) Schedule() string { return "0 * * * * *" }

// Run executes the sweep
func (j *IdempotencySweepJob) Run(ctx context.Context) error {
	n, err := j.sweeper.SweepIdempotency(ctx)
	if err != nil {
		return fmt.Errorf("sweep idempotency records: %w", err)
	}
	if n > 0 {
		j.logger.WithField("removed", n).Info("Idempotency sweep completed")
	}
	return nil
}

// ============================================================
// Read-cache sweep
// ============================================================

// ReadCacheSweepJob evicts expired order-book, trade and history views
type ReadCacheSweepJob struct {
	sweeper ReadCacheSweeper
	logger  *logger.Logger
}

// NewReadCacheSweepJob creates the job
func NewReadCacheSweepJob(sweeper ReadCacheSweeper, log *logger.Logger) *ReadCacheSweepJob {
	return &ReadCacheSweepJob{sweeper: sweeper, logger: log}
}

// Name returns the job name
func (j *ReadCacheSweepJob) Name() string { return "read_cache_sweep" }

// Schedule returns the cron schedule (every 30 seconds)
func (j *ReadCacheSweepJob) Schedule() string { return "*/30 * * * * *" }

// Run executes the sweep
func (j *ReadCacheSweepJob) Run(_ context.Context) error {
	if n := j.sweeper.SweepReadCache(); n > 0 {
		j.logger.WithField("removed", n).Debug("Read cache sweep completed")
	}
	return nil
}

// ============================================================
// Client limiter eviction
// ============================================================

// ClientLimiterEvictJob drops idle per-user and per-IP buckets
type ClientLimiterEvictJob struct {
	limiter interface{ Evict() int }
	logger  *logger.Logger
}

// NewClientLimiterEvictJob creates the job
func NewClientLimiterEvictJob(limiter interface{ Evict() int }, log *logger.Logger) *ClientLimiterEvictJob {
	return &ClientLimiterEvictJob{limiter: limiter, logger: log}
}

// Name returns the job name
func (j *ClientLimiterEvictJob) Name() string { return "client_limiter_evict" }

// Schedule returns the cron schedule (every 5 minutes)
func (j *ClientLimiterEvictJob) Schedule() string { return "0 */5 * * * *" }

// Run executes the eviction
func (j *ClientLimiterEvictJob) Run(_ context.Context) error {
	if n := j.limiter.Evict(); n > 0 {
		j.logger.WithField("removed", n).Debug("Client limiter eviction completed")
	}
	return nil
}

// ============================================================
// Retry state cleanup
// ============================================================

// RetryStateCleanupJob forgets retry bookkeeping older than maxAge
type RetryStateCleanupJob struct {
	retrier *execution.Retrier
	maxAge  time.Duration
	clock   clock.Clock
	logger  *logger.Logger
}

// NewRetryStateCleanupJob creates the job
func NewRetryStateCleanupJob(retrier *execution.Retrier, maxAge time.Duration, clk clock.Clock, log *logger.Logger) *RetryStateCleanupJob {
	if clk == nil {
		clk = clock.Real{}
	}
	return &RetryStateCleanupJob{retrier: retrier, maxAge: maxAge, clock: clk, logger: log}
}

// Name returns the job name
func (j *RetryStateCleanupJob) Name() string { return "retry_state_cleanup" }

// Schedule returns the cron schedule (every 10 minutes)
func (j *RetryStateCleanupJob) Schedule() string { return "0 */10 * * * *" }

// Run executes the cleanup
func (j *RetryStateCleanupJob) Run(_ context.Context) error {
	if n := j.retrier.Forget(j.clock.Now().Add(-j.maxAge)); n > 0 {
		j.logger.WithField("removed", n).Debug("Retry state cleanup completed")
	}
	return nil
}
