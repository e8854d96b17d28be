package execution

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// RetryPolicy defines exponential backoff for transient venue failures
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Retryable   map[contracts.ErrorCode]bool
	Parallelism int // concurrent lines in RetryFailedOrders
}

// DefaultRetryPolicy retries network errors, timeouts and rate limits 3 times
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
		Retryable: map[contracts.ErrorCode]bool{
			contracts.ErrCodeNetwork:     true,
			contracts.ErrCodeTimeout:     true,
			contracts.ErrCodeRateLimited: true,
		},
		Parallelism: 4,
	}
}

// Delay returns the wait before the attempt following attempt (1-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// RetryState tracks one operation across attempts
type RetryState struct {
	Attempts     int       `json:"attempts"`
	Success      bool      `json:"success"`
	FirstAttempt time.Time `json:"first_attempt"`
	cancelled    bool
}

// RetryOutcome is the final result of a retried operation
type RetryOutcome struct {
	Result    broker.OrderResult
	Attempts  int
	Exhausted bool
}

// Retrier re-runs venue operations that failed with a transient code
// ⭐ SSOT: 주문 재시도 정책은 여기서만
type Retrier struct {
	policy RetryPolicy
	clock  clock.Clock
	logger *logger.Logger

	mu     sync.Mutex
	states map[string]*RetryState
}

// NewRetrier creates a retrier
func NewRetrier(policy RetryPolicy, clk clock.Clock, log *logger.Logger) *Retrier {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Retrier{
		policy: policy,
		clock:  clk,
		logger: log.WithComponent("retry"),
		states: make(map[string]*RetryState),
	}
}

// Policy returns the retry policy
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Do runs fn until it succeeds, fails with a non-retryable code,
// the attempts run out, the operation is cancelled or ctx ends.
func (r *Retrier) Do(ctx context.Context, operationID string, fn func(ctx context.Context) broker.OrderResult) RetryOutcome {
	state := &RetryState{FirstAttempt: r.clock.Now()}
	r.mu.Lock()
	r.states[operationID] = state
	r.mu.Unlock()

	var result broker.OrderResult
	for attempt := 1; ; attempt++ {
		result = fn(ctx)

		r.mu.Lock()
		state.Attempts = attempt
		state.Success = result.Success
		cancelled := state.cancelled
		r.mu.Unlock()

		if result.Success {
			r.logger.WithFields(map[string]interface{}{
				"operation": operationID,
				"attempt":   attempt,
			}).Debug("Operation succeeded")
			return RetryOutcome{Result: result, Attempts: attempt}
		}

		r.logger.WithFields(map[string]interface{}{
			"operation":  operationID,
			"attempt":    attempt,
			"error_code": result.ErrorCode,
			"message":    result.Message,
		}).Warn("Operation failed")

		if attempt >= r.policy.MaxAttempts || !r.policy.Retryable[result.ErrorCode] || cancelled {
			return RetryOutcome{Result: result, Attempts: attempt, Exhausted: true}
		}

		delay := r.policy.Delay(attempt)
		r.logger.WithFields(map[string]interface{}{
			"operation": operationID,
			"delay_ms":  delay.Milliseconds(),
		}).Info("Retrying operation")

		select {
		case <-ctx.Done():
			return RetryOutcome{
				Result:    broker.Failed(result.CorrelationID, contracts.ErrCodeTimeout, ctx.Err().Error()),
				Attempts:  attempt,
				Exhausted: true,
			}
		case <-r.clock.After(delay):
		}
	}
}

// State returns a copy of the operation's retry state
func (r *Retrier) State(operationID string) (RetryState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[operationID]
	if !ok {
		return RetryState{}, false
	}
	return *s, true
}

// Cancel stops further attempts of an operation and forgets its state
func (r *Retrier) Cancel(operationID string) {
	r.mu.Lock()
	if s, ok := r.states[operationID]; ok {
		s.cancelled = true
		delete(r.states, operationID)
	}
	r.mu.Unlock()
	r.logger.WithField("operation", operationID).Info("Retries cancelled")
}

// Forget drops state of operations that started before cutoff
func (r *Retrier) Forget(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.states {
		if s.FirstAttempt.Before(cutoff) {
			delete(r.states, id)
			n++
		}
	}
	return n
}

// RetryFailedOrders re-places failed batch lines concurrently.
// A line that still fails is reported as RETRY_FAILED.
func (r *Retrier) RetryFailedOrders(ctx context.Context, adapter broker.Adapter, failed []broker.OrderRequest, batchID string) broker.MultiOrderResult {
	start := r.clock.Now()
	r.logger.WithFields(map[string]interface{}{
		"batch_id": batchID,
		"orders":   len(failed),
		"broker":   adapter.Name(),
	}).Info("Retrying failed orders")

	results := make([]broker.OrderResult, len(failed))
	var g errgroup.Group
	if r.policy.Parallelism > 0 {
		g.SetLimit(r.policy.Parallelism)
	}
	for i, req := range failed {
		i, req := i, req
		g.Go(func() error {
			outcome := r.Do(ctx, fmt.Sprintf("%s-%s", batchID, req.CorrelationID), func(ctx context.Context) broker.OrderResult {
				return adapter.PlaceOrder(ctx, req)
			})
			res := outcome.Result
			if !res.Success {
				res = broker.Failed(req.CorrelationID, contracts.ErrCodeRetryFailed,
					fmt.Sprintf("%s after %d attempts: %s", res.ErrorCode, outcome.Attempts, res.Message))
			}
			res.CorrelationID = req.CorrelationID
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return broker.NewMultiOrderResult(results, r.clock.Now().Sub(start))
}
