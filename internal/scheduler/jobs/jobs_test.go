package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kvijay199428/VEGA-sub001/internal/execution"
	"github.com/Kvijay199428/VEGA-sub001/internal/scheduler"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

type fakeSweeper struct {
	idem, cache int
	err         error
}

func (f *fakeSweeper) SweepIdempotency(context.Context) (int, error) { return f.idem, f.err }
func (f *fakeSweeper) SweepReadCache() int                           { return f.cache }

type fakeReconciler struct {
	report execution.ReconcileReport
	err    error
	calls  int
}

func (f *fakeReconciler) ReconcileOnce(context.Context) (execution.ReconcileReport, error) {
	f.calls++
	return f.report, f.err
}

type evictor struct{ n int }

func (e *evictor) Evict() int { return e.n }

func TestJobsSatisfyScheduler(t *testing.T) {
	log := logger.Nop()
	s := scheduler.New(log)
	all := []scheduler.Job{
		NewIdempotencySweepJob(&fakeSweeper{}, log),
		NewReadCacheSweepJob(&fakeSweeper{}, log),
		NewClientLimiterEvictJob(&evictor{}, log),
		NewRetryStateCleanupJob(execution.NewRetrier(execution.DefaultRetryPolicy(), nil, log), time.Hour, nil, log),
		NewReconcileJob(&fakeReconciler{}, "", log),
	}
	for _, j := range all {
		require.NoError(t, s.AddJob(j), j.Name())
	}
	assert.Len(t, s.GetAllJobs(), len(all))
}

func TestIdempotencySweepJob(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, NewIdempotencySweepJob(&fakeSweeper{idem: 3}, logger.Nop()).Run(ctx))

	err := NewIdempotencySweepJob(&fakeSweeper{err: errors.New("redis down")}, logger.Nop()).Run(ctx)
	assert.ErrorContains(t, err, "redis down")
}

func TestReconcileJob(t *testing.T) {
	ctx := context.Background()
	rec := &fakeReconciler{report: execution.ReconcileReport{Checked: 4, Updated: 1, Failed: 1}}
	job := NewReconcileJob(rec, "@every 5s", logger.Nop())

	assert.Equal(t, "@every 5s", job.Schedule())
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, rec.calls)

	rec.err = errors.New("store offline")
	assert.ErrorContains(t, job.Run(ctx), "reconcile orders")
}

func TestRetryStateCleanupJob(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC))
	job := NewRetryStateCleanupJob(execution.NewRetrier(execution.DefaultRetryPolicy(), clk, logger.Nop()), time.Hour, clk, logger.Nop())
	assert.NoError(t, job.Run(context.Background()))
}
