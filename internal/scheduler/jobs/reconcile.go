package jobs

import (
	"context"
	"fmt"

	"github.com/Kvijay199428/VEGA-sub001/internal/execution"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// Reconciler advances stored orders to the venue's status
type Reconciler interface {
	ReconcileOnce(ctx context.Context) (execution.ReconcileReport, error)
}

// ReconcileJob polls the venues for every non-terminal order
type ReconcileJob struct {
	reconciler Reconciler
	schedule   string
	logger     *logger.Logger
}

// NewReconcileJob creates the job; an empty schedule defaults to every 10 seconds
func NewReconcileJob(reconciler Reconciler, schedule string, log *logger.Logger) *ReconcileJob {
	if schedule == "" {
		schedule = "*/10 * * * * *"
	}
	return &ReconcileJob{reconciler: reconciler, schedule: schedule, logger: log}
}

// Name returns the job name
func (j *ReconcileJob) Name() string { return "order_reconcile" }

// Schedule returns the cron schedule
func (j *ReconcileJob) Schedule() string { return j.schedule }

// Run executes one reconciliation pass.
// Per-order venue failures are logged by the monitor; only a failed load is an error.
func (j *ReconcileJob) Run(ctx context.Context) error {
	report, err := j.reconciler.ReconcileOnce(ctx)
	if err != nil {
		return fmt.Errorf("reconcile orders: %w", err)
	}
	if report.Updated > 0 || report.Failed > 0 {
		j.logger.WithFields(map[string]interface{}{
			"checked": report.Checked,
			"updated": report.Updated,
			"failed":  report.Failed,
		}).Info("Order reconciliation completed")
	}
	return nil
}
