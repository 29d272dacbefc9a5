package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/activity"
)

// ReconcileStatusesWorkflow runs on a cron schedule and sweeps every live
// instance: stale agents are downgraded to UNKNOWN, instances whose server
// vanished from the substrate are marked FAILED.
func ReconcileStatusesWorkflow(ctx workflow.Context) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var result activity.ReconcileResult
	if err := workflow.ExecuteActivity(ctx, "ReconcileInstanceStatuses").Get(ctx, &result); err != nil {
		return err
	}

	workflow.GetLogger(ctx).Info("Status sweep finished",
		"checked", result.Checked,
		"marked_unknown", result.MarkedUnknown,
		"marked_failed", result.MarkedFailed)
	return nil
}
