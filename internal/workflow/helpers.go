package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/activity"
	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/model"
)

// TaskQueue is the engine's own task queue; guest agents listen on their
// per-instance queues instead.
const TaskQueue = "dbaas-tasks"

// engineCtx returns a workflow context with the default options for
// control-plane activities (database writes, substrate calls). A not-found
// answer is definitive; retrying it only delays the caller's handling.
func engineCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    5,
			InitialInterval:    time.Second,
			MaximumInterval:    30 * time.Second,
			BackoffCoefficient: 2.0,
			NonRetryableErrorTypes: []string{
				string(fault.NotFound),
				string(fault.ComputeInstanceNotFound),
				string(fault.DNSRecordNotFound),
			},
		},
	})
}

// setTaskStatus moves the instance's engine task status. Callers in error
// paths typically ignore the returned error since the primary error is more
// important.
func setTaskStatus(ctx workflow.Context, instanceID string, status model.TaskStatus) error {
	return workflow.ExecuteActivity(engineCtx(ctx), "UpdateTaskStatus", activity.UpdateTaskStatusParams{
		InstanceID: instanceID,
		TaskStatus: status.Name,
	}).Get(ctx, nil)
}

// setServiceStatus overwrites the guest-reported status.
func setServiceStatus(ctx workflow.Context, instanceID string, status model.ServiceStatus) error {
	return workflow.ExecuteActivity(engineCtx(ctx), "SetServiceStatus", activity.SetServiceStatusParams{
		InstanceID: instanceID,
		Status:     status,
	}).Get(ctx, nil)
}

// rollbackReservations releases quota reservations, best-effort.
func rollbackReservations(ctx workflow.Context, reservationIDs []string) {
	if len(reservationIDs) == 0 {
		return
	}
	err := workflow.ExecuteActivity(engineCtx(ctx), "RollbackReservations", reservationIDs).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("Failed to roll back reservations", "error", err)
	}
}

// commitReservations finalizes quota reservations, best-effort. A task
// whose real work finished must not wedge on usage bookkeeping.
func commitReservations(ctx workflow.Context, reservationIDs []string) {
	if len(reservationIDs) == 0 {
		return
	}
	err := workflow.ExecuteActivity(engineCtx(ctx), "CommitReservations", reservationIDs).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("Failed to commit reservations", "error", err)
	}
}
