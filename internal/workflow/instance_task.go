package workflow

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/model"
)

// InstanceTaskWorkflow is a long-running per-instance orchestrator that
// processes lifecycle tasks strictly one at a time. Tasks are submitted via
// the "task" signal and executed as child workflows, so two operations can
// never race on the same instance.
//
// The workflow idles for up to 5 minutes between tasks. If no new task
// arrives within that window, the workflow completes gracefully. A new
// run is automatically started by SignalWithStartWorkflow when the next
// task is enqueued.
//
// After 1000 iterations the workflow uses ContinueAsNew to keep the
// event history bounded. Unread signals are carried over automatically
// by Temporal.
func InstanceTaskWorkflow(ctx workflow.Context) error {
	logger := workflow.GetLogger(ctx)
	signalCh := workflow.GetSignalChannel(ctx, model.TaskSignalName)

	iteration := 0
	const maxIterations = 1000

	for {
		// Drain any buffered signals first.
		for {
			var task model.InstanceTask
			if !signalCh.ReceiveAsync(&task) {
				break
			}
			if err := executeInstanceTask(ctx, task); err != nil {
				logger.Error("Instance task failed",
					"workflow", task.WorkflowName,
					"id", task.WorkflowID,
					"error", err)
			}
			iteration++
			if iteration >= maxIterations {
				return workflow.NewContinueAsNewError(ctx, InstanceTaskWorkflow)
			}
		}

		// No buffered signals; wait for a new signal or idle timeout.
		var task model.InstanceTask
		gotSignal := false

		selector := workflow.NewSelector(ctx)
		selector.AddReceive(signalCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, &task)
			gotSignal = true
		})
		selector.AddFuture(workflow.NewTimer(ctx, 5*time.Minute), func(workflow.Future) {})
		selector.Select(ctx)

		if !gotSignal {
			return nil
		}

		if err := executeInstanceTask(ctx, task); err != nil {
			logger.Error("Instance task failed",
				"workflow", task.WorkflowName,
				"id", task.WorkflowID,
				"error", err)
		}
		iteration++
		if iteration >= maxIterations {
			return workflow.NewContinueAsNewError(ctx, InstanceTaskWorkflow)
		}
	}
}

func executeInstanceTask(ctx workflow.Context, task model.InstanceTask) error {
	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID: task.WorkflowID,
		TaskQueue:  TaskQueue,
	})
	return workflow.ExecuteChildWorkflow(childCtx, task.WorkflowName, task.Arg).Get(ctx, nil)
}

// InstanceTaskWorkflowID is the stable id the sync layer signals.
func InstanceTaskWorkflowID(instanceID string) string {
	return "instance-tasks-" + instanceID
}
