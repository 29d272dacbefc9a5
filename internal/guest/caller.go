package guest

import (
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Caller dispatches guest methods from inside engine workflows. Calls are
// routed to the instance's own task queue and never retried by the engine:
// guest methods are not assumed idempotent, so a failure surfaces to the
// calling workflow instead of being replayed against the database.
type Caller struct {
	// LowTimeout bounds quick control methods (stop, user/database DDL).
	LowTimeout time.Duration
	// HighTimeout bounds methods that restart or reconfigure the database.
	HighTimeout time.Duration
}

// agentCtx routes activity execution to the instance's agent queue. The
// schedule-to-start share of the timeout is what detects a dead agent: no
// worker polls the queue, the task sits unclaimed and times out.
func agentCtx(ctx workflow.Context, instanceID string, timeout time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:              QueueName(instanceID),
		StartToCloseTimeout:    timeout,
		ScheduleToStartTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
}

// Call invokes method on the instance's agent and waits for the reply.
// result may be nil for methods with no payload.
func (c *Caller) Call(ctx workflow.Context, instanceID, method string, arg, result any, timeout time.Duration) error {
	return workflow.ExecuteActivity(agentCtx(ctx, instanceID, timeout), method, arg).Get(ctx, result)
}

// CallLow is Call with the quick-method timeout.
func (c *Caller) CallLow(ctx workflow.Context, instanceID, method string, arg, result any) error {
	return c.Call(ctx, instanceID, method, arg, result, c.LowTimeout)
}

// CallHigh is Call with the slow-method timeout.
func (c *Caller) CallHigh(ctx workflow.Context, instanceID, method string, arg, result any) error {
	return c.Call(ctx, instanceID, method, arg, result, c.HighTimeout)
}

// Cast fires method at the agent without waiting for it to run. The send is
// confirmed (the carrier workflow is started) but the outcome is not
// observed; the agent reports progress through its own write path.
func Cast(ctx workflow.Context, instanceID, method string, arg any, timeout time.Duration) error {
	cctx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
	})
	fut := workflow.ExecuteChildWorkflow(cctx, CastWorkflow, CastParams{
		InstanceID: instanceID,
		Method:     method,
		Arg:        arg,
		Timeout:    timeout,
	})
	// Wait only for the child to exist, not to finish.
	return fut.GetChildWorkflowExecution().Get(ctx, nil)
}

// CastWithConsumer fires method at the agent and hands back the future, so
// the caller decides whether (and how long) to wait for the reply.
func (c *Caller) CastWithConsumer(ctx workflow.Context, instanceID, method string, arg any, timeout time.Duration) workflow.Future {
	return workflow.ExecuteActivity(agentCtx(ctx, instanceID, timeout), method, arg)
}

// CastParams is the argument envelope for CastWorkflow.
type CastParams struct {
	InstanceID string        `json:"instance_id"`
	Method     string        `json:"method"`
	Arg        any           `json:"arg"`
	Timeout    time.Duration `json:"timeout"`
}

// CastWorkflow carries one fire-and-forget guest call. It is started with
// an abandoning parent so the originating workflow can complete while the
// call is still in flight.
func CastWorkflow(ctx workflow.Context, params CastParams) error {
	logger := workflow.GetLogger(ctx)
	err := workflow.ExecuteActivity(
		agentCtx(ctx, params.InstanceID, params.Timeout),
		params.Method, params.Arg,
	).Get(ctx, nil)
	if err != nil {
		logger.Error("Guest cast failed", "instance_id", params.InstanceID, "method", params.Method, "error", err)
	}
	// The cast contract has no failure channel back to the sender.
	return nil
}
