package core

import (
	"context"
	"fmt"
	"time"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/dbaas/internal/config"
	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/platform"
	"github.com/edvin/dbaas/internal/store"
	"github.com/edvin/dbaas/internal/workflow"
)

// signalInstanceTask routes an engine task through the instance's serial
// task workflow. SignalWithStartWorkflow guarantees exactly one live task
// loop per instance, so two operations can never race on the same instance.
func signalInstanceTask(ctx context.Context, tc temporalclient.Client, instanceID string, task model.InstanceTask) error {
	wfID := workflow.InstanceTaskWorkflowID(instanceID)
	_, err := tc.SignalWithStartWorkflow(ctx, wfID, model.TaskSignalName, task,
		temporalclient.StartWorkflowOptions{
			ID:        wfID,
			TaskQueue: workflow.TaskQueue,
		},
		workflow.InstanceTaskWorkflow,
	)
	if err != nil {
		return fmt.Errorf("signal %s for instance %s: %w", task.WorkflowName, instanceID, err)
	}
	return nil
}

// taskTimeouts snapshots the configured poll and call bounds for a task.
// Workflows cannot read config (determinism), so every enqueue carries its
// own copy.
func taskTimeouts(cfg *config.Config) model.TaskTimeouts {
	return model.TaskTimeouts{
		AgentLow:      cfg.AgentCallLowTimeout,
		AgentHigh:     cfg.AgentCallHighTimeout,
		AgentSnapshot: cfg.AgentSnapshotTimeout,
		StateChange:   cfg.StateChangeWaitTime,
		ServerDelete:  cfg.ServerDeleteTimeout,
		Volume:        cfg.VolumeTimeout,
		Reboot:        cfg.RebootTimeout,
		Resize:        cfg.ResizeTimeout,
		Revert:        cfg.RevertTimeout,
		DNS:           cfg.DNSTimeout,
		HeartbeatTTL:  cfg.HeartbeatTTL(),
	}
}

// guestDispatch makes synchronous guest calls from the sync layer. Calls are
// gated on a fresh agent heartbeat so a dead agent fails fast instead of
// tying the caller up for the full call timeout.
type guestDispatch struct {
	tc         temporalclient.Client
	heartbeats *store.HeartbeatStore
	ttl        time.Duration
}

func (g *guestDispatch) call(ctx context.Context, instanceID, method string, arg, result any, timeout time.Duration) error {
	hb, err := g.heartbeats.Get(ctx, instanceID)
	if err != nil {
		if fault.Is(err, fault.NotFound) {
			return fault.New(fault.GuestTimeout, "agent for instance %s has never reported", instanceID)
		}
		return err
	}
	if !hb.Alive(time.Now(), g.ttl) {
		return fault.New(fault.GuestTimeout, "agent for instance %s is stale (last seen %s)",
			instanceID, hb.UpdatedAt.Format(time.RFC3339))
	}

	run, err := g.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        workflow.GuestCallWorkflowID(instanceID, method, platform.NewID()),
		TaskQueue: workflow.TaskQueue,
	}, workflow.GuestCallWorkflow, workflow.GuestCallParams{
		InstanceID: instanceID,
		Method:     method,
		Arg:        arg,
		Timeout:    timeout,
	})
	if err != nil {
		return fmt.Errorf("start guest call %s for instance %s: %w", method, instanceID, err)
	}
	return run.Get(ctx, result)
}

// requireIdleTask refuses an operation while the engine is working on (or
// has wedged) the instance. Error build states are deletable-only.
func requireIdleTask(inst *model.Instance) error {
	ts := inst.TaskStatus()
	if ts.Name == model.TaskNone.Name {
		return nil
	}
	if ts.Error {
		return fault.New(fault.UnprocessableEntity,
			"instance %s failed to build (%s); it can only be deleted", inst.ID, ts.Name)
	}
	return fault.New(fault.UnprocessableEntity,
		"instance %s has task %s in progress", inst.ID, ts.Name)
}

func scopedTenantID(rctx *model.RequestContext) string {
	if rctx.IsAdmin {
		return ""
	}
	return rctx.TenantID
}
