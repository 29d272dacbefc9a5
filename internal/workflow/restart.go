package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/substrate"
)

// RestartInstanceParams carries the parameters for RestartInstanceWorkflow.
type RestartInstanceParams struct {
	InstanceID string             `json:"instance_id"`
	Timeouts   model.TaskTimeouts `json:"timeouts"`
}

// RestartInstanceWorkflow stops the database, reboots the machine and waits
// for a fresh status report. The task status always returns to NONE, even on
// failure, so the instance never wedges in REBOOTING.
func RestartInstanceWorkflow(ctx workflow.Context, params RestartInstanceParams) error {
	logger := workflow.GetLogger(ctx)

	err := restartInstance(ctx, params)

	if statusErr := setTaskStatus(ctx, params.InstanceID, model.TaskNone); statusErr != nil {
		logger.Error("Failed to clear task status after restart",
			"instance_id", params.InstanceID, "error", statusErr)
		if err == nil {
			err = statusErr
		}
	}
	return err
}

func restartInstance(ctx workflow.Context, params RestartInstanceParams) error {
	logger := workflow.GetLogger(ctx)
	actx := engineCtx(ctx)
	caller := guest.Caller{LowTimeout: params.Timeouts.AgentLow, HighTimeout: params.Timeouts.AgentHigh}

	var inst model.Instance
	if err := workflow.ExecuteActivity(actx, "GetInstance", params.InstanceID).Get(ctx, &inst); err != nil {
		return err
	}
	if inst.ComputeInstanceID == nil {
		return fmt.Errorf("instance %s has no server to reboot", params.InstanceID)
	}
	serverID := *inst.ComputeInstanceID

	// Stop the database first so it shuts down clean. A guest that cannot
	// stop is what the reboot is for, so the failure only downgrades the
	// reported status.
	stop := guest.StopParams{Request: guest.Request{Version: guest.APIVersion}}
	if err := caller.CallHigh(ctx, params.InstanceID, guest.MethodStopDB, stop, nil); err != nil {
		logger.Warn("Guest stop failed before reboot, continuing",
			"instance_id", params.InstanceID, "error", err)
		if err := setServiceStatus(ctx, params.InstanceID, model.ServiceCrashed); err != nil {
			return err
		}
	}

	if err := workflow.ExecuteActivity(actx, "RebootServer", serverID).Get(ctx, nil); err != nil {
		return err
	}

	err := pollUntil(ctx, 2*time.Second, params.Timeouts.Reboot, "server reboot", func() (bool, error) {
		var current substrate.Server
		if err := workflow.ExecuteActivity(engineCtx(ctx), "GetServer", serverID).Get(ctx, &current); err != nil {
			return false, err
		}
		return current.Status == model.ServerActive, nil
	})
	if err != nil {
		return err
	}

	return awaitFreshServiceStatus(ctx, params.InstanceID, params.Timeouts.Reboot)
}

// awaitFreshServiceStatus forces the stored status to PAUSED and waits for
// the rebooted guest to overwrite it, proving the agent is back and the
// database restarted.
func awaitFreshServiceStatus(ctx workflow.Context, instanceID string, timeout time.Duration) error {
	if err := setServiceStatus(ctx, instanceID, model.ServicePaused); err != nil {
		return err
	}
	return pollUntil(ctx, 2*time.Second, timeout, "guest status report", func() (bool, error) {
		var record model.ServiceStatusRecord
		if err := workflow.ExecuteActivity(engineCtx(ctx), "GetServiceStatus", instanceID).Get(ctx, &record); err != nil {
			return false, err
		}
		return record.Status != model.ServicePaused, nil
	})
}
