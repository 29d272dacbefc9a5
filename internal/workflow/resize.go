package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/activity"
	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/substrate"
)

// ResizeFlavorParams carries the parameters for ResizeFlavorWorkflow.
type ResizeFlavorParams struct {
	InstanceID     string             `json:"instance_id"`
	NewFlavorID    string             `json:"new_flavor_id"`
	NewMemoryMB    int                `json:"new_memory_mb"`
	ConfigContents string             `json:"config_contents"`
	Timeouts       model.TaskTimeouts `json:"timeouts"`
}

// ResizeFlavorWorkflow moves the instance to a new flavor behind a revert
// barrier: every check between initiating the resize and confirming it can
// still send the server back to the old flavor. The database record only
// changes after the substrate confirms.
func ResizeFlavorWorkflow(ctx workflow.Context, params ResizeFlavorParams) error {
	logger := workflow.GetLogger(ctx)
	actx := engineCtx(ctx)
	caller := guest.Caller{LowTimeout: params.Timeouts.AgentLow, HighTimeout: params.Timeouts.AgentHigh}

	var inst model.Instance
	if err := workflow.ExecuteActivity(actx, "GetInstance", params.InstanceID).Get(ctx, &inst); err != nil {
		clearTask(ctx, params.InstanceID)
		return err
	}
	if inst.ComputeInstanceID == nil {
		clearTask(ctx, params.InstanceID)
		return fmt.Errorf("instance %s has no server to resize", params.InstanceID)
	}
	serverID := *inst.ComputeInstanceID

	// Stop the database and pin it down across the reboot the migration
	// implies. Failing here is cheap: nothing has moved yet.
	stop := guest.StopParams{
		Request:            guest.Request{Version: guest.APIVersion},
		DoNotStartOnReboot: true,
	}
	if err := caller.CallHigh(ctx, params.InstanceID, guest.MethodStopDB, stop, nil); err != nil {
		clearTask(ctx, params.InstanceID)
		return err
	}

	err := workflow.ExecuteActivity(actx, "ResizeServer", activity.ResizeServerParams{
		ServerID: serverID,
		FlavorID: params.NewFlavorID,
	}).Get(ctx, nil)
	if err != nil {
		restartGuest(ctx, &caller, params.InstanceID)
		clearTask(ctx, params.InstanceID)
		return err
	}

	// Revert barrier: from here on, failure reverts to the old flavor.
	if err := verifyResizedServer(ctx, &caller, params, serverID); err != nil {
		logger.Error("Resize verification failed, reverting",
			"instance_id", params.InstanceID, "server_id", serverID, "error", err)
		revertResize(ctx, &caller, params, serverID)
		clearTask(ctx, params.InstanceID)
		return err
	}

	if err := workflow.ExecuteActivity(actx, "ConfirmResize", serverID).Get(ctx, nil); err != nil {
		clearTask(ctx, params.InstanceID)
		return err
	}

	err = workflow.ExecuteActivity(actx, "SetFlavor", activity.SetFlavorParams{
		InstanceID: params.InstanceID,
		FlavorID:   params.NewFlavorID,
	}).Get(ctx, nil)
	if err != nil {
		clearTask(ctx, params.InstanceID)
		return err
	}

	return setTaskStatus(ctx, params.InstanceID, model.TaskNone)
}

// verifyResizedServer runs the post-migration checks: the server parked in
// VERIFY_RESIZE on the new flavor, the agent survived the move, and the
// database runs with the new memory budget.
func verifyResizedServer(ctx workflow.Context, caller *guest.Caller, params ResizeFlavorParams, serverID string) error {
	var server substrate.Server
	err := pollUntil(ctx, 2*time.Second, params.Timeouts.Resize, "server flavor migration", func() (bool, error) {
		var current substrate.Server
		if err := workflow.ExecuteActivity(engineCtx(ctx), "GetServer", serverID).Get(ctx, &current); err != nil {
			return false, err
		}
		if current.Status == model.ServerResize {
			return false, nil
		}
		server = current
		return true, nil
	})
	if err != nil {
		return err
	}

	if server.Status != model.ServerVerifyResize {
		return fmt.Errorf("server %s landed in %s, expected VERIFY_RESIZE", serverID, server.Status)
	}
	if server.FlavorID != params.NewFlavorID {
		return fmt.Errorf("server %s reports flavor %s, expected %s", serverID, server.FlavorID, params.NewFlavorID)
	}

	// Prove the agent is awake before asking it to start the database.
	if err := awaitFreshServiceStatus(ctx, params.InstanceID, params.Timeouts.Resize); err != nil {
		return err
	}

	start := guest.StartWithConfParams{
		Request:        guest.Request{Version: guest.APIVersion},
		ConfigContents: params.ConfigContents,
	}
	if err := caller.CallHigh(ctx, params.InstanceID, guest.MethodStartDBWithConfChanges, start, nil); err != nil {
		return err
	}

	return pollUntil(ctx, 2*time.Second, params.Timeouts.Resize, "database startup on new flavor", func() (bool, error) {
		var record model.ServiceStatusRecord
		if err := workflow.ExecuteActivity(engineCtx(ctx), "GetServiceStatus", params.InstanceID).Get(ctx, &record); err != nil {
			return false, err
		}
		return record.Status == model.ServiceRunning, nil
	})
}

// revertResize sends the server back to the old flavor and restarts the
// database there. Best-effort: the original error is what the caller sees.
func revertResize(ctx workflow.Context, caller *guest.Caller, params ResizeFlavorParams, serverID string) {
	logger := workflow.GetLogger(ctx)
	actx := engineCtx(ctx)

	if err := workflow.ExecuteActivity(actx, "RevertResize", serverID).Get(ctx, nil); err != nil {
		logger.Error("Revert resize failed", "server_id", serverID, "error", err)
		return
	}

	err := pollUntil(ctx, 2*time.Second, params.Timeouts.Revert, "resize revert", func() (bool, error) {
		var current substrate.Server
		if err := workflow.ExecuteActivity(engineCtx(ctx), "GetServer", serverID).Get(ctx, &current); err != nil {
			return false, err
		}
		return current.Status == model.ServerActive, nil
	})
	if err != nil {
		logger.Error("Server did not settle after revert", "server_id", serverID, "error", err)
		return
	}

	restartGuest(ctx, caller, params.InstanceID)
}

// restartGuest asks the guest to bring the database back up after an
// aborted operation left it stopped.
func restartGuest(ctx workflow.Context, caller *guest.Caller, instanceID string) {
	restart := guest.Request{Version: guest.APIVersion}
	if err := caller.CallHigh(ctx, instanceID, guest.MethodRestart, restart, nil); err != nil {
		workflow.GetLogger(ctx).Error("Failed to restart database after abort",
			"instance_id", instanceID, "error", err)
	}
}

func clearTask(ctx workflow.Context, instanceID string) {
	if err := setTaskStatus(ctx, instanceID, model.TaskNone); err != nil {
		workflow.GetLogger(ctx).Error("Failed to clear task status",
			"instance_id", instanceID, "error", err)
	}
}

// ResizeVolumeParams carries the parameters for ResizeVolumeWorkflow.
// ReservationIDs hold the extra gigabytes reserved by the sync layer; they
// commit only after the substrate confirms the new capacity.
type ResizeVolumeParams struct {
	InstanceID     string             `json:"instance_id"`
	NewSizeGB      int                `json:"new_size_gb"`
	ReservationIDs []string           `json:"reservation_ids"`
	Timeouts       model.TaskTimeouts `json:"timeouts"`
}

// ResizeVolumeWorkflow grows the instance's volume in place: stop the
// database, extend, wait for the substrate, rescan from the server side,
// restart. The recorded size changes only after the substrate reports the
// new capacity.
func ResizeVolumeWorkflow(ctx workflow.Context, params ResizeVolumeParams) error {
	actx := engineCtx(ctx)
	caller := guest.Caller{LowTimeout: params.Timeouts.AgentLow, HighTimeout: params.Timeouts.AgentHigh}

	fail := func(err error) error {
		rollbackReservations(ctx, params.ReservationIDs)
		clearTask(ctx, params.InstanceID)
		return err
	}

	var inst model.Instance
	if err := workflow.ExecuteActivity(actx, "GetInstance", params.InstanceID).Get(ctx, &inst); err != nil {
		return fail(err)
	}
	if inst.VolumeID == nil || inst.ComputeInstanceID == nil {
		return fail(fmt.Errorf("instance %s has no volume to resize", params.InstanceID))
	}
	volumeID, serverID := *inst.VolumeID, *inst.ComputeInstanceID

	stop := guest.StopParams{Request: guest.Request{Version: guest.APIVersion}}
	if err := caller.CallHigh(ctx, params.InstanceID, guest.MethodStopDB, stop, nil); err != nil {
		return fail(err)
	}

	err := workflow.ExecuteActivity(actx, "ExtendVolume", activity.ExtendVolumeParams{
		VolumeID:  volumeID,
		NewSizeGB: params.NewSizeGB,
	}).Get(ctx, nil)
	if err != nil {
		restartGuest(ctx, &caller, params.InstanceID)
		return fail(err)
	}

	err = pollUntil(ctx, 2*time.Second, params.Timeouts.Volume, "volume extension", func() (bool, error) {
		var current substrate.Volume
		if err := workflow.ExecuteActivity(engineCtx(ctx), "GetVolume", volumeID).Get(ctx, &current); err != nil {
			return false, err
		}
		if current.Status == substrate.VolumeError {
			return false, fmt.Errorf("volume %s entered error state during extend", volumeID)
		}
		return current.SizeGB >= params.NewSizeGB && current.Status != "extending", nil
	})
	if err != nil {
		restartGuest(ctx, &caller, params.InstanceID)
		return fail(err)
	}

	err = workflow.ExecuteActivity(actx, "RescanServerVolume", activity.RescanServerVolumeParams{
		ServerID: serverID,
		VolumeID: volumeID,
	}).Get(ctx, nil)
	if err != nil {
		restartGuest(ctx, &caller, params.InstanceID)
		return fail(err)
	}

	restartGuest(ctx, &caller, params.InstanceID)

	err = workflow.ExecuteActivity(actx, "SetVolumeSize", activity.SetVolumeSizeParams{
		InstanceID: params.InstanceID,
		SizeGB:     params.NewSizeGB,
	}).Get(ctx, nil)
	if err != nil {
		return fail(err)
	}

	commitReservations(ctx, params.ReservationIDs)
	return setTaskStatus(ctx, params.InstanceID, model.TaskNone)
}
