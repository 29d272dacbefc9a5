package workflow

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/activity"
	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/substrate"
)

// DeleteInstanceParams carries the parameters for DeleteInstanceWorkflow.
type DeleteInstanceParams struct {
	InstanceID string             `json:"instance_id"`
	TenantID   string             `json:"tenant_id"`
	Timeouts   model.TaskTimeouts `json:"timeouts"`
}

// DeleteInstanceWorkflow tears an instance down best-effort: DNS record,
// server, volume, then the database rows. Substrate failures are logged and
// skipped so a half-dead machine cannot pin the tenant's quota forever; the
// quota release rides the same workflow as a negative reservation and
// commits once the rows are gone.
func DeleteInstanceWorkflow(ctx workflow.Context, params DeleteInstanceParams) error {
	logger := workflow.GetLogger(ctx)
	actx := engineCtx(ctx)

	var inst model.Instance
	if err := workflow.ExecuteActivity(actx, "GetInstance", params.InstanceID).Get(ctx, &inst); err != nil {
		return err
	}

	// Open the release up front; it commits only after teardown finishes.
	var releaseIDs []string
	err := workflow.ExecuteActivity(actx, "Reserve", activity.ReserveParams{
		TenantID: params.TenantID,
		Deltas: map[string]int{
			model.ResourceInstances: -1,
			model.ResourceVolumes:   -inst.VolumeSize,
		},
	}).Get(ctx, &releaseIDs)
	if err != nil {
		return err
	}

	if err := workflow.ExecuteActivity(actx, "DeleteDNSEntry", params.InstanceID).Get(ctx, nil); err != nil {
		if !fault.Is(err, fault.DNSRecordNotFound) {
			logger.Warn("Failed to delete DNS entry", "instance_id", params.InstanceID, "error", err)
		}
	}

	if inst.ComputeInstanceID != nil {
		deleteServer(ctx, *inst.ComputeInstanceID, params.Timeouts.ServerDelete)
	}

	if inst.VolumeID != nil {
		if err := workflow.ExecuteActivity(actx, "DeleteVolume", *inst.VolumeID).Get(ctx, nil); err != nil {
			if !fault.IsAnyNotFound(err) {
				logger.Warn("Failed to delete volume", "volume_id", *inst.VolumeID, "error", err)
			}
		}
	}

	if err := workflow.ExecuteActivity(actx, "SoftDeleteInstance", params.InstanceID).Get(ctx, nil); err != nil {
		rollbackReservations(ctx, releaseIDs)
		return err
	}

	commitReservations(ctx, releaseIDs)
	return nil
}

// deleteServer issues the teardown and waits for the substrate to confirm
// the machine is gone. Errors degrade to warnings.
func deleteServer(ctx workflow.Context, serverID string, timeout time.Duration) {
	logger := workflow.GetLogger(ctx)
	actx := engineCtx(ctx)

	if err := workflow.ExecuteActivity(actx, "DeleteServer", serverID).Get(ctx, nil); err != nil {
		if fault.Is(err, fault.ComputeInstanceNotFound) {
			return
		}
		logger.Warn("Failed to delete server", "server_id", serverID, "error", err)
		return
	}

	err := pollUntil(ctx, 2*time.Second, timeout, "server teardown", func() (bool, error) {
		var current substrate.Server
		err := workflow.ExecuteActivity(engineCtx(ctx), "GetServer", serverID).Get(ctx, &current)
		if err != nil {
			if fault.Is(err, fault.ComputeInstanceNotFound) {
				return true, nil
			}
			return false, err
		}
		if current.Status == model.ServerDeleted {
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		logger.Warn("Server teardown did not confirm", "server_id", serverID, "error", err)
	}
}
