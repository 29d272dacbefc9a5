package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/activity"
	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/model"
)

// CreateBackupParams carries the parameters for CreateBackupWorkflow.
type CreateBackupParams struct {
	InstanceID string             `json:"instance_id"`
	BackupID   string             `json:"backup_id"`
	BackupType string             `json:"backup_type"`
	Bucket     string             `json:"bucket"`
	ObjectKey  string             `json:"object_key"`
	Timeouts   model.TaskTimeouts `json:"timeouts"`
}

// CreateBackupWorkflow verifies the object store accepts the configured
// credentials, then casts the backup job into the guest. The guest streams
// the artifact itself and reports completion through the agent write path,
// so the workflow's job ends once the cast is confirmed sent.
func CreateBackupWorkflow(ctx workflow.Context, params CreateBackupParams) error {
	actx := engineCtx(ctx)

	if err := workflow.ExecuteActivity(actx, "VerifyObjectStoreAccount", nil).Get(ctx, nil); err != nil {
		failBackup(ctx, params.BackupID)
		return err
	}

	create := guest.CreateBackupParams{
		Request:    guest.Request{Version: guest.APIVersion},
		BackupID:   params.BackupID,
		BackupType: params.BackupType,
		Bucket:     params.Bucket,
		ObjectKey:  params.ObjectKey,
	}
	if err := guest.Cast(ctx, params.InstanceID, guest.MethodCreateBackup, create, params.Timeouts.AgentSnapshot); err != nil {
		failBackup(ctx, params.BackupID)
		return err
	}
	return nil
}

// failBackup marks the backup FAILED when the job never reached the guest.
func failBackup(ctx workflow.Context, backupID string) {
	err := workflow.ExecuteActivity(engineCtx(ctx), "UpdateBackupState", activity.UpdateBackupStateParams{
		BackupID: backupID,
		State:    model.BackupFailed,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("Failed to mark backup failed", "backup_id", backupID, "error", err)
	}
}

// DeleteBackupParams carries the parameters for DeleteBackupWorkflow.
type DeleteBackupParams struct {
	TenantID string `json:"tenant_id"`
	BackupID string `json:"backup_id"`
}

// DeleteBackupWorkflow tombstones the backup row and releases its quota
// slot. The artifact itself ages out of the object store by bucket policy.
func DeleteBackupWorkflow(ctx workflow.Context, params DeleteBackupParams) error {
	actx := engineCtx(ctx)

	var releaseIDs []string
	err := workflow.ExecuteActivity(actx, "Reserve", activity.ReserveParams{
		TenantID: params.TenantID,
		Deltas:   map[string]int{model.ResourceBackups: -1},
	}).Get(ctx, &releaseIDs)
	if err != nil {
		return err
	}

	if err := workflow.ExecuteActivity(actx, "SoftDeleteBackup", params.BackupID).Get(ctx, nil); err != nil {
		rollbackReservations(ctx, releaseIDs)
		return err
	}

	commitReservations(ctx, releaseIDs)
	return nil
}
