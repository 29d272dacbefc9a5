package activity

import (
	"context"

	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/store"
)

// InstanceDB contains activities that read from and update the control
// plane database on behalf of engine workflows.
type InstanceDB struct {
	instances     *store.InstanceStore
	serviceStatus *store.ServiceStatusStore
	heartbeats    *store.HeartbeatStore
	backups       *store.BackupStore
	rootHistory   *store.RootHistoryStore
}

// NewInstanceDB creates a new InstanceDB activity struct.
func NewInstanceDB(db store.DB) *InstanceDB {
	return &InstanceDB{
		instances:     store.NewInstanceStore(db),
		serviceStatus: store.NewServiceStatusStore(db),
		heartbeats:    store.NewHeartbeatStore(db),
		backups:       store.NewBackupStore(db),
		rootHistory:   store.NewRootHistoryStore(db),
	}
}

// GetInstance loads an instance without tenant scoping; workflows only ever
// receive ids the sync layer already authorized.
func (a *InstanceDB) GetInstance(ctx context.Context, instanceID string) (*model.Instance, error) {
	return a.instances.GetByID(ctx, "", instanceID)
}

// UpdateTaskStatusParams holds the parameters for UpdateTaskStatus.
type UpdateTaskStatusParams struct {
	InstanceID string
	TaskStatus string
}

// UpdateTaskStatus moves the instance's engine task status.
func (a *InstanceDB) UpdateTaskStatus(ctx context.Context, params UpdateTaskStatusParams) error {
	return a.instances.UpdateTaskStatus(ctx, params.InstanceID, params.TaskStatus)
}

// SetServiceStatusParams holds the parameters for SetServiceStatus.
type SetServiceStatusParams struct {
	InstanceID string
	Status     model.ServiceStatus
}

// SetServiceStatus overwrites the guest-reported database status. The
// engine uses this to force PAUSED before waiting for a fresh report.
func (a *InstanceDB) SetServiceStatus(ctx context.Context, params SetServiceStatusParams) error {
	return a.serviceStatus.Upsert(ctx, params.InstanceID, params.Status)
}

// GetServiceStatus reads the current guest-reported status.
func (a *InstanceDB) GetServiceStatus(ctx context.Context, instanceID string) (*model.ServiceStatusRecord, error) {
	return a.serviceStatus.Get(ctx, instanceID)
}

// SetVolumeIDParams holds the parameters for SetVolumeID.
type SetVolumeIDParams struct {
	InstanceID string
	VolumeID   string
}

// SetVolumeID records the substrate volume id on the instance row.
func (a *InstanceDB) SetVolumeID(ctx context.Context, params SetVolumeIDParams) error {
	return a.instances.SetVolumeID(ctx, params.InstanceID, params.VolumeID)
}

// SetComputeInstanceIDParams holds the parameters for SetComputeInstanceID.
type SetComputeInstanceIDParams struct {
	InstanceID string
	ServerID   string
}

// SetComputeInstanceID records the substrate server id on the instance row.
func (a *InstanceDB) SetComputeInstanceID(ctx context.Context, params SetComputeInstanceIDParams) error {
	return a.instances.SetComputeInstanceID(ctx, params.InstanceID, params.ServerID)
}

// SetHostnameParams holds the parameters for SetHostname.
type SetHostnameParams struct {
	InstanceID string
	Hostname   string
}

// SetHostname records the published DNS name on the instance row.
func (a *InstanceDB) SetHostname(ctx context.Context, params SetHostnameParams) error {
	return a.instances.SetHostname(ctx, params.InstanceID, params.Hostname)
}

// SetFlavorParams holds the parameters for SetFlavor.
type SetFlavorParams struct {
	InstanceID string
	FlavorID   string
}

// SetFlavor records the new flavor after a confirmed resize.
func (a *InstanceDB) SetFlavor(ctx context.Context, params SetFlavorParams) error {
	return a.instances.SetFlavor(ctx, params.InstanceID, params.FlavorID)
}

// SetVolumeSizeParams holds the parameters for SetVolumeSize.
type SetVolumeSizeParams struct {
	InstanceID string
	SizeGB     int
}

// SetVolumeSize records the new volume size after a successful extend.
func (a *InstanceDB) SetVolumeSize(ctx context.Context, params SetVolumeSizeParams) error {
	return a.instances.SetVolumeSize(ctx, params.InstanceID, params.SizeGB)
}

// SoftDeleteInstance tombstones the instance row and clears its status and
// heartbeat rows.
func (a *InstanceDB) SoftDeleteInstance(ctx context.Context, instanceID string) error {
	if err := a.serviceStatus.Delete(ctx, instanceID); err != nil {
		return err
	}
	if err := a.heartbeats.Delete(ctx, instanceID); err != nil {
		return err
	}
	return a.instances.SoftDelete(ctx, instanceID)
}

// ListActiveInstances returns every live instance for the reconciler.
func (a *InstanceDB) ListActiveInstances(ctx context.Context) ([]model.Instance, error) {
	return a.instances.ListActive(ctx)
}

// GetHeartbeat reads the agent's last-seen timestamp.
func (a *InstanceDB) GetHeartbeat(ctx context.Context, instanceID string) (*model.AgentHeartbeat, error) {
	return a.heartbeats.Get(ctx, instanceID)
}

// UpdateBackupStateParams holds the parameters for UpdateBackupState.
type UpdateBackupStateParams struct {
	BackupID string
	State    model.BackupState
}

// UpdateBackupState moves a backup's state; used by the engine to fail
// backups whose guest cast never went out.
func (a *InstanceDB) UpdateBackupState(ctx context.Context, params UpdateBackupStateParams) error {
	return a.backups.UpdateState(ctx, params.BackupID, params.State)
}

// SoftDeleteBackup tombstones a backup row.
func (a *InstanceDB) SoftDeleteBackup(ctx context.Context, backupID string) error {
	return a.backups.SoftDelete(ctx, backupID)
}

// RecordRootHistoryParams holds the parameters for RecordRootHistory.
type RecordRootHistoryParams struct {
	InstanceID string
	UserID     string
}

// RecordRootHistory stores the first root enablement for the instance.
func (a *InstanceDB) RecordRootHistory(ctx context.Context, params RecordRootHistoryParams) error {
	_, err := a.rootHistory.Record(ctx, params.InstanceID, params.UserID)
	return err
}
