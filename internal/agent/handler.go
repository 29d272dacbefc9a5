package agent

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/dbaas/internal/config"
	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/model"
)

// Handler is the agent's RPC surface. Each exported method is registered as
// an activity under its wire name on the instance's own task queue, so the
// control plane addresses exactly this guest.
type Handler struct {
	log        zerolog.Logger
	cfg        *config.Config
	db         *DatabaseAdmin
	backups    *BackupRunner
	api        *APIClient
	instanceID string
}

func NewHandler(log zerolog.Logger, cfg *config.Config) *Handler {
	db := NewDatabaseAdmin(log, cfg.MySQLDSN)
	return &Handler{
		log:        log.With().Str("component", "handler").Logger(),
		cfg:        cfg,
		db:         db,
		backups:    NewBackupRunner(log, db, cfg.ObjectStoreEndpoint, cfg.ObjectStoreKey, cfg.ObjectStoreSecret),
		api:        NewAPIClient(cfg.CoreAPIURL, cfg.AgentToken, log),
		instanceID: cfg.GuestInstanceID,
	}
}

// Register binds every wire method on the worker. The snake_case names are
// the contract with the control plane.
func (h *Handler) Register(w worker.Worker) {
	register := func(name string, fn any) {
		w.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
	}
	register(guest.MethodPrepare, h.Prepare)
	register(guest.MethodRestart, h.Restart)
	register(guest.MethodStopDB, h.StopDB)
	register(guest.MethodStartDBWithConfChanges, h.StartDBWithConfChanges)
	register(guest.MethodCreateDatabase, h.CreateDatabase)
	register(guest.MethodDeleteDatabase, h.DeleteDatabase)
	register(guest.MethodListDatabases, h.ListDatabases)
	register(guest.MethodCreateUser, h.CreateUser)
	register(guest.MethodDeleteUser, h.DeleteUser)
	register(guest.MethodListUsers, h.ListUsers)
	register(guest.MethodChangePasswords, h.ChangePasswords)
	register(guest.MethodGrantAccess, h.GrantAccess)
	register(guest.MethodRevokeAccess, h.RevokeAccess)
	register(guest.MethodListAccess, h.ListAccess)
	register(guest.MethodEnableRoot, h.EnableRoot)
	register(guest.MethodDisableRoot, h.DisableRoot)
	register(guest.MethodIsRootEnabled, h.IsRootEnabled)
	register(guest.MethodGetDiagnostics, h.GetDiagnostics)
	register(guest.MethodGetHWInfo, h.GetHWInfo)
	register(guest.MethodGetFilesystemStats, h.GetFilesystemStats)
	register(guest.MethodCreateBackup, h.CreateBackup)
	register(guest.MethodGetReplicationSnapshot, h.GetReplicationSnapshot)
	register(guest.MethodAttachReplicationSlave, h.AttachReplicationSlave)
	register(guest.MethodDetachReplica, h.DetachReplica)
	register(guest.MethodCleanupSourceOnDetach, h.CleanupSourceOnDetach)
	register(guest.MethodUpdateGuest, h.UpdateGuest)
}

func checkVersion(req guest.Request) error {
	if req.Version != "" && req.Version != guest.APIVersion {
		return fault.New(fault.BadValue,
			"unsupported guest API version %q (agent speaks %s)", req.Version, guest.APIVersion)
	}
	return nil
}

// Prepare brings the fresh guest to a running database: mount the data
// volume, lay down config, start the server, optionally restore a backup,
// then create the requested databases and users.
func (h *Handler) Prepare(ctx context.Context, params guest.PrepareParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}

	h.log.Info().Str("instance_id", params.InstanceID).Msg("preparing guest")
	_ = h.api.ReportStatus(ctx, h.instanceID, model.ServiceBuilding)

	if params.DevicePath != "" && params.MountPoint != "" {
		if err := h.mountDataVolume(ctx, params.DevicePath, params.MountPoint); err != nil {
			_ = h.api.ReportStatus(ctx, h.instanceID, model.ServiceFailed)
			return err
		}
	}
	if params.ConfigContents != "" {
		if err := h.db.WriteConfig(params.ConfigContents); err != nil {
			_ = h.api.ReportStatus(ctx, h.instanceID, model.ServiceFailed)
			return err
		}
	}
	if err := h.db.Restart(ctx); err != nil {
		_ = h.api.ReportStatus(ctx, h.instanceID, model.ServiceFailed)
		return err
	}

	if params.RestoreKey != "" {
		if err := h.backups.Restore(ctx, h.cfg.BackupContainer, params.RestoreKey); err != nil {
			_ = h.api.ReportStatus(ctx, h.instanceID, model.ServiceFailed)
			return err
		}
	}

	if len(params.Databases) > 0 {
		if err := h.db.CreateDatabases(ctx, params.Databases); err != nil {
			return err
		}
	}
	if len(params.Users) > 0 {
		if err := h.db.CreateUsers(ctx, params.Users); err != nil {
			return err
		}
	}

	return h.api.ReportStatus(ctx, h.instanceID, model.ServiceRunning)
}

func (h *Handler) mountDataVolume(ctx context.Context, device, mountPoint string) error {
	// mkfs only touches an unformatted device; an existing filesystem
	// survives re-prepare after an agent crash.
	check := exec.CommandContext(ctx, "blkid", device)
	if err := check.Run(); err != nil {
		mkfs := exec.CommandContext(ctx, "mkfs.ext4", "-m", "0", device)
		if output, err := mkfs.CombinedOutput(); err != nil {
			return fault.New(fault.GuestError, "format %s: %s: %v", device, string(output), err)
		}
	}
	mount := exec.CommandContext(ctx, "mount", device, mountPoint)
	if output, err := mount.CombinedOutput(); err != nil {
		return fault.New(fault.GuestError, "mount %s on %s: %s: %v", device, mountPoint, string(output), err)
	}
	return nil
}

func (h *Handler) Restart(ctx context.Context, req guest.Request) error {
	if err := checkVersion(req); err != nil {
		return err
	}
	if err := h.db.Restart(ctx); err != nil {
		_ = h.api.ReportStatus(ctx, h.instanceID, model.ServiceCrashed)
		return err
	}
	return h.api.ReportStatus(ctx, h.instanceID, model.ServiceRunning)
}

func (h *Handler) StopDB(ctx context.Context, params guest.StopParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	if err := h.db.Stop(ctx, params.DoNotStartOnReboot); err != nil {
		return err
	}
	return h.api.ReportStatus(ctx, h.instanceID, model.ServiceShutdown)
}

func (h *Handler) StartDBWithConfChanges(ctx context.Context, params guest.StartWithConfParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	if err := h.db.StartWithConfig(ctx, params.ConfigContents); err != nil {
		return err
	}
	return h.api.ReportStatus(ctx, h.instanceID, model.ServiceRunning)
}

func (h *Handler) CreateDatabase(ctx context.Context, params guest.CreateDatabaseParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	return h.db.CreateDatabases(ctx, params.Databases)
}

func (h *Handler) DeleteDatabase(ctx context.Context, params guest.DeleteDatabaseParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	return h.db.DeleteDatabase(ctx, params.Name)
}

func (h *Handler) ListDatabases(ctx context.Context, params guest.ListParams) (*guest.ListDatabasesResult, error) {
	if err := checkVersion(params.Request); err != nil {
		return nil, err
	}
	return h.db.ListDatabases(ctx, params.Limit, params.Marker)
}

func (h *Handler) CreateUser(ctx context.Context, params guest.CreateUserParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	return h.db.CreateUsers(ctx, params.Users)
}

func (h *Handler) DeleteUser(ctx context.Context, params guest.DeleteUserParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	return h.db.DeleteUser(ctx, params.Name)
}

func (h *Handler) ListUsers(ctx context.Context, params guest.ListParams) (*guest.ListUsersResult, error) {
	if err := checkVersion(params.Request); err != nil {
		return nil, err
	}
	return h.db.ListUsers(ctx, params.Limit, params.Marker)
}

func (h *Handler) ChangePasswords(ctx context.Context, params guest.ChangePasswordsParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	return h.db.ChangePasswords(ctx, params.Users)
}

func (h *Handler) GrantAccess(ctx context.Context, params guest.AccessParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	return h.db.GrantAccess(ctx, params.Username, params.Databases)
}

func (h *Handler) RevokeAccess(ctx context.Context, params guest.AccessParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	return h.db.RevokeAccess(ctx, params.Username, params.Databases)
}

func (h *Handler) ListAccess(ctx context.Context, params guest.AccessParams) (*guest.ListDatabasesResult, error) {
	if err := checkVersion(params.Request); err != nil {
		return nil, err
	}
	return h.db.ListAccess(ctx, params.Username)
}

func (h *Handler) EnableRoot(ctx context.Context, req guest.Request) (*guest.EnableRootResult, error) {
	if err := checkVersion(req); err != nil {
		return nil, err
	}
	return h.db.EnableRoot(ctx)
}

func (h *Handler) DisableRoot(ctx context.Context, req guest.Request) error {
	if err := checkVersion(req); err != nil {
		return err
	}
	return h.db.DisableRoot(ctx)
}

func (h *Handler) IsRootEnabled(ctx context.Context, req guest.Request) (bool, error) {
	if err := checkVersion(req); err != nil {
		return false, err
	}
	return h.db.IsRootEnabled(ctx)
}

func (h *Handler) GetDiagnostics(ctx context.Context, req guest.Request) (*guest.DiagnosticsResult, error) {
	if err := checkVersion(req); err != nil {
		return nil, err
	}
	return Diagnostics()
}

func (h *Handler) GetHWInfo(ctx context.Context, req guest.Request) (*guest.HWInfoResult, error) {
	if err := checkVersion(req); err != nil {
		return nil, err
	}
	return HWInfo()
}

func (h *Handler) GetFilesystemStats(ctx context.Context, req guest.Request) (*guest.FilesystemStatsResult, error) {
	if err := checkVersion(req); err != nil {
		return nil, err
	}
	return FilesystemStats(h.cfg.DataMountPoint)
}

// CreateBackup runs the backup job and reports the outcome to core-api out
// of band. The activity itself only fails when the job could not start;
// dump or upload failures land in the backup record instead.
func (h *Handler) CreateBackup(ctx context.Context, params guest.CreateBackupParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}

	result, err := h.backups.Run(ctx, params.BackupID, params.Bucket, params.ObjectKey)
	if err != nil {
		h.log.Error().Err(err).Str("backup_id", params.BackupID).Msg("backup failed")
		if repErr := h.api.CompleteBackup(ctx, params.BackupID, &BackupCompletion{
			State: string(model.BackupFailed),
		}); repErr != nil {
			h.log.Error().Err(repErr).Str("backup_id", params.BackupID).Msg("failed to report backup failure")
		}
		return err
	}

	return h.api.CompleteBackup(ctx, params.BackupID, &BackupCompletion{
		State:           string(model.BackupCompleted),
		Location:        result.Location,
		Checksum:        result.Checksum,
		SizeBytes:       result.SizeBytes,
		BackupTimestamp: result.Timestamp,
	})
}

func (h *Handler) GetReplicationSnapshot(ctx context.Context, params guest.ReplicationSnapshotParams) (*guest.ReplicationSnapshotResult, error) {
	if err := checkVersion(params.Request); err != nil {
		return nil, err
	}
	return h.db.GetReplicationSnapshot(ctx, h.backups, params.BackupID, params.Bucket)
}

func (h *Handler) AttachReplicationSlave(ctx context.Context, params guest.AttachReplicaParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	return h.db.AttachReplica(ctx, h.backups, params.Snapshot, h.cfg.BackupContainer)
}

func (h *Handler) DetachReplica(ctx context.Context, params guest.DetachReplicaParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	return h.db.DetachReplica(ctx)
}

func (h *Handler) CleanupSourceOnDetach(ctx context.Context, params guest.CleanupSourceParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}
	return h.db.CleanupSource(ctx, params.ReplicaID, params.ForFailover)
}

// UpdateGuest downloads and installs a new agent build, then exits so the
// init system restarts into it.
func (h *Handler) UpdateGuest(ctx context.Context, params guest.UpdateGuestParams) error {
	if err := checkVersion(params.Request); err != nil {
		return err
	}

	h.log.Info().Str("url", params.URL).Msg("self-updating agent")

	cmd := exec.CommandContext(ctx, "bash", "-c",
		fmt.Sprintf("curl -fsSL %q -o /usr/local/bin/guestagent.new && chmod +x /usr/local/bin/guestagent.new && mv /usr/local/bin/guestagent.new /usr/local/bin/guestagent", params.URL))
	if output, err := cmd.CombinedOutput(); err != nil {
		return fault.New(fault.GuestError, "self-update: %s: %v", string(output), err)
	}
	return h.systemdRestartSelf(ctx)
}

func (h *Handler) systemdRestartSelf(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "systemctl", "restart", "--no-block", "guestagent")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fault.New(fault.GuestError, "restart agent unit: %s: %v", string(output), err)
	}
	return nil
}

// Reporter builds the liveness reporter sharing the handler's database and
// API clients.
func (h *Handler) Reporter(interval time.Duration) *Reporter {
	return NewReporter(h.log, h.api, h.db, h.instanceID, interval)
}
