package guest

import "github.com/edvin/dbaas/internal/model"

// Request wraps every guest call so the agent can check the API version
// before dispatching.
type Request struct {
	Version string `json:"version"`
}

// PrepareParams carries everything the fresh guest needs to bring up its
// database for the first time.
type PrepareParams struct {
	Request
	InstanceID     string               `json:"instance_id"`
	Databases      []model.DatabaseSpec `json:"databases,omitempty"`
	Users          []model.UserSpec     `json:"users,omitempty"`
	MemoryMB       int                  `json:"memory_mb"`
	ConfigContents string               `json:"config_contents,omitempty"`
	DevicePath     string               `json:"device_path,omitempty"`
	MountPoint     string               `json:"mount_point,omitempty"`
	BackupID       string               `json:"backup_id,omitempty"`
	RestoreKey     string               `json:"restore_key,omitempty"`
}

// StartWithConfParams restarts the database with a rewritten config,
// used after a flavor resize changes the memory budget.
type StartWithConfParams struct {
	Request
	ConfigContents string `json:"config_contents"`
}

// StopParams stops the database process. DoNotStartOnReboot pins it down
// across the reboot a resize implies.
type StopParams struct {
	Request
	DoNotStartOnReboot bool `json:"do_not_start_on_reboot"`
}

type CreateUserParams struct {
	Request
	Users []model.UserSpec `json:"users"`
}

type DeleteUserParams struct {
	Request
	Name string `json:"name"`
}

type ChangePasswordsParams struct {
	Request
	Users []model.UserSpec `json:"users"`
}

type AccessParams struct {
	Request
	Username  string   `json:"username"`
	Databases []string `json:"databases,omitempty"`
}

type CreateDatabaseParams struct {
	Request
	Databases []model.DatabaseSpec `json:"databases"`
}

type DeleteDatabaseParams struct {
	Request
	Name string `json:"name"`
}

// ListParams pages through guest-side collections with the same
// limit/marker convention the control plane API uses.
type ListParams struct {
	Request
	Limit  int    `json:"limit,omitempty"`
	Marker string `json:"marker,omitempty"`
}

type ListUsersResult struct {
	Users      []model.UserSpec `json:"users"`
	NextMarker string           `json:"next_marker,omitempty"`
}

type ListDatabasesResult struct {
	Databases  []model.DatabaseSpec `json:"databases"`
	NextMarker string               `json:"next_marker,omitempty"`
}

type EnableRootResult struct {
	User model.UserSpec `json:"user"`
}

// CreateBackupParams asks the guest to dump, compress and stream one backup
// into the object store, then report completion out of band.
type CreateBackupParams struct {
	Request
	BackupID   string `json:"backup_id"`
	BackupType string `json:"backup_type"`
	Bucket     string `json:"bucket"`
	ObjectKey  string `json:"object_key"`
}

// ReplicationSnapshotParams prepares a snapshot a new replica can seed from.
type ReplicationSnapshotParams struct {
	Request
	BackupID string `json:"backup_id"`
	Bucket   string `json:"bucket"`
}

// ReplicationSnapshotResult points the replica at the snapshot and the
// master's coordinates.
type ReplicationSnapshotResult struct {
	BackupID     string `json:"backup_id"`
	Location     string `json:"location"`
	MasterHost   string `json:"master_host"`
	MasterPort   int    `json:"master_port"`
	LogFile      string `json:"log_file"`
	LogPosition  int64  `json:"log_position"`
	ReplUser     string `json:"repl_user"`
	ReplPassword string `json:"repl_password"`
}

type AttachReplicaParams struct {
	Request
	Snapshot ReplicationSnapshotResult `json:"snapshot"`
}

// DetachReplicaParams stops replication on the replica. ForFailover skips
// the sanity checks a healthy detach runs, for when the primary is already
// gone.
type DetachReplicaParams struct {
	Request
	ForFailover bool `json:"for_failover"`
}

// CleanupSourceParams tells the former primary to drop the replication
// user and grants it created for a now-detached replica.
type CleanupSourceParams struct {
	Request
	ReplicaID   string `json:"replica_id"`
	ForFailover bool   `json:"for_failover"`
}

// DiagnosticsResult is the agent's self-report.
type DiagnosticsResult struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	UptimeSec  int64  `json:"uptime_sec"`
	VMFreeKB   int64  `json:"vm_free_kb"`
	VMSizeKB   int64  `json:"vm_size_kb"`
	Threads    int    `json:"threads"`
}

type HWInfoResult struct {
	MemTotalMB int `json:"mem_total_mb"`
	CPUCount   int `json:"cpu_count"`
}

type FilesystemStatsResult struct {
	MountPoint string  `json:"mount_point"`
	TotalGB    float64 `json:"total_gb"`
	UsedGB     float64 `json:"used_gb"`
	FreeGB     float64 `json:"free_gb"`
	UsedPct    float64 `json:"used_pct"`
}

// UpdateGuestParams tells the agent to self-update to the given build.
type UpdateGuestParams struct {
	Request
	URL string `json:"url"`
}
