package model

import "time"

type BackupState string

const (
	BackupNew       BackupState = "NEW"
	BackupBuilding  BackupState = "BUILDING"
	BackupSaving    BackupState = "SAVING"
	BackupCompleted BackupState = "COMPLETED"
	BackupFailed    BackupState = "FAILED"
)

// BackupRunningStates are the non-terminal states; at most one backup per
// instance may be in one of them.
var BackupRunningStates = []BackupState{BackupNew, BackupBuilding, BackupSaving}

func (s BackupState) Running() bool {
	return s == BackupNew || s == BackupBuilding || s == BackupSaving
}

type Backup struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Location        *string    `json:"location,omitempty"`
	BackupType      string     `json:"backup_type"`
	SizeBytes       int64      `json:"size_bytes"`
	TenantID        string     `json:"tenant_id"`
	State           BackupState `json:"state"`
	InstanceID      string     `json:"instance_id"`
	Checksum        *string    `json:"checksum,omitempty"`
	BackupTimestamp *time.Time `json:"backup_timestamp,omitempty"`
	Deleted         bool       `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"-"`
}
