package model

import "time"

// Instance is the user-visible managed database. Substrate identifiers
// (ComputeInstanceID, VolumeID) never leave the control plane.
type Instance struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	Name              string     `json:"name"`
	FlavorID          string     `json:"flavor_id"`
	VolumeSize        int        `json:"volume_size"`
	VolumeID          *string    `json:"-"`
	ComputeInstanceID *string    `json:"-"`
	Hostname          *string    `json:"hostname,omitempty"`
	ServiceType       string     `json:"service_type"`
	TaskStatusName    string     `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Deleted           bool       `json:"-"`
	DeletedAt         *time.Time `json:"-"`
}

// TaskStatus resolves the persisted task status name to its variant.
func (i *Instance) TaskStatus() TaskStatus {
	return TaskStatusByName(i.TaskStatusName)
}

// DatabaseSpec is a database to create inside the guest at prepare time.
type DatabaseSpec struct {
	Name      string `json:"name"`
	Charset   string `json:"character_set,omitempty"`
	Collation string `json:"collate,omitempty"`
}

// UserSpec is a database user to create inside the guest at prepare time.
type UserSpec struct {
	Name      string   `json:"name"`
	Password  string   `json:"password"`
	Databases []string `json:"databases,omitempty"`
}

// ServiceStatusRecord is the persisted guest status, one row per live
// instance.
type ServiceStatusRecord struct {
	InstanceID string        `json:"instance_id"`
	Status     ServiceStatus `json:"status"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// AgentHeartbeat is the last-seen timestamp from the in-guest agent.
type AgentHeartbeat struct {
	InstanceID string    `json:"instance_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Alive reports whether the agent has been heard from within ttl.
func (h *AgentHeartbeat) Alive(now time.Time, ttl time.Duration) bool {
	return now.Sub(h.UpdatedAt) < ttl
}

// RootHistory records the first time the privileged root account was enabled
// on an instance. Append-only.
type RootHistory struct {
	InstanceID string    `json:"instance_id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}
