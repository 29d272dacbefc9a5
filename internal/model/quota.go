package model

import "time"

// Quota resource names registered with the engine.
const (
	ResourceInstances = "instances"
	ResourceVolumes   = "volumes"
	ResourceBackups   = "backups"
)

// Quota is a per-tenant hard limit for one resource. A tenant without a
// persisted row gets a synthesized Quota carrying the configured default.
type Quota struct {
	ID        string    `json:"id,omitempty"`
	TenantID  string    `json:"tenant_id"`
	Resource  string    `json:"resource"`
	HardLimit int       `json:"hard_limit"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuotaUsage is the live counter pair for one (tenant, resource).
type QuotaUsage struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Resource  string    `json:"resource"`
	InUse     int       `json:"in_use"`
	Reserved  int       `json:"reserved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReservationStatus string

const (
	ReservationReserved   ReservationStatus = "RESERVED"
	ReservationCommitted  ReservationStatus = "COMMITTED"
	ReservationRolledBack ReservationStatus = "ROLLEDBACK"
)

// Reservation is one pending signed delta against a usage row.
type Reservation struct {
	ID        string            `json:"id"`
	UsageID   string            `json:"usage_id"`
	Resource  string            `json:"resource"`
	Delta     int               `json:"delta"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
