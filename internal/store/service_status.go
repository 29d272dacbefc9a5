package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/model"
)

// ServiceStatusStore persists the guest-reported database process status,
// one row per live instance.
type ServiceStatusStore struct {
	db DB
}

func NewServiceStatusStore(db DB) *ServiceStatusStore {
	return &ServiceStatusStore{db: db}
}

// Upsert writes the status for an instance, creating the row on first write.
func (s *ServiceStatusStore) Upsert(ctx context.Context, instanceID string, status model.ServiceStatus) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO service_statuses (instance_id, status, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (instance_id) DO UPDATE SET status = $2, updated_at = now()`,
		instanceID, string(status))
	if err != nil {
		return fmt.Errorf("upsert service status for %s: %w", instanceID, err)
	}
	return nil
}

func (s *ServiceStatusStore) Get(ctx context.Context, instanceID string) (*model.ServiceStatusRecord, error) {
	var r model.ServiceStatusRecord
	var status string
	err := s.db.QueryRow(ctx,
		`SELECT instance_id, status, updated_at FROM service_statuses WHERE instance_id = $1`,
		instanceID,
	).Scan(&r.InstanceID, &status, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.New(fault.NotFound, "service status for instance %s not found", instanceID)
		}
		return nil, fmt.Errorf("get service status for %s: %w", instanceID, err)
	}
	r.Status = model.ServiceStatus(status)
	return &r, nil
}

// Delete removes the row; called when the instance is deleted.
func (s *ServiceStatusStore) Delete(ctx context.Context, instanceID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM service_statuses WHERE instance_id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("delete service status for %s: %w", instanceID, err)
	}
	return nil
}

// HeartbeatStore persists the agent liveness timestamps.
type HeartbeatStore struct {
	db DB
}

func NewHeartbeatStore(db DB) *HeartbeatStore {
	return &HeartbeatStore{db: db}
}

func (s *HeartbeatStore) Upsert(ctx context.Context, instanceID string, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO agent_heartbeats (instance_id, updated_at)
		 VALUES ($1, $2)
		 ON CONFLICT (instance_id) DO UPDATE SET updated_at = $2`,
		instanceID, at.UTC())
	if err != nil {
		return fmt.Errorf("upsert heartbeat for %s: %w", instanceID, err)
	}
	return nil
}

func (s *HeartbeatStore) Get(ctx context.Context, instanceID string) (*model.AgentHeartbeat, error) {
	var h model.AgentHeartbeat
	err := s.db.QueryRow(ctx,
		`SELECT instance_id, updated_at FROM agent_heartbeats WHERE instance_id = $1`,
		instanceID,
	).Scan(&h.InstanceID, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.New(fault.NotFound, "heartbeat for instance %s not found", instanceID)
		}
		return nil, fmt.Errorf("get heartbeat for %s: %w", instanceID, err)
	}
	return &h, nil
}

func (s *HeartbeatStore) Delete(ctx context.Context, instanceID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM agent_heartbeats WHERE instance_id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("delete heartbeat for %s: %w", instanceID, err)
	}
	return nil
}
