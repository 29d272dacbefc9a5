package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/platform"
)

const instanceColumns = `id, tenant_id, name, flavor_id, volume_size, volume_id,
	compute_instance_id, hostname, service_type, task_status, created_at,
	updated_at, deleted, deleted_at`

type InstanceStore struct {
	db DB
}

func NewInstanceStore(db DB) *InstanceStore {
	return &InstanceStore{db: db}
}

func validateInstance(inst *model.Instance) error {
	if inst.Name == "" {
		return fault.New(fault.InvalidModel, "instance name is required")
	}
	if inst.TenantID == "" {
		return fault.New(fault.InvalidModel, "instance tenant_id is required")
	}
	if inst.FlavorID == "" {
		return fault.New(fault.InvalidModel, "instance flavor_id is required")
	}
	if inst.VolumeSize < 0 {
		return fault.New(fault.InvalidModel, "instance volume_size must not be negative")
	}
	if inst.ServiceType == "" {
		return fault.New(fault.InvalidModel, "instance service_type is required")
	}
	return nil
}

// Create assigns an ID, stamps timestamps, validates and persists.
func (s *InstanceStore) Create(ctx context.Context, inst *model.Instance) error {
	if err := validateInstance(inst); err != nil {
		return err
	}
	if inst.ID == "" {
		inst.ID = platform.NewID()
	}
	if inst.TaskStatusName == "" {
		inst.TaskStatusName = model.TaskNone.Name
	}
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO instances (id, tenant_id, name, flavor_id, volume_size, volume_id,
		   compute_instance_id, hostname, service_type, task_status, created_at, updated_at, deleted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false)`,
		inst.ID, inst.TenantID, inst.Name, inst.FlavorID, inst.VolumeSize, inst.VolumeID,
		inst.ComputeInstanceID, inst.Hostname, inst.ServiceType, inst.TaskStatusName,
		inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

func scanInstance(row pgx.Row) (*model.Instance, error) {
	var i model.Instance
	err := row.Scan(&i.ID, &i.TenantID, &i.Name, &i.FlavorID, &i.VolumeSize, &i.VolumeID,
		&i.ComputeInstanceID, &i.Hostname, &i.ServiceType, &i.TaskStatusName,
		&i.CreatedAt, &i.UpdatedAt, &i.Deleted, &i.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// GetByID loads a live instance. An empty tenantID skips tenant scoping
// (admin path).
func (s *InstanceStore) GetByID(ctx context.Context, tenantID, id string) (*model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1 AND deleted = false`
	args := []any{id}
	if tenantID != "" {
		query += ` AND tenant_id = $2`
		args = append(args, tenantID)
	}

	inst, err := scanInstance(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.New(fault.NotFound, "instance %s not found", id)
		}
		return nil, fmt.Errorf("get instance %s: %w", id, err)
	}
	return inst, nil
}

// UpdateTaskStatus moves the engine's task status for an instance.
func (s *InstanceStore) UpdateTaskStatus(ctx context.Context, id, taskStatus string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE instances SET task_status = $1, updated_at = now() WHERE id = $2`,
		taskStatus, id)
	if err != nil {
		return fmt.Errorf("update instance %s task status: %w", id, err)
	}
	return nil
}

// SetVolumeID records the substrate volume before any poll runs, so a crash
// cannot leak the volume.
func (s *InstanceStore) SetVolumeID(ctx context.Context, id, volumeID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE instances SET volume_id = $1, updated_at = now() WHERE id = $2`,
		volumeID, id)
	if err != nil {
		return fmt.Errorf("set instance %s volume id: %w", id, err)
	}
	return nil
}

// SetComputeInstanceID records the substrate server id.
func (s *InstanceStore) SetComputeInstanceID(ctx context.Context, id, serverID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE instances SET compute_instance_id = $1, updated_at = now() WHERE id = $2`,
		serverID, id)
	if err != nil {
		return fmt.Errorf("set instance %s compute id: %w", id, err)
	}
	return nil
}

// SetHostname records the DNS name assigned to the instance.
func (s *InstanceStore) SetHostname(ctx context.Context, id, hostname string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE instances SET hostname = $1, updated_at = now() WHERE id = $2`,
		hostname, id)
	if err != nil {
		return fmt.Errorf("set instance %s hostname: %w", id, err)
	}
	return nil
}

// SetFlavor records the flavor after a successful resize.
func (s *InstanceStore) SetFlavor(ctx context.Context, id, flavorID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE instances SET flavor_id = $1, updated_at = now() WHERE id = $2`,
		flavorID, id)
	if err != nil {
		return fmt.Errorf("set instance %s flavor: %w", id, err)
	}
	return nil
}

// SetVolumeSize records the volume size after a successful volume resize.
func (s *InstanceStore) SetVolumeSize(ctx context.Context, id string, size int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE instances SET volume_size = $1, updated_at = now() WHERE id = $2`,
		size, id)
	if err != nil {
		return fmt.Errorf("set instance %s volume size: %w", id, err)
	}
	return nil
}

// SoftDelete tombstones the row. Unique lookups filter deleted rows out.
func (s *InstanceStore) SoftDelete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE instances SET deleted = true, deleted_at = now(), updated_at = now() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("soft delete instance %s: %w", id, err)
	}
	return nil
}

// ListByTenant returns one page of live instances in id order, plus the
// marker for the next page (empty when this is the last page).
func (s *InstanceStore) ListByTenant(ctx context.Context, tenantID string, limit int, marker string) ([]model.Instance, string, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE deleted = false`
	args := []any{}
	argIdx := 1

	if tenantID != "" {
		query += fmt.Sprintf(` AND tenant_id = $%d`, argIdx)
		args = append(args, tenantID)
		argIdx++
	}
	if marker != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, marker)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list instances for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var instances []model.Instance
	for rows.Next() {
		var i model.Instance
		if err := rows.Scan(&i.ID, &i.TenantID, &i.Name, &i.FlavorID, &i.VolumeSize, &i.VolumeID,
			&i.ComputeInstanceID, &i.Hostname, &i.ServiceType, &i.TaskStatusName,
			&i.CreatedAt, &i.UpdatedAt, &i.Deleted, &i.DeletedAt); err != nil {
			return nil, "", fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, i)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate instances: %w", err)
	}

	return paginate(instances, limit, func(i model.Instance) string { return i.ID })
}

// ListActive returns every live instance. Used by the status reconciler.
func (s *InstanceStore) ListActive(ctx context.Context) ([]model.Instance, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE deleted = false ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active instances: %w", err)
	}
	defer rows.Close()

	var instances []model.Instance
	for rows.Next() {
		var i model.Instance
		if err := rows.Scan(&i.ID, &i.TenantID, &i.Name, &i.FlavorID, &i.VolumeSize, &i.VolumeID,
			&i.ComputeInstanceID, &i.Hostname, &i.ServiceType, &i.TaskStatusName,
			&i.CreatedAt, &i.UpdatedAt, &i.Deleted, &i.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, i)
	}
	return instances, rows.Err()
}
