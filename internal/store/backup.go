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

const backupColumns = `id, name, description, location, backup_type, size_bytes,
	tenant_id, state, instance_id, checksum, backup_timestamp, deleted,
	created_at, updated_at, deleted_at`

type BackupStore struct {
	db DB
}

func NewBackupStore(db DB) *BackupStore {
	return &BackupStore{db: db}
}

func validateBackup(b *model.Backup) error {
	if b.Name == "" {
		return fault.New(fault.InvalidModel, "backup name is required")
	}
	if b.TenantID == "" {
		return fault.New(fault.InvalidModel, "backup tenant_id is required")
	}
	if b.InstanceID == "" {
		return fault.New(fault.InvalidModel, "backup instance_id is required")
	}
	return nil
}

func (s *BackupStore) Create(ctx context.Context, b *model.Backup) error {
	if err := validateBackup(b); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = platform.NewID()
	}
	if b.State == "" {
		b.State = model.BackupNew
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO backups (id, name, description, location, backup_type, size_bytes,
		   tenant_id, state, instance_id, checksum, backup_timestamp, deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, $12, $13)`,
		b.ID, b.Name, b.Description, b.Location, b.BackupType, b.SizeBytes,
		b.TenantID, string(b.State), b.InstanceID, b.Checksum, b.BackupTimestamp,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

func (s *BackupStore) GetByID(ctx context.Context, tenantID, id string) (*model.Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backups WHERE id = $1 AND deleted = false`
	args := []any{id}
	if tenantID != "" {
		query += ` AND tenant_id = $2`
		args = append(args, tenantID)
	}

	var b model.Backup
	var state string
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&b.ID, &b.Name, &b.Description, &b.Location, &b.BackupType, &b.SizeBytes,
		&b.TenantID, &state, &b.InstanceID, &b.Checksum, &b.BackupTimestamp,
		&b.Deleted, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.New(fault.NotFound, "backup %s not found", id)
		}
		return nil, fmt.Errorf("get backup %s: %w", id, err)
	}
	b.State = model.BackupState(state)
	return &b, nil
}

// RunningForInstance reports whether any backup for the instance is in a
// non-terminal state.
func (s *BackupStore) RunningForInstance(ctx context.Context, instanceID string) (bool, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM backups
		 WHERE instance_id = $1 AND deleted = false AND state = ANY($2)`,
		instanceID, runningStateNames(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count running backups for %s: %w", instanceID, err)
	}
	return count > 0, nil
}

func runningStateNames() []string {
	names := make([]string, len(model.BackupRunningStates))
	for i, s := range model.BackupRunningStates {
		names[i] = string(s)
	}
	return names
}

// UpdateState moves the backup's state only.
func (s *BackupStore) UpdateState(ctx context.Context, id string, state model.BackupState) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backups SET state = $1, updated_at = now() WHERE id = $2`,
		string(state), id)
	if err != nil {
		return fmt.Errorf("update backup %s state: %w", id, err)
	}
	return nil
}

// CompleteFromGuest applies the guest agent's completion notification.
func (s *BackupStore) CompleteFromGuest(ctx context.Context, id string, state model.BackupState, location, checksum string, sizeBytes int64, backupTimestamp time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backups SET state = $1, location = $2, checksum = $3, size_bytes = $4,
		   backup_timestamp = $5, updated_at = now()
		 WHERE id = $6`,
		string(state), location, checksum, sizeBytes, backupTimestamp.UTC(), id)
	if err != nil {
		return fmt.Errorf("complete backup %s: %w", id, err)
	}
	return nil
}

func (s *BackupStore) SoftDelete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backups SET deleted = true, deleted_at = now(), updated_at = now() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("soft delete backup %s: %w", id, err)
	}
	return nil
}

// ListByTenant returns one page of live backups in id order plus the next
// marker.
func (s *BackupStore) ListByTenant(ctx context.Context, tenantID string, limit int, marker string) ([]model.Backup, string, error) {
	query := `SELECT ` + backupColumns + ` FROM backups WHERE deleted = false`
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
		return nil, "", fmt.Errorf("list backups for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		var b model.Backup
		var state string
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Location, &b.BackupType, &b.SizeBytes,
			&b.TenantID, &state, &b.InstanceID, &b.Checksum, &b.BackupTimestamp,
			&b.Deleted, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt); err != nil {
			return nil, "", fmt.Errorf("scan backup: %w", err)
		}
		b.State = model.BackupState(state)
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate backups: %w", err)
	}

	return paginate(backups, limit, func(b model.Backup) string { return b.ID })
}
