package core

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/dbaas/internal/config"
	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/quota"
	"github.com/edvin/dbaas/internal/store"
	"github.com/edvin/dbaas/internal/workflow"
)

const defaultBackupType = "xtrabackup"

// BackupService is the synchronous entry point for backup operations.
type BackupService struct {
	backups   *store.BackupStore
	instances *store.InstanceStore
	quota     *quota.Engine
	tc        temporalclient.Client
	cfg       *config.Config
	log       zerolog.Logger
	validate  *validator.Validate
}

func NewBackupService(stores *Stores, q *quota.Engine, tc temporalclient.Client, cfg *config.Config, log zerolog.Logger) *BackupService {
	return &BackupService{
		backups:   stores.Backups,
		instances: stores.Instances,
		quota:     q,
		tc:        tc,
		cfg:       cfg,
		log:       log,
		validate:  validator.New(),
	}
}

// CreateBackupInput is the user-supplied shape of a new backup.
type CreateBackupInput struct {
	InstanceID  string `json:"instance_id" validate:"required"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description,omitempty"`
	BackupType  string `json:"backup_type,omitempty"`
}

// Create reserves a backup slot, records the backup and casts the job into
// the guest. At most one backup per instance may be running; a second
// request is refused, not queued.
func (s *BackupService) Create(ctx context.Context, rctx *model.RequestContext, input *CreateBackupInput) (*model.Backup, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, fault.New(fault.BadRequest, "invalid backup request: %v", err)
	}

	inst, err := s.instances.GetByID(ctx, scopedTenantID(rctx), input.InstanceID)
	if err != nil {
		return nil, err
	}
	if err := requireIdleTask(inst); err != nil {
		return nil, err
	}
	running, err := s.backups.RunningForInstance(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, fault.New(fault.UnprocessableEntity,
			"instance %s already has a backup in progress", inst.ID)
	}

	reservationIDs, err := s.quota.Reserve(ctx, rctx.TenantID,
		map[string]int{model.ResourceBackups: 1})
	if err != nil {
		return nil, err
	}

	backupType := input.BackupType
	if backupType == "" {
		backupType = defaultBackupType
	}
	b := &model.Backup{
		Name:        input.Name,
		Description: input.Description,
		BackupType:  backupType,
		TenantID:    rctx.TenantID,
		InstanceID:  inst.ID,
		State:       model.BackupNew,
	}
	if err := s.backups.Create(ctx, b); err != nil {
		s.quota.Rollback(ctx, reservationIDs)
		return nil, err
	}

	err = signalInstanceTask(ctx, s.tc, inst.ID, model.InstanceTask{
		WorkflowName: "CreateBackupWorkflow",
		WorkflowID:   fmt.Sprintf("create-backup-%s", b.ID),
		Arg: workflow.CreateBackupParams{
			InstanceID: inst.ID,
			BackupID:   b.ID,
			BackupType: backupType,
			Bucket:     s.cfg.BackupContainer,
			ObjectKey:  fmt.Sprintf("%s/%s.xbstream.gz", rctx.TenantID, b.ID),
			Timeouts:   taskTimeouts(s.cfg),
		},
	})
	if err != nil {
		s.quota.Rollback(ctx, reservationIDs)
		if delErr := s.backups.SoftDelete(ctx, b.ID); delErr != nil {
			s.log.Error().Err(delErr).Str("backup_id", b.ID).Msg("Failed to clean up backup row")
		}
		return nil, err
	}

	// The slot is spoken for once the job is enqueued. A backup that later
	// fails still counts until the tenant deletes it.
	s.quota.Commit(ctx, reservationIDs)
	return b, nil
}

func (s *BackupService) Get(ctx context.Context, rctx *model.RequestContext, id string) (*model.Backup, error) {
	return s.backups.GetByID(ctx, scopedTenantID(rctx), id)
}

func (s *BackupService) List(ctx context.Context, rctx *model.RequestContext) ([]model.Backup, string, error) {
	limit := rctx.Limit
	if limit <= 0 {
		limit = s.cfg.InstancesPageSize
	}
	return s.backups.ListByTenant(ctx, scopedTenantID(rctx), limit, rctx.Marker)
}

// Delete tombstones the backup and releases its quota slot. Running backups
// must finish or fail first.
func (s *BackupService) Delete(ctx context.Context, rctx *model.RequestContext, id string) error {
	b, err := s.backups.GetByID(ctx, scopedTenantID(rctx), id)
	if err != nil {
		return err
	}
	if b.State.Running() {
		return fault.New(fault.UnprocessableEntity,
			"backup %s is still running (%s)", id, b.State)
	}

	return signalInstanceTask(ctx, s.tc, b.InstanceID, model.InstanceTask{
		WorkflowName: "DeleteBackupWorkflow",
		WorkflowID:   fmt.Sprintf("delete-backup-%s", id),
		Arg: workflow.DeleteBackupParams{
			TenantID: b.TenantID,
			BackupID: id,
		},
	})
}
