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

// InstanceService is the synchronous entry point for instance lifecycle
// operations. It validates, reserves quota and enqueues engine tasks; the
// engine workflows do the slow work.
type InstanceService struct {
	instances *store.InstanceStore
	statuses  *store.ServiceStatusStore
	backups   *store.BackupStore
	quota     *quota.Engine
	tc        temporalclient.Client
	cfg       *config.Config
	log       zerolog.Logger
	validate  *validator.Validate
}

func NewInstanceService(stores *Stores, q *quota.Engine, tc temporalclient.Client, cfg *config.Config, log zerolog.Logger) *InstanceService {
	return &InstanceService{
		instances: stores.Instances,
		statuses:  stores.ServiceStatuses,
		backups:   stores.Backups,
		quota:     q,
		tc:        tc,
		cfg:       cfg,
		log:       log,
		validate:  validator.New(),
	}
}

// CreateInstanceInput is the user-supplied shape of a new instance.
type CreateInstanceInput struct {
	Name             string               `json:"name" validate:"required,max=255"`
	FlavorID         string               `json:"flavor_id" validate:"required"`
	VolumeSize       int                  `json:"volume_size" validate:"min=0"`
	Databases        []model.DatabaseSpec `json:"databases,omitempty"`
	Users            []model.UserSpec     `json:"users,omitempty"`
	MemoryMB         int                  `json:"memory_mb,omitempty"`
	ConfigContents   string               `json:"config_contents,omitempty"`
	RestoreBackupID  string               `json:"restore_backup_id,omitempty"`
	AvailabilityZone string               `json:"availability_zone,omitempty"`
}

// Create validates the input, reserves quota and enqueues the provisioning
// task. The returned instance is immediately visible with task BUILDING.
func (s *InstanceService) Create(ctx context.Context, rctx *model.RequestContext, input *CreateInstanceInput) (*model.Instance, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, fault.New(fault.BadRequest, "invalid instance request: %v", err)
	}

	volumeSize := 0
	if s.cfg.VolumeSupport {
		if input.VolumeSize < 1 {
			return nil, fault.New(fault.BadRequest, "volume size is required and must be at least 1 GB")
		}
		if input.VolumeSize > s.cfg.MaxAcceptedVolumeSize {
			return nil, fault.New(fault.OverLimit,
				"volume size %d GB exceeds the maximum of %d GB", input.VolumeSize, s.cfg.MaxAcceptedVolumeSize)
		}
		volumeSize = input.VolumeSize
	}

	deltas := map[string]int{model.ResourceInstances: 1}
	if volumeSize > 0 {
		deltas[model.ResourceVolumes] = volumeSize
	}
	reservationIDs, err := s.quota.Reserve(ctx, rctx.TenantID, deltas)
	if err != nil {
		return nil, err
	}

	inst := &model.Instance{
		TenantID:       rctx.TenantID,
		Name:           input.Name,
		FlavorID:       input.FlavorID,
		VolumeSize:     volumeSize,
		ServiceType:    s.cfg.DefaultServiceType,
		TaskStatusName: model.TaskBuilding.Name,
	}
	if err := s.instances.Create(ctx, inst); err != nil {
		s.quota.Rollback(ctx, reservationIDs)
		return nil, err
	}
	if err := s.statuses.Upsert(ctx, inst.ID, model.ServiceNew); err != nil {
		s.abandonCreate(ctx, inst.ID, reservationIDs)
		return nil, err
	}

	params := workflow.CreateInstanceParams{
		InstanceID:       inst.ID,
		TenantID:         inst.TenantID,
		Name:             inst.Name,
		FlavorID:         inst.FlavorID,
		ImageID:          s.cfg.ImageID,
		VolumeSize:       volumeSize,
		MemoryMB:         input.MemoryMB,
		Databases:        input.Databases,
		Users:            input.Users,
		ConfigContents:   input.ConfigContents,
		RestoreBackupID:  input.RestoreBackupID,
		AvailabilityZone: input.AvailabilityZone,
		ReservationIDs:   reservationIDs,

		VolumeSupport:         s.cfg.VolumeSupport,
		UseServerVolumeCreate: s.cfg.UseServerVolumeCreate,
		DNSSupport:            s.cfg.DNSSupport,

		Timeouts: taskTimeouts(s.cfg),
	}
	task := model.InstanceTask{
		WorkflowName: "CreateInstanceWorkflow",
		WorkflowID:   fmt.Sprintf("create-instance-%s", inst.ID),
		Arg:          params,
	}
	if err := signalInstanceTask(ctx, s.tc, inst.ID, task); err != nil {
		s.abandonCreate(ctx, inst.ID, reservationIDs)
		return nil, err
	}

	s.log.Info().Str("instance_id", inst.ID).Str("tenant_id", inst.TenantID).
		Str("flavor_id", inst.FlavorID).Int("volume_size", volumeSize).
		Msg("Instance provisioning enqueued")
	return inst, nil
}

// abandonCreate undoes a half-created instance when the task could not be
// enqueued: no workflow will ever touch it, so the sync layer cleans up.
func (s *InstanceService) abandonCreate(ctx context.Context, instanceID string, reservationIDs []string) {
	s.quota.Rollback(ctx, reservationIDs)
	if err := s.statuses.Delete(ctx, instanceID); err != nil {
		s.log.Error().Err(err).Str("instance_id", instanceID).Msg("Failed to clean up service status")
	}
	if err := s.instances.SoftDelete(ctx, instanceID); err != nil {
		s.log.Error().Err(err).Str("instance_id", instanceID).Msg("Failed to clean up instance row")
	}
}

func (s *InstanceService) Get(ctx context.Context, rctx *model.RequestContext, id string) (*model.Instance, error) {
	return s.instances.GetByID(ctx, scopedTenantID(rctx), id)
}

func (s *InstanceService) List(ctx context.Context, rctx *model.RequestContext) ([]model.Instance, string, error) {
	limit := rctx.Limit
	if limit <= 0 {
		limit = s.cfg.InstancesPageSize
	}
	return s.instances.ListByTenant(ctx, scopedTenantID(rctx), limit, rctx.Marker)
}

// Status derives the user-visible status for one instance from the stored
// guest status and the engine task. The reconciler keeps the stored status
// honest about dead agents and vanished servers, so no substrate round trip
// happens on the read path.
func (s *InstanceService) Status(ctx context.Context, inst *model.Instance) model.APIStatus {
	service := model.ServiceUnknown
	if record, err := s.statuses.Get(ctx, inst.ID); err == nil {
		service = record.Status
	} else if !fault.Is(err, fault.NotFound) {
		s.log.Error().Err(err).Str("instance_id", inst.ID).Msg("Failed to read service status")
	}
	return model.DeriveStatus("", service, inst.TaskStatus())
}

// Delete tombstones the instance and enqueues the teardown task. Instances
// with a task in flight are refused unless force is set; failed builds are
// always deletable.
func (s *InstanceService) Delete(ctx context.Context, rctx *model.RequestContext, id string, force bool) error {
	inst, err := s.instances.GetByID(ctx, scopedTenantID(rctx), id)
	if err != nil {
		return err
	}

	if !force {
		if ts := inst.TaskStatus(); ts.Transient() {
			return fault.New(fault.UnprocessableEntity,
				"instance %s has task %s in progress", id, ts.Name)
		}
		running, err := s.backups.RunningForInstance(ctx, id)
		if err != nil {
			return err
		}
		if running {
			return fault.New(fault.UnprocessableEntity,
				"instance %s has a backup in progress", id)
		}
	}

	if err := s.instances.UpdateTaskStatus(ctx, id, model.TaskDeleting.Name); err != nil {
		return err
	}
	return signalInstanceTask(ctx, s.tc, id, model.InstanceTask{
		WorkflowName: "DeleteInstanceWorkflow",
		WorkflowID:   fmt.Sprintf("delete-instance-%s", id),
		Arg: workflow.DeleteInstanceParams{
			InstanceID: id,
			TenantID:   inst.TenantID,
			Timeouts:   taskTimeouts(s.cfg),
		},
	})
}

// Restart reboots the instance's server and restarts the database.
func (s *InstanceService) Restart(ctx context.Context, rctx *model.RequestContext, id string) error {
	inst, err := s.instances.GetByID(ctx, scopedTenantID(rctx), id)
	if err != nil {
		return err
	}
	if err := requireIdleTask(inst); err != nil {
		return err
	}

	if err := s.instances.UpdateTaskStatus(ctx, id, model.TaskRebooting.Name); err != nil {
		return err
	}
	return signalInstanceTask(ctx, s.tc, id, model.InstanceTask{
		WorkflowName: "RestartInstanceWorkflow",
		WorkflowID:   fmt.Sprintf("restart-instance-%s", id),
		Arg: workflow.RestartInstanceParams{
			InstanceID: id,
			Timeouts:   taskTimeouts(s.cfg),
		},
	})
}

// ResizeFlavor moves the instance to a new flavor. The database record only
// changes once the engine confirms the migration.
func (s *InstanceService) ResizeFlavor(ctx context.Context, rctx *model.RequestContext, id, newFlavorID string, newMemoryMB int) error {
	inst, err := s.instances.GetByID(ctx, scopedTenantID(rctx), id)
	if err != nil {
		return err
	}
	if err := requireIdleTask(inst); err != nil {
		return err
	}
	if newFlavorID == "" {
		return fault.New(fault.BadRequest, "new flavor id is required")
	}
	if newFlavorID == inst.FlavorID {
		return fault.New(fault.BadRequest, "instance %s already has flavor %s", id, newFlavorID)
	}
	record, err := s.statuses.Get(ctx, id)
	if err != nil {
		return err
	}
	if !record.Status.Running() {
		return fault.New(fault.UnprocessableEntity,
			"instance %s database is %s; it must be running to resize", id, record.Status)
	}

	if err := s.instances.UpdateTaskStatus(ctx, id, model.TaskResizing.Name); err != nil {
		return err
	}
	return signalInstanceTask(ctx, s.tc, id, model.InstanceTask{
		WorkflowName: "ResizeFlavorWorkflow",
		WorkflowID:   fmt.Sprintf("resize-flavor-%s", id),
		Arg: workflow.ResizeFlavorParams{
			InstanceID:  id,
			NewFlavorID: newFlavorID,
			NewMemoryMB: newMemoryMB,
			Timeouts:    taskTimeouts(s.cfg),
		},
	})
}

// ResizeVolume grows the instance's volume. The extra gigabytes are reserved
// here and committed by the engine once the substrate confirms.
func (s *InstanceService) ResizeVolume(ctx context.Context, rctx *model.RequestContext, id string, newSizeGB int) error {
	inst, err := s.instances.GetByID(ctx, scopedTenantID(rctx), id)
	if err != nil {
		return err
	}
	if err := requireIdleTask(inst); err != nil {
		return err
	}
	if !s.cfg.VolumeSupport || inst.VolumeSize == 0 {
		return fault.New(fault.UnprocessableEntity, "instance %s has no volume to resize", id)
	}
	if newSizeGB <= inst.VolumeSize {
		return fault.New(fault.BadRequest,
			"new volume size %d GB must exceed the current %d GB", newSizeGB, inst.VolumeSize)
	}
	if newSizeGB > s.cfg.MaxAcceptedVolumeSize {
		return fault.New(fault.OverLimit,
			"volume size %d GB exceeds the maximum of %d GB", newSizeGB, s.cfg.MaxAcceptedVolumeSize)
	}

	reservationIDs, err := s.quota.Reserve(ctx, inst.TenantID,
		map[string]int{model.ResourceVolumes: newSizeGB - inst.VolumeSize})
	if err != nil {
		return err
	}

	if err := s.instances.UpdateTaskStatus(ctx, id, model.TaskResizing.Name); err != nil {
		s.quota.Rollback(ctx, reservationIDs)
		return err
	}
	err = signalInstanceTask(ctx, s.tc, id, model.InstanceTask{
		WorkflowName: "ResizeVolumeWorkflow",
		WorkflowID:   fmt.Sprintf("resize-volume-%s", id),
		Arg: workflow.ResizeVolumeParams{
			InstanceID:     id,
			NewSizeGB:      newSizeGB,
			ReservationIDs: reservationIDs,
			Timeouts:       taskTimeouts(s.cfg),
		},
	})
	if err != nil {
		s.quota.Rollback(ctx, reservationIDs)
		if stErr := s.instances.UpdateTaskStatus(ctx, id, model.TaskNone.Name); stErr != nil {
			s.log.Error().Err(stErr).Str("instance_id", id).Msg("Failed to reset task status")
		}
		return err
	}
	return nil
}
