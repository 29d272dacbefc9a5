package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/activity"
	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/substrate"
)

// CreateInstanceParams carries everything the provisioning workflow needs.
// Reservation ids come from the sync layer, which admitted the quota before
// enqueueing this task; the workflow decides their fate.
type CreateInstanceParams struct {
	InstanceID       string               `json:"instance_id"`
	TenantID         string               `json:"tenant_id"`
	Name             string               `json:"name"`
	FlavorID         string               `json:"flavor_id"`
	ImageID          string               `json:"image_id"`
	VolumeSize       int                  `json:"volume_size"`
	MemoryMB         int                  `json:"memory_mb"`
	Databases        []model.DatabaseSpec `json:"databases,omitempty"`
	Users            []model.UserSpec     `json:"users,omitempty"`
	ConfigContents   string               `json:"config_contents,omitempty"`
	RestoreBackupID  string               `json:"restore_backup_id,omitempty"`
	SecurityGroups   []string             `json:"security_groups,omitempty"`
	AvailabilityZone string               `json:"availability_zone,omitempty"`
	ReservationIDs   []string             `json:"reservation_ids,omitempty"`

	VolumeSupport         bool `json:"volume_support"`
	UseServerVolumeCreate bool `json:"use_server_volume_create"`
	DNSSupport            bool `json:"dns_support"`

	Timeouts model.TaskTimeouts `json:"timeouts"`
}

const (
	volumeMountPoint = "/var/lib/mysql"
	volumeDevicePath = "/dev/vdb"
	guestInfoPath    = "/etc/guest_info"
)

// CreateInstanceWorkflow provisions one database instance: volume, server,
// DNS record, then the guest prepare cast. Each phase that fails leaves the
// instance in a distinct BUILDING_ERROR task status and releases the quota
// reservations; the record stays visible so the tenant can delete it.
func CreateInstanceWorkflow(ctx workflow.Context, params CreateInstanceParams) error {
	logger := workflow.GetLogger(ctx)

	// Volume phase.
	var volumeID string
	if params.VolumeSupport && !params.UseServerVolumeCreate {
		id, err := provisionVolume(ctx, params)
		if err != nil {
			logger.Error("Volume provisioning failed", "instance_id", params.InstanceID, "error", err)
			markBuildFailed(ctx, params, model.TaskBuildingErrorVolume)
			return err
		}
		volumeID = id
	}

	// Server phase.
	server, err := provisionServer(ctx, params, volumeID)
	if err != nil {
		logger.Error("Server provisioning failed", "instance_id", params.InstanceID, "error", err)
		markBuildFailed(ctx, params, model.TaskBuildingErrorServer)
		return err
	}

	// DNS phase.
	if params.DNSSupport {
		if err := publishDNS(ctx, params, server.ID); err != nil {
			logger.Error("DNS provisioning failed", "instance_id", params.InstanceID, "error", err)
			markBuildFailed(ctx, params, model.TaskBuildingErrorDNS)
			return err
		}
	}

	// Guest prepare. Fire and forget: the guest reports readiness through
	// its own status write path, and the API status stays BUILD until the
	// first RUNNING report lands.
	prepare := guest.PrepareParams{
		Request:        guest.Request{Version: guest.APIVersion},
		InstanceID:     params.InstanceID,
		Databases:      params.Databases,
		Users:          params.Users,
		MemoryMB:       params.MemoryMB,
		ConfigContents: params.ConfigContents,
		BackupID:       params.RestoreBackupID,
	}
	if params.RestoreBackupID != "" {
		prepare.RestoreKey = params.TenantID + "/" + params.RestoreBackupID + ".xbstream.gz"
	}
	if volumeID != "" {
		prepare.DevicePath = volumeDevicePath
		prepare.MountPoint = volumeMountPoint
	}
	if err := guest.Cast(ctx, params.InstanceID, guest.MethodPrepare, prepare, params.Timeouts.AgentHigh); err != nil {
		logger.Error("Guest prepare cast failed", "instance_id", params.InstanceID, "error", err)
		markBuildFailed(ctx, params, model.TaskBuildingErrorServer)
		return err
	}

	commitReservations(ctx, params.ReservationIDs)

	return setTaskStatus(ctx, params.InstanceID, model.TaskNone)
}

// provisionVolume creates the volume, records its id immediately so a crash
// cannot leak it, then waits for the substrate to report it usable.
func provisionVolume(ctx workflow.Context, params CreateInstanceParams) (string, error) {
	actx := engineCtx(ctx)

	var vol substrate.Volume
	err := workflow.ExecuteActivity(actx, "CreateVolume", activity.CreateVolumeParams{
		SizeGB:           params.VolumeSize,
		Name:             params.Name + "-volume",
		AvailabilityZone: params.AvailabilityZone,
	}).Get(ctx, &vol)
	if err != nil {
		return "", err
	}

	err = workflow.ExecuteActivity(actx, "SetVolumeID", activity.SetVolumeIDParams{
		InstanceID: params.InstanceID,
		VolumeID:   vol.ID,
	}).Get(ctx, nil)
	if err != nil {
		return "", err
	}

	err = pollUntil(ctx, 2*time.Second, params.Timeouts.Volume, "volume to become available", func() (bool, error) {
		var current substrate.Volume
		if err := workflow.ExecuteActivity(engineCtx(ctx), "GetVolume", vol.ID).Get(ctx, &current); err != nil {
			return false, err
		}
		switch current.Status {
		case substrate.VolumeAvailable, substrate.VolumeInUse:
			return true, nil
		case substrate.VolumeError:
			return false, fmt.Errorf("volume %s entered error state", vol.ID)
		default:
			return false, nil
		}
	})
	if err != nil {
		return "", err
	}
	return vol.ID, nil
}

// provisionServer boots the guest machine with the agent's identity file
// injected, records the server id, then waits for the machine to leave
// BUILD.
func provisionServer(ctx workflow.Context, params CreateInstanceParams, volumeID string) (*substrate.Server, error) {
	actx := engineCtx(ctx)

	create := substrate.CreateServerParams{
		Name:             params.Name,
		ImageID:          params.ImageID,
		FlavorID:         params.FlavorID,
		SecurityGroups:   params.SecurityGroups,
		AvailabilityZone: params.AvailabilityZone,
		Files: map[string]string{
			guestInfoPath: fmt.Sprintf("[DEFAULT]\nguest_id=%s\n", params.InstanceID),
		},
	}
	switch {
	// Boot volumes die with the server so a teardown cannot leak them.
	case volumeID != "":
		create.BlockDevices = []substrate.BlockDevice{{
			VolumeID:            volumeID,
			DeviceName:          volumeDevicePath,
			DeleteOnTermination: true,
		}}
	case params.VolumeSupport && params.UseServerVolumeCreate:
		create.BlockDevices = []substrate.BlockDevice{{
			SizeGB:              params.VolumeSize,
			DeviceName:          volumeDevicePath,
			DeleteOnTermination: true,
		}}
	}

	var server substrate.Server
	if err := workflow.ExecuteActivity(actx, "CreateServer", create).Get(ctx, &server); err != nil {
		return nil, err
	}

	err := workflow.ExecuteActivity(actx, "SetComputeInstanceID", activity.SetComputeInstanceIDParams{
		InstanceID: params.InstanceID,
		ServerID:   server.ID,
	}).Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	err = pollUntil(ctx, 2*time.Second, params.Timeouts.StateChange, "server to become active", func() (bool, error) {
		var current substrate.Server
		if err := workflow.ExecuteActivity(engineCtx(ctx), "GetServer", server.ID).Get(ctx, &current); err != nil {
			return false, err
		}
		switch current.Status {
		case model.ServerActive:
			server = current
			return true, nil
		case model.ServerError:
			return false, fmt.Errorf("server %s entered ERROR state", server.ID)
		default:
			return false, nil
		}
	})
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// publishDNS waits for the server to surface an address, writes the A
// record and stores the hostname on the instance.
func publishDNS(ctx workflow.Context, params CreateInstanceParams, serverID string) error {
	actx := engineCtx(ctx)

	var address string
	err := pollUntil(ctx, time.Second, params.Timeouts.DNS, "server address assignment", func() (bool, error) {
		var current substrate.Server
		if err := workflow.ExecuteActivity(engineCtx(ctx), "GetServer", serverID).Get(ctx, &current); err != nil {
			return false, err
		}
		for _, addr := range current.Addresses {
			address = addr
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	var hostname string
	err = workflow.ExecuteActivity(actx, "CreateDNSEntry", activity.CreateDNSEntryParams{
		InstanceID: params.InstanceID,
		Address:    address,
	}).Get(ctx, &hostname)
	if err != nil {
		return err
	}
	if hostname == "" {
		return nil
	}
	return workflow.ExecuteActivity(actx, "SetHostname", activity.SetHostnameParams{
		InstanceID: params.InstanceID,
		Hostname:   hostname,
	}).Get(ctx, nil)
}

// markBuildFailed parks the instance in a phase-specific error status and
// releases its quota reservations. The row stays visible; only delete is
// allowed from here.
func markBuildFailed(ctx workflow.Context, params CreateInstanceParams, status model.TaskStatus) {
	if err := setTaskStatus(ctx, params.InstanceID, status); err != nil {
		workflow.GetLogger(ctx).Error("Failed to set build error status",
			"instance_id", params.InstanceID, "status", status.Name, "error", err)
	}
	rollbackReservations(ctx, params.ReservationIDs)
}
