package activity

import (
	"context"

	"github.com/edvin/dbaas/internal/substrate"
)

// Volume contains activities that drive the block storage substrate.
type Volume struct {
	client *substrate.VolumeClient
}

// NewVolume creates a new Volume activity struct.
func NewVolume(client *substrate.VolumeClient) *Volume {
	return &Volume{client: client}
}

// CreateVolumeParams holds the parameters for CreateVolume.
type CreateVolumeParams struct {
	SizeGB           int
	Name             string
	AvailabilityZone string
}

// CreateVolume provisions a volume; the workflow polls GetVolume afterwards.
func (a *Volume) CreateVolume(ctx context.Context, params CreateVolumeParams) (*substrate.Volume, error) {
	return a.client.CreateVolume(ctx, params.SizeGB, params.Name, params.AvailabilityZone)
}

// GetVolume reads the volume's current state.
func (a *Volume) GetVolume(ctx context.Context, volumeID string) (*substrate.Volume, error) {
	return a.client.GetVolume(ctx, volumeID)
}

// DeleteVolume releases the volume back to the substrate.
func (a *Volume) DeleteVolume(ctx context.Context, volumeID string) error {
	return a.client.DeleteVolume(ctx, volumeID)
}

// ExtendVolumeParams holds the parameters for ExtendVolume.
type ExtendVolumeParams struct {
	VolumeID  string
	NewSizeGB int
}

// ExtendVolume grows the volume in place.
func (a *Volume) ExtendVolume(ctx context.Context, params ExtendVolumeParams) error {
	return a.client.ExtendVolume(ctx, params.VolumeID, params.NewSizeGB)
}
