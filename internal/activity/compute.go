package activity

import (
	"context"

	"github.com/edvin/dbaas/internal/substrate"
)

// Compute contains activities that drive the compute substrate.
type Compute struct {
	client *substrate.ComputeClient
}

// NewCompute creates a new Compute activity struct.
func NewCompute(client *substrate.ComputeClient) *Compute {
	return &Compute{client: client}
}

// CreateServer boots a new server and returns the substrate's record of it.
func (a *Compute) CreateServer(ctx context.Context, params substrate.CreateServerParams) (*substrate.Server, error) {
	return a.client.CreateServer(ctx, params)
}

// GetServer reads the server's current state; workflows poll this.
func (a *Compute) GetServer(ctx context.Context, serverID string) (*substrate.Server, error) {
	return a.client.GetServer(ctx, serverID)
}

// DeleteServer asks the substrate to tear the server down.
func (a *Compute) DeleteServer(ctx context.Context, serverID string) error {
	return a.client.DeleteServer(ctx, serverID)
}

// ResizeServerParams holds the parameters for ResizeServer.
type ResizeServerParams struct {
	ServerID string
	FlavorID string
}

// ResizeServer starts a flavor migration; the server parks in VERIFY_RESIZE.
func (a *Compute) ResizeServer(ctx context.Context, params ResizeServerParams) error {
	return a.client.ResizeServer(ctx, params.ServerID, params.FlavorID)
}

// ConfirmResize finalizes a resize, discarding the old allocation.
func (a *Compute) ConfirmResize(ctx context.Context, serverID string) error {
	return a.client.ConfirmResize(ctx, serverID)
}

// RevertResize abandons a resize and returns to the old flavor.
func (a *Compute) RevertResize(ctx context.Context, serverID string) error {
	return a.client.RevertResize(ctx, serverID)
}

// RebootServer soft-reboots the server.
func (a *Compute) RebootServer(ctx context.Context, serverID string) error {
	return a.client.RebootServer(ctx, serverID)
}

// RescanServerVolumeParams holds the parameters for RescanServerVolume.
type RescanServerVolumeParams struct {
	ServerID string
	VolumeID string
}

// RescanServerVolume makes the server pick up a volume's new size.
func (a *Compute) RescanServerVolume(ctx context.Context, params RescanServerVolumeParams) error {
	return a.client.RescanServerVolume(ctx, params.ServerID, params.VolumeID)
}

// ListServers returns every server the service account can see.
func (a *Compute) ListServers(ctx context.Context) ([]substrate.Server, error) {
	return a.client.ListServers(ctx)
}
