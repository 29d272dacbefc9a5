package activity

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/store"
	"github.com/edvin/dbaas/internal/substrate"
)

// Reconciler contains the periodic status sweep. It downgrades statuses the
// control plane can no longer trust: a silent agent means the reported
// database state is stale, a vanished server means the instance is gone.
type Reconciler struct {
	log           zerolog.Logger
	instances     *store.InstanceStore
	serviceStatus *store.ServiceStatusStore
	heartbeats    *store.HeartbeatStore
	compute       *substrate.ComputeClient
	heartbeatTTL  time.Duration
}

// NewReconciler creates a new Reconciler activity struct.
func NewReconciler(log zerolog.Logger, db store.DB, compute *substrate.ComputeClient, heartbeatTTL time.Duration) *Reconciler {
	return &Reconciler{
		log:           log.With().Str("component", "reconciler").Logger(),
		instances:     store.NewInstanceStore(db),
		serviceStatus: store.NewServiceStatusStore(db),
		heartbeats:    store.NewHeartbeatStore(db),
		compute:       compute,
		heartbeatTTL:  heartbeatTTL,
	}
}

// ReconcileResult summarizes one sweep.
type ReconcileResult struct {
	Checked       int `json:"checked"`
	MarkedUnknown int `json:"marked_unknown"`
	MarkedFailed  int `json:"marked_failed"`
}

// ReconcileInstanceStatuses walks every live instance once. Failures on one
// instance are logged and never stop the sweep.
func (r *Reconciler) ReconcileInstanceStatuses(ctx context.Context) (*ReconcileResult, error) {
	instances, err := r.instances.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	servers, serversErr := r.listServerIDs(ctx)
	if serversErr != nil {
		// Without a server inventory the vanished-server check is skipped,
		// the heartbeat check still runs.
		r.log.Warn().Err(serversErr).Msg("Could not list servers, skipping vanished-server check")
	}

	result := &ReconcileResult{}
	now := time.Now().UTC()
	for _, inst := range instances {
		result.Checked++

		if r.markStaleAgent(ctx, inst, now) {
			result.MarkedUnknown++
		}
		if serversErr == nil && r.markVanishedServer(ctx, inst, servers) {
			result.MarkedFailed++
		}
	}
	return result, nil
}

func (r *Reconciler) listServerIDs(ctx context.Context) (map[string]bool, error) {
	servers, err := r.compute.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(servers))
	for _, s := range servers {
		if s.Status != model.ServerDeleted {
			ids[s.ID] = true
		}
	}
	return ids, nil
}

// markStaleAgent downgrades the service status to UNKNOWN when the agent
// has missed its heartbeat window and the stored status still claims a
// live database.
func (r *Reconciler) markStaleAgent(ctx context.Context, inst model.Instance, now time.Time) bool {
	hb, err := r.heartbeats.Get(ctx, inst.ID)
	if err != nil {
		if !fault.Is(err, fault.NotFound) {
			r.log.Error().Err(err).Str("instance_id", inst.ID).Msg("Failed to read heartbeat")
		}
		// Never heard from: the BUILD path owns the status until the first
		// heartbeat arrives.
		return false
	}
	if hb.Alive(now, r.heartbeatTTL) {
		return false
	}

	current, err := r.serviceStatus.Get(ctx, inst.ID)
	if err != nil {
		if !fault.Is(err, fault.NotFound) {
			r.log.Error().Err(err).Str("instance_id", inst.ID).Msg("Failed to read service status")
		}
		return false
	}
	// Only a running status goes stale. Terminal states and the PAUSED
	// sentinel the restart and resize flows plant stay put; flipping PAUSED
	// here would let a dead agent pass for a fresh status report.
	if !current.Status.Running() {
		return false
	}
	if err := r.serviceStatus.Upsert(ctx, inst.ID, model.ServiceUnknown); err != nil {
		r.log.Error().Err(err).Str("instance_id", inst.ID).Msg("Failed to mark instance UNKNOWN")
		return false
	}
	r.log.Warn().Str("instance_id", inst.ID).
		Time("last_heartbeat", hb.UpdatedAt).
		Msg("Agent heartbeat stale, status downgraded to UNKNOWN")
	return true
}

// markVanishedServer sets the service status to FAILED when the substrate
// no longer knows the instance's server. Task status is left alone; only
// the lifecycle engine moves it.
func (r *Reconciler) markVanishedServer(ctx context.Context, inst model.Instance, servers map[string]bool) bool {
	if inst.ComputeInstanceID == nil || servers[*inst.ComputeInstanceID] {
		return false
	}
	if inst.TaskStatus().Transient() {
		// A create or delete in flight legitimately has no server yet.
		return false
	}

	current, err := r.serviceStatus.Get(ctx, inst.ID)
	if err == nil && current.Status == model.ServiceFailed {
		return false
	}
	if err := r.serviceStatus.Upsert(ctx, inst.ID, model.ServiceFailed); err != nil {
		r.log.Error().Err(err).Str("instance_id", inst.ID).Msg("Failed to mark instance FAILED")
		return false
	}
	r.log.Error().Str("instance_id", inst.ID).
		Str("server_id", *inst.ComputeInstanceID).
		Msg("Server vanished from substrate, status set to FAILED")
	return true
}
