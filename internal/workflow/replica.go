package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/model"
)

// AttachReplicaParams carries the parameters for AttachReplicaWorkflow.
type AttachReplicaParams struct {
	MasterID  string             `json:"master_id"`
	ReplicaID string             `json:"replica_id"`
	BackupID  string             `json:"backup_id"`
	Bucket    string             `json:"bucket"`
	Timeouts  model.TaskTimeouts `json:"timeouts"`
}

// AttachReplicaWorkflow wires a fresh instance up as a read replica: the
// master builds a replication snapshot (slow, so the reply is consumed
// asynchronously), then the replica seeds from it and starts replicating.
func AttachReplicaWorkflow(ctx workflow.Context, params AttachReplicaParams) error {
	caller := guest.Caller{LowTimeout: params.Timeouts.AgentLow, HighTimeout: params.Timeouts.AgentHigh}

	snapReq := guest.ReplicationSnapshotParams{
		Request:  guest.Request{Version: guest.APIVersion},
		BackupID: params.BackupID,
		Bucket:   params.Bucket,
	}
	fut := caller.CastWithConsumer(ctx, params.MasterID, guest.MethodGetReplicationSnapshot, snapReq, params.Timeouts.AgentSnapshot)

	var snapshot guest.ReplicationSnapshotResult
	if err := fut.Get(ctx, &snapshot); err != nil {
		clearTask(ctx, params.ReplicaID)
		return err
	}

	attach := guest.AttachReplicaParams{
		Request:  guest.Request{Version: guest.APIVersion},
		Snapshot: snapshot,
	}
	if err := caller.Call(ctx, params.ReplicaID, guest.MethodAttachReplicationSlave, attach, nil, params.Timeouts.AgentSnapshot); err != nil {
		clearTask(ctx, params.ReplicaID)
		return err
	}

	return setTaskStatus(ctx, params.ReplicaID, model.TaskNone)
}

// DetachReplicaParams carries the parameters for DetachReplicaWorkflow.
// MasterID may be empty when the primary is gone (failover detach).
type DetachReplicaParams struct {
	InstanceID  string             `json:"instance_id"`
	MasterID    string             `json:"master_id,omitempty"`
	ForFailover bool               `json:"for_failover"`
	Timeouts    model.TaskTimeouts `json:"timeouts"`
}

// DetachReplicaWorkflow promotes a replica to a standalone instance: the
// replica stops replicating, then the former primary drops the replication
// credentials it minted for it.
func DetachReplicaWorkflow(ctx workflow.Context, params DetachReplicaParams) error {
	caller := guest.Caller{LowTimeout: params.Timeouts.AgentLow, HighTimeout: params.Timeouts.AgentHigh}

	detach := guest.DetachReplicaParams{
		Request:     guest.Request{Version: guest.APIVersion},
		ForFailover: params.ForFailover,
	}
	if err := caller.CallHigh(ctx, params.InstanceID, guest.MethodDetachReplica, detach, nil); err != nil {
		clearTask(ctx, params.InstanceID)
		return err
	}

	// Source cleanup is a cast: the promotion already happened, and a
	// primary too sick to clean up must not block it.
	if params.MasterID != "" {
		cleanup := guest.CleanupSourceParams{
			Request:     guest.Request{Version: guest.APIVersion},
			ReplicaID:   params.InstanceID,
			ForFailover: params.ForFailover,
		}
		if err := guest.Cast(ctx, params.MasterID, guest.MethodCleanupSourceOnDetach, cleanup, params.Timeouts.AgentHigh); err != nil {
			workflow.GetLogger(ctx).Error("Failed to send source cleanup to primary",
				"master_id", params.MasterID, "error", err)
		}
	}

	return setTaskStatus(ctx, params.InstanceID, model.TaskNone)
}
