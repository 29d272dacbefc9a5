package core

import (
	"context"
	"fmt"

	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/workflow"
)

// AttachReplica wires replicaID up as a read replica of masterID. Both
// instances must be idle; the task is serialized on the replica, which is
// the instance whose state actually changes.
func (s *InstanceService) AttachReplica(ctx context.Context, rctx *model.RequestContext, replicaID, masterID string) error {
	if replicaID == masterID {
		return fault.New(fault.BadRequest, "an instance cannot replicate itself")
	}
	replica, err := s.instances.GetByID(ctx, scopedTenantID(rctx), replicaID)
	if err != nil {
		return err
	}
	master, err := s.instances.GetByID(ctx, scopedTenantID(rctx), masterID)
	if err != nil {
		return err
	}
	if err := requireIdleTask(replica); err != nil {
		return err
	}
	if err := requireIdleTask(master); err != nil {
		return err
	}

	if err := s.instances.UpdateTaskStatus(ctx, replicaID, model.TaskBuilding.Name); err != nil {
		return err
	}
	return signalInstanceTask(ctx, s.tc, replicaID, model.InstanceTask{
		WorkflowName: "AttachReplicaWorkflow",
		WorkflowID:   fmt.Sprintf("attach-replica-%s", replicaID),
		Arg: workflow.AttachReplicaParams{
			MasterID:  masterID,
			ReplicaID: replicaID,
			BackupID:  fmt.Sprintf("replication-seed-%s", replicaID),
			Bucket:    s.cfg.BackupContainer,
			Timeouts:  taskTimeouts(s.cfg),
		},
	})
}

// DetachReplica promotes a replica to a standalone instance. When masterID
// is set, the former primary also drops the replication credentials it
// minted for this replica; forFailover marks a detach with a primary that is
// already gone or unreachable.
func (s *InstanceService) DetachReplica(ctx context.Context, rctx *model.RequestContext, id, masterID string, forFailover bool) error {
	inst, err := s.instances.GetByID(ctx, scopedTenantID(rctx), id)
	if err != nil {
		return err
	}
	if err := requireIdleTask(inst); err != nil {
		return err
	}
	if masterID != "" {
		if _, err := s.instances.GetByID(ctx, scopedTenantID(rctx), masterID); err != nil {
			return err
		}
	}

	if err := s.instances.UpdateTaskStatus(ctx, id, model.TaskBuilding.Name); err != nil {
		return err
	}
	return signalInstanceTask(ctx, s.tc, id, model.InstanceTask{
		WorkflowName: "DetachReplicaWorkflow",
		WorkflowID:   fmt.Sprintf("detach-replica-%s", id),
		Arg: workflow.DetachReplicaParams{
			InstanceID:  id,
			MasterID:    masterID,
			ForFailover: forFailover,
			Timeouts:    taskTimeouts(s.cfg),
		},
	})
}
