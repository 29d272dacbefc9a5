package workflow

import (
	"context"
	"time"

	temporalactivity "go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/dbaas/internal/activity"
	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/model"
)

func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.InstanceDB{})
	env.RegisterActivity(&activity.Compute{})
	env.RegisterActivity(&activity.Volume{})
	env.RegisterActivity(&activity.DNS{})
	env.RegisterActivity(&activity.Quota{})
	env.RegisterActivity(&activity.ObjectStore{})
	env.RegisterActivity(&activity.Reconciler{})
	env.RegisterWorkflow(guest.CastWorkflow)
}

// registerGuestStubs registers the agent's wire methods so tests can mock
// them by name. The stubs are never executed; OnActivity intercepts first.
func registerGuestStubs(env *testsuite.TestWorkflowEnvironment) {
	register := func(name string, fn any) {
		env.RegisterActivityWithOptions(fn, temporalactivity.RegisterOptions{Name: name})
	}
	register(guest.MethodPrepare, func(ctx context.Context, params guest.PrepareParams) error { return nil })
	register(guest.MethodRestart, func(ctx context.Context, req guest.Request) error { return nil })
	register(guest.MethodStopDB, func(ctx context.Context, params guest.StopParams) error { return nil })
	register(guest.MethodStartDBWithConfChanges, func(ctx context.Context, params guest.StartWithConfParams) error { return nil })
	register(guest.MethodCreateBackup, func(ctx context.Context, params guest.CreateBackupParams) error { return nil })
	register(guest.MethodGetReplicationSnapshot, func(ctx context.Context, params guest.ReplicationSnapshotParams) (*guest.ReplicationSnapshotResult, error) {
		return &guest.ReplicationSnapshotResult{}, nil
	})
	register(guest.MethodAttachReplicationSlave, func(ctx context.Context, params guest.AttachReplicaParams) error { return nil })
	register(guest.MethodDetachReplica, func(ctx context.Context, params guest.DetachReplicaParams) error { return nil })
	register(guest.MethodCleanupSourceOnDetach, func(ctx context.Context, params guest.CleanupSourceParams) error { return nil })
}

func testTimeouts() model.TaskTimeouts {
	return model.TaskTimeouts{
		AgentLow:      5 * time.Second,
		AgentHigh:     time.Minute,
		AgentSnapshot: 10 * time.Minute,
		StateChange:   3 * time.Minute,
		ServerDelete:  2 * time.Minute,
		Volume:        2 * time.Minute,
		Reboot:        2 * time.Minute,
		Resize:        5 * time.Minute,
		Revert:        5 * time.Minute,
		DNS:           2 * time.Minute,
		HeartbeatTTL:  20 * time.Second,
	}
}

func testInstance(id string) *model.Instance {
	serverID := "srv-" + id
	volumeID := "vol-" + id
	return &model.Instance{
		ID:                id,
		TenantID:          "test-tenant-1",
		Name:              "db-" + id,
		FlavorID:          "flavor-1",
		VolumeSize:        10,
		VolumeID:          &volumeID,
		ComputeInstanceID: &serverID,
		ServiceType:       "mysql",
		TaskStatusName:    model.TaskBuilding.Name,
	}
}
