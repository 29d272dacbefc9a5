package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/dbaas/internal/activity"
	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/substrate"
)

// ---------- DeleteInstanceWorkflow ----------

type DeleteInstanceWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *DeleteInstanceWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *DeleteInstanceWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *DeleteInstanceWorkflowTestSuite) deleteParams() DeleteInstanceParams {
	return DeleteInstanceParams{
		InstanceID: "test-instance-1",
		TenantID:   "test-tenant-1",
		Timeouts:   testTimeouts(),
	}
}

func (s *DeleteInstanceWorkflowTestSuite) TestFullTeardown() {
	inst := testInstance("test-instance-1")
	s.env.OnActivity("GetInstance", mock.Anything, "test-instance-1").Return(inst, nil)

	// Quota release opens first with negative deltas.
	s.env.OnActivity("Reserve", mock.Anything, mock.MatchedBy(func(p activity.ReserveParams) bool {
		return p.TenantID == "test-tenant-1" &&
			p.Deltas[model.ResourceInstances] == -1 &&
			p.Deltas[model.ResourceVolumes] == -10
	})).Return([]string{"rel-1", "rel-2"}, nil)

	s.env.OnActivity("DeleteDNSEntry", mock.Anything, "test-instance-1").Return(nil)
	s.env.OnActivity("DeleteServer", mock.Anything, "srv-test-instance-1").Return(nil)
	s.env.OnActivity("GetServer", mock.Anything, "srv-test-instance-1").
		Return(nil, fault.New(fault.ComputeInstanceNotFound, "server gone"))
	s.env.OnActivity("DeleteVolume", mock.Anything, "vol-test-instance-1").Return(nil)
	s.env.OnActivity("SoftDeleteInstance", mock.Anything, "test-instance-1").Return(nil)
	s.env.OnActivity("CommitReservations", mock.Anything, []string{"rel-1", "rel-2"}).Return(nil)

	s.env.ExecuteWorkflow(DeleteInstanceWorkflow, s.deleteParams())
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *DeleteInstanceWorkflowTestSuite) TestSubstrateFailuresDoNotBlockDeletion() {
	inst := testInstance("test-instance-1")
	s.env.OnActivity("GetInstance", mock.Anything, "test-instance-1").Return(inst, nil)
	s.env.OnActivity("Reserve", mock.Anything, mock.Anything).Return([]string{"rel-1"}, nil)

	// Every substrate call fails; the rows must still go away and the quota
	// release must still commit.
	s.env.OnActivity("DeleteDNSEntry", mock.Anything, "test-instance-1").
		Return(errors.New("dns backend down"))
	s.env.OnActivity("DeleteServer", mock.Anything, "srv-test-instance-1").
		Return(errors.New("compute api down"))
	s.env.OnActivity("DeleteVolume", mock.Anything, "vol-test-instance-1").
		Return(errors.New("volume api down"))
	s.env.OnActivity("SoftDeleteInstance", mock.Anything, "test-instance-1").Return(nil)
	s.env.OnActivity("CommitReservations", mock.Anything, []string{"rel-1"}).Return(nil)

	s.env.ExecuteWorkflow(DeleteInstanceWorkflow, s.deleteParams())
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *DeleteInstanceWorkflowTestSuite) TestRowDeletionFailureRollsBackRelease() {
	inst := testInstance("test-instance-1")
	inst.ComputeInstanceID = nil
	inst.VolumeID = nil
	s.env.OnActivity("GetInstance", mock.Anything, "test-instance-1").Return(inst, nil)
	s.env.OnActivity("Reserve", mock.Anything, mock.Anything).Return([]string{"rel-1"}, nil)
	s.env.OnActivity("DeleteDNSEntry", mock.Anything, "test-instance-1").Return(nil)
	s.env.OnActivity("SoftDeleteInstance", mock.Anything, "test-instance-1").
		Return(errors.New("db down"))
	s.env.OnActivity("RollbackReservations", mock.Anything, []string{"rel-1"}).Return(nil)

	s.env.ExecuteWorkflow(DeleteInstanceWorkflow, s.deleteParams())
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func (s *DeleteInstanceWorkflowTestSuite) TestWaitsForServerTeardown() {
	inst := testInstance("test-instance-1")
	inst.VolumeID = nil
	s.env.OnActivity("GetInstance", mock.Anything, "test-instance-1").Return(inst, nil)
	s.env.OnActivity("Reserve", mock.Anything, mock.Anything).Return([]string{"rel-1"}, nil)
	s.env.OnActivity("DeleteDNSEntry", mock.Anything, "test-instance-1").Return(nil)
	s.env.OnActivity("DeleteServer", mock.Anything, "srv-test-instance-1").Return(nil)

	// First poll still sees the server, second sees it DELETED.
	s.env.OnActivity("GetServer", mock.Anything, "srv-test-instance-1").
		Return(&substrate.Server{ID: "srv-test-instance-1", Status: model.ServerActive}, nil).Once()
	s.env.OnActivity("GetServer", mock.Anything, "srv-test-instance-1").
		Return(&substrate.Server{ID: "srv-test-instance-1", Status: model.ServerDeleted}, nil).Once()

	s.env.OnActivity("SoftDeleteInstance", mock.Anything, "test-instance-1").Return(nil)
	s.env.OnActivity("CommitReservations", mock.Anything, []string{"rel-1"}).Return(nil)

	s.env.ExecuteWorkflow(DeleteInstanceWorkflow, s.deleteParams())
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *DeleteInstanceWorkflowTestSuite) TestVanishedServerNotRetried() {
	inst := testInstance("test-instance-1")
	inst.VolumeID = nil
	s.env.OnActivity("GetInstance", mock.Anything, "test-instance-1").Return(inst, nil)
	s.env.OnActivity("Reserve", mock.Anything, mock.Anything).Return([]string{"rel-1"}, nil)
	s.env.OnActivity("DeleteDNSEntry", mock.Anything, "test-instance-1").Return(nil)

	// The server is already gone. A definitive answer like this must be
	// taken on the first attempt, not hammered through the retry policy.
	attempts := 0
	s.env.OnActivity("DeleteServer", mock.Anything, "srv-test-instance-1").
		Return(func(ctx context.Context, serverID string) error {
			attempts++
			return temporal.NewApplicationError("server gone", string(fault.ComputeInstanceNotFound))
		})

	s.env.OnActivity("SoftDeleteInstance", mock.Anything, "test-instance-1").Return(nil)
	s.env.OnActivity("CommitReservations", mock.Anything, []string{"rel-1"}).Return(nil)

	s.env.ExecuteWorkflow(DeleteInstanceWorkflow, s.deleteParams())
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.Equal(1, attempts)
	s.env.AssertNotCalled(s.T(), "GetServer", mock.Anything, mock.Anything)
}

func TestDeleteInstanceWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(DeleteInstanceWorkflowTestSuite))
}
