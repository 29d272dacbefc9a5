package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/dbaas/internal/activity"
	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/substrate"
)

// ---------- CreateInstanceWorkflow ----------

type CreateInstanceWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *CreateInstanceWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
	registerGuestStubs(s.env)
}

func (s *CreateInstanceWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *CreateInstanceWorkflowTestSuite) createParams() CreateInstanceParams {
	return CreateInstanceParams{
		InstanceID:     "test-instance-1",
		TenantID:       "test-tenant-1",
		Name:           "mydb",
		FlavorID:       "flavor-2",
		ImageID:        "image-1",
		VolumeSize:     10,
		MemoryMB:       2048,
		ReservationIDs: []string{"res-1", "res-2"},
		VolumeSupport:  true,
		Timeouts:       testTimeouts(),
	}
}

func (s *CreateInstanceWorkflowTestSuite) TestHappyPath() {
	params := s.createParams()

	s.env.OnActivity("CreateVolume", mock.Anything, mock.Anything).
		Return(&substrate.Volume{ID: "vol-1", Status: "creating"}, nil)
	s.env.OnActivity("SetVolumeID", mock.Anything, activity.SetVolumeIDParams{
		InstanceID: "test-instance-1", VolumeID: "vol-1",
	}).Return(nil)
	s.env.OnActivity("GetVolume", mock.Anything, "vol-1").
		Return(&substrate.Volume{ID: "vol-1", Status: substrate.VolumeAvailable, SizeGB: 10}, nil)

	s.env.OnActivity("CreateServer", mock.Anything, mock.MatchedBy(func(p substrate.CreateServerParams) bool {
		return p.Name == "mydb" && len(p.BlockDevices) == 1 && p.BlockDevices[0].VolumeID == "vol-1" &&
			p.BlockDevices[0].DeleteOnTermination &&
			p.Files[guestInfoPath] != ""
	})).Return(&substrate.Server{ID: "srv-1", Status: model.ServerBuild}, nil)
	s.env.OnActivity("SetComputeInstanceID", mock.Anything, activity.SetComputeInstanceIDParams{
		InstanceID: "test-instance-1", ServerID: "srv-1",
	}).Return(nil)
	s.env.OnActivity("GetServer", mock.Anything, "srv-1").
		Return(&substrate.Server{ID: "srv-1", Status: model.ServerActive, FlavorID: "flavor-2"}, nil)

	s.env.OnActivity(guest.MethodPrepare, mock.Anything, mock.MatchedBy(func(p guest.PrepareParams) bool {
		return p.InstanceID == "test-instance-1" && p.MemoryMB == 2048 &&
			p.MountPoint == volumeMountPoint && p.Version == guest.APIVersion
	})).Return(nil)

	s.env.OnActivity("CommitReservations", mock.Anything, []string{"res-1", "res-2"}).Return(nil)
	s.env.OnActivity("UpdateTaskStatus", mock.Anything, activity.UpdateTaskStatusParams{
		InstanceID: "test-instance-1", TaskStatus: model.TaskNone.Name,
	}).Return(nil)

	s.env.ExecuteWorkflow(CreateInstanceWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *CreateInstanceWorkflowTestSuite) TestCommitFailureStillClearsTask() {
	params := s.createParams()
	params.VolumeSupport = false

	s.env.OnActivity("CreateServer", mock.Anything, mock.Anything).
		Return(&substrate.Server{ID: "srv-1", Status: model.ServerBuild}, nil)
	s.env.OnActivity("SetComputeInstanceID", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("GetServer", mock.Anything, "srv-1").
		Return(&substrate.Server{ID: "srv-1", Status: model.ServerActive}, nil)
	s.env.OnActivity(guest.MethodPrepare, mock.Anything, mock.Anything).Return(nil)

	// Quota bookkeeping is unreachable; the build must still land in NONE
	// so the instance does not sit in BUILDING forever.
	s.env.OnActivity("CommitReservations", mock.Anything, []string{"res-1", "res-2"}).
		Return(errors.New("db unreachable"))
	s.env.OnActivity("UpdateTaskStatus", mock.Anything, activity.UpdateTaskStatusParams{
		InstanceID: "test-instance-1", TaskStatus: model.TaskNone.Name,
	}).Return(nil)

	s.env.ExecuteWorkflow(CreateInstanceWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *CreateInstanceWorkflowTestSuite) TestVolumeNeverReady() {
	params := s.createParams()

	s.env.OnActivity("CreateVolume", mock.Anything, mock.Anything).
		Return(&substrate.Volume{ID: "vol-1", Status: "creating"}, nil)
	s.env.OnActivity("SetVolumeID", mock.Anything, mock.Anything).Return(nil)
	// The volume never leaves "creating"; the poll must hit its deadline.
	s.env.OnActivity("GetVolume", mock.Anything, "vol-1").
		Return(&substrate.Volume{ID: "vol-1", Status: "creating"}, nil)

	s.env.OnActivity("UpdateTaskStatus", mock.Anything, activity.UpdateTaskStatusParams{
		InstanceID: "test-instance-1", TaskStatus: model.TaskBuildingErrorVolume.Name,
	}).Return(nil)
	s.env.OnActivity("RollbackReservations", mock.Anything, []string{"res-1", "res-2"}).Return(nil)

	s.env.ExecuteWorkflow(CreateInstanceWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())

	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Equal(fault.PollTimeout, fault.KindOf(err))
}

func (s *CreateInstanceWorkflowTestSuite) TestServerErrorReleasesQuota() {
	params := s.createParams()

	s.env.OnActivity("CreateVolume", mock.Anything, mock.Anything).
		Return(&substrate.Volume{ID: "vol-1", Status: substrate.VolumeAvailable}, nil)
	s.env.OnActivity("SetVolumeID", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("GetVolume", mock.Anything, "vol-1").
		Return(&substrate.Volume{ID: "vol-1", Status: substrate.VolumeAvailable}, nil)

	s.env.OnActivity("CreateServer", mock.Anything, mock.Anything).
		Return(&substrate.Server{ID: "srv-1", Status: model.ServerBuild}, nil)
	s.env.OnActivity("SetComputeInstanceID", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("GetServer", mock.Anything, "srv-1").
		Return(&substrate.Server{ID: "srv-1", Status: model.ServerError}, nil)

	s.env.OnActivity("UpdateTaskStatus", mock.Anything, activity.UpdateTaskStatusParams{
		InstanceID: "test-instance-1", TaskStatus: model.TaskBuildingErrorServer.Name,
	}).Return(nil)
	s.env.OnActivity("RollbackReservations", mock.Anything, []string{"res-1", "res-2"}).Return(nil)

	s.env.ExecuteWorkflow(CreateInstanceWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func (s *CreateInstanceWorkflowTestSuite) TestDNSFailureMarksDNSError() {
	params := s.createParams()
	params.VolumeSupport = false
	params.DNSSupport = true

	s.env.OnActivity("CreateServer", mock.Anything, mock.Anything).
		Return(&substrate.Server{ID: "srv-1", Status: model.ServerBuild}, nil)
	s.env.OnActivity("SetComputeInstanceID", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("GetServer", mock.Anything, "srv-1").
		Return(&substrate.Server{
			ID: "srv-1", Status: model.ServerActive,
			Addresses: map[string]string{"private": "10.0.0.5"},
		}, nil)
	s.env.OnActivity("CreateDNSEntry", mock.Anything, activity.CreateDNSEntryParams{
		InstanceID: "test-instance-1", Address: "10.0.0.5",
	}).Return("", errors.New("zone missing"))

	s.env.OnActivity("UpdateTaskStatus", mock.Anything, activity.UpdateTaskStatusParams{
		InstanceID: "test-instance-1", TaskStatus: model.TaskBuildingErrorDNS.Name,
	}).Return(nil)
	s.env.OnActivity("RollbackReservations", mock.Anything, mock.Anything).Return(nil)

	s.env.ExecuteWorkflow(CreateInstanceWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func TestCreateInstanceWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(CreateInstanceWorkflowTestSuite))
}
