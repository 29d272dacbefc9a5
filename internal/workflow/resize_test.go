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

// ---------- ResizeFlavorWorkflow ----------

type ResizeFlavorWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *ResizeFlavorWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
	registerGuestStubs(s.env)
}

func (s *ResizeFlavorWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *ResizeFlavorWorkflowTestSuite) resizeParams() ResizeFlavorParams {
	return ResizeFlavorParams{
		InstanceID:     "test-instance-1",
		NewFlavorID:    "flavor-3",
		NewMemoryMB:    4096,
		ConfigContents: "[mysqld]\ninnodb_buffer_pool_size = 3G\n",
		Timeouts:       testTimeouts(),
	}
}

func (s *ResizeFlavorWorkflowTestSuite) TestConfirmedResize() {
	inst := testInstance("test-instance-1")
	s.env.OnActivity("GetInstance", mock.Anything, "test-instance-1").Return(inst, nil)

	s.env.OnActivity(guest.MethodStopDB, mock.Anything, mock.MatchedBy(func(p guest.StopParams) bool {
		return p.DoNotStartOnReboot
	})).Return(nil)
	s.env.OnActivity("ResizeServer", mock.Anything, activity.ResizeServerParams{
		ServerID: "srv-test-instance-1", FlavorID: "flavor-3",
	}).Return(nil)

	// Migration in flight, then parked in VERIFY_RESIZE on the new flavor.
	s.env.OnActivity("GetServer", mock.Anything, "srv-test-instance-1").
		Return(&substrate.Server{ID: "srv-test-instance-1", Status: model.ServerResize}, nil).Once()
	s.env.OnActivity("GetServer", mock.Anything, "srv-test-instance-1").
		Return(&substrate.Server{ID: "srv-test-instance-1", Status: model.ServerVerifyResize, FlavorID: "flavor-3"}, nil).Once()

	// Agent wakes up and the database comes back RUNNING.
	s.env.OnActivity("SetServiceStatus", mock.Anything, activity.SetServiceStatusParams{
		InstanceID: "test-instance-1", Status: model.ServicePaused,
	}).Return(nil)
	s.env.OnActivity("GetServiceStatus", mock.Anything, "test-instance-1").
		Return(&model.ServiceStatusRecord{InstanceID: "test-instance-1", Status: model.ServiceRunning}, nil)
	s.env.OnActivity(guest.MethodStartDBWithConfChanges, mock.Anything, mock.Anything).Return(nil)

	s.env.OnActivity("ConfirmResize", mock.Anything, "srv-test-instance-1").Return(nil)
	s.env.OnActivity("SetFlavor", mock.Anything, activity.SetFlavorParams{
		InstanceID: "test-instance-1", FlavorID: "flavor-3",
	}).Return(nil)
	s.env.OnActivity("UpdateTaskStatus", mock.Anything, activity.UpdateTaskStatusParams{
		InstanceID: "test-instance-1", TaskStatus: model.TaskNone.Name,
	}).Return(nil)

	s.env.ExecuteWorkflow(ResizeFlavorWorkflow, s.resizeParams())
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *ResizeFlavorWorkflowTestSuite) TestWrongFlavorReverts() {
	inst := testInstance("test-instance-1")
	s.env.OnActivity("GetInstance", mock.Anything, "test-instance-1").Return(inst, nil)

	s.env.OnActivity(guest.MethodStopDB, mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ResizeServer", mock.Anything, mock.Anything).Return(nil)

	// The substrate parks the server in VERIFY_RESIZE but on the old flavor.
	s.env.OnActivity("GetServer", mock.Anything, "srv-test-instance-1").
		Return(&substrate.Server{ID: "srv-test-instance-1", Status: model.ServerVerifyResize, FlavorID: "flavor-1"}, nil).Once()

	s.env.OnActivity("RevertResize", mock.Anything, "srv-test-instance-1").Return(nil)
	s.env.OnActivity("GetServer", mock.Anything, "srv-test-instance-1").
		Return(&substrate.Server{ID: "srv-test-instance-1", Status: model.ServerActive, FlavorID: "flavor-1"}, nil)
	s.env.OnActivity(guest.MethodRestart, mock.Anything, mock.Anything).Return(nil)

	s.env.OnActivity("UpdateTaskStatus", mock.Anything, activity.UpdateTaskStatusParams{
		InstanceID: "test-instance-1", TaskStatus: model.TaskNone.Name,
	}).Return(nil)

	s.env.ExecuteWorkflow(ResizeFlavorWorkflow, s.resizeParams())
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
	// ConfirmResize must never fire on the revert path.
	s.env.AssertNotCalled(s.T(), "ConfirmResize", mock.Anything, mock.Anything)
	// The recorded flavor must not change.
	s.env.AssertNotCalled(s.T(), "SetFlavor", mock.Anything, mock.Anything)
}

func (s *ResizeFlavorWorkflowTestSuite) TestSilentGuestAfterMigrationReverts() {
	inst := testInstance("test-instance-1")
	s.env.OnActivity("GetInstance", mock.Anything, "test-instance-1").Return(inst, nil)

	s.env.OnActivity(guest.MethodStopDB, mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ResizeServer", mock.Anything, mock.Anything).Return(nil)

	s.env.OnActivity("GetServer", mock.Anything, "srv-test-instance-1").
		Return(&substrate.Server{ID: "srv-test-instance-1", Status: model.ServerVerifyResize, FlavorID: "flavor-3"}, nil).Once()

	// The agent never overwrites the forced PAUSED sentinel, so the wait for
	// a fresh status report must hit its deadline and trigger the revert.
	s.env.OnActivity("SetServiceStatus", mock.Anything, activity.SetServiceStatusParams{
		InstanceID: "test-instance-1", Status: model.ServicePaused,
	}).Return(nil)
	s.env.OnActivity("GetServiceStatus", mock.Anything, "test-instance-1").
		Return(&model.ServiceStatusRecord{InstanceID: "test-instance-1", Status: model.ServicePaused}, nil)

	s.env.OnActivity("RevertResize", mock.Anything, "srv-test-instance-1").Return(nil)
	s.env.OnActivity("GetServer", mock.Anything, "srv-test-instance-1").
		Return(&substrate.Server{ID: "srv-test-instance-1", Status: model.ServerActive, FlavorID: "flavor-1"}, nil)
	s.env.OnActivity(guest.MethodRestart, mock.Anything, mock.Anything).Return(nil)

	s.env.OnActivity("UpdateTaskStatus", mock.Anything, activity.UpdateTaskStatusParams{
		InstanceID: "test-instance-1", TaskStatus: model.TaskNone.Name,
	}).Return(nil)

	s.env.ExecuteWorkflow(ResizeFlavorWorkflow, s.resizeParams())
	s.True(s.env.IsWorkflowCompleted())

	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Equal(fault.PollTimeout, fault.KindOf(err))
	// The database never starts on the new flavor, and nothing confirms.
	s.env.AssertNotCalled(s.T(), guest.MethodStartDBWithConfChanges, mock.Anything, mock.Anything)
	s.env.AssertNotCalled(s.T(), "ConfirmResize", mock.Anything, mock.Anything)
	s.env.AssertNotCalled(s.T(), "SetFlavor", mock.Anything, mock.Anything)
}

func (s *ResizeFlavorWorkflowTestSuite) TestGuestStopFailureAbortsEarly() {
	inst := testInstance("test-instance-1")
	s.env.OnActivity("GetInstance", mock.Anything, "test-instance-1").Return(inst, nil)
	s.env.OnActivity(guest.MethodStopDB, mock.Anything, mock.Anything).
		Return(errors.New("agent unreachable"))

	s.env.OnActivity("UpdateTaskStatus", mock.Anything, activity.UpdateTaskStatusParams{
		InstanceID: "test-instance-1", TaskStatus: model.TaskNone.Name,
	}).Return(nil)

	s.env.ExecuteWorkflow(ResizeFlavorWorkflow, s.resizeParams())
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "ResizeServer", mock.Anything, mock.Anything)
}

func TestResizeFlavorWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(ResizeFlavorWorkflowTestSuite))
}

// ---------- ResizeVolumeWorkflow ----------

type ResizeVolumeWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *ResizeVolumeWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
	registerGuestStubs(s.env)
}

func (s *ResizeVolumeWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *ResizeVolumeWorkflowTestSuite) TestExtendAndRescan() {
	inst := testInstance("test-instance-1")
	s.env.OnActivity("GetInstance", mock.Anything, "test-instance-1").Return(inst, nil)

	s.env.OnActivity(guest.MethodStopDB, mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ExtendVolume", mock.Anything, activity.ExtendVolumeParams{
		VolumeID: "vol-test-instance-1", NewSizeGB: 20,
	}).Return(nil)

	s.env.OnActivity("GetVolume", mock.Anything, "vol-test-instance-1").
		Return(&substrate.Volume{ID: "vol-test-instance-1", Status: "extending", SizeGB: 10}, nil).Once()
	s.env.OnActivity("GetVolume", mock.Anything, "vol-test-instance-1").
		Return(&substrate.Volume{ID: "vol-test-instance-1", Status: substrate.VolumeInUse, SizeGB: 20}, nil).Once()

	s.env.OnActivity("RescanServerVolume", mock.Anything, activity.RescanServerVolumeParams{
		ServerID: "srv-test-instance-1", VolumeID: "vol-test-instance-1",
	}).Return(nil)
	s.env.OnActivity(guest.MethodRestart, mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("SetVolumeSize", mock.Anything, activity.SetVolumeSizeParams{
		InstanceID: "test-instance-1", SizeGB: 20,
	}).Return(nil)
	s.env.OnActivity("CommitReservations", mock.Anything, []string{"res-1"}).Return(nil)
	s.env.OnActivity("UpdateTaskStatus", mock.Anything, activity.UpdateTaskStatusParams{
		InstanceID: "test-instance-1", TaskStatus: model.TaskNone.Name,
	}).Return(nil)

	s.env.ExecuteWorkflow(ResizeVolumeWorkflow, ResizeVolumeParams{
		InstanceID:     "test-instance-1",
		NewSizeGB:      20,
		ReservationIDs: []string{"res-1"},
		Timeouts:       testTimeouts(),
	})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *ResizeVolumeWorkflowTestSuite) TestExtendFailureRestartsDatabase() {
	inst := testInstance("test-instance-1")
	s.env.OnActivity("GetInstance", mock.Anything, "test-instance-1").Return(inst, nil)
	s.env.OnActivity(guest.MethodStopDB, mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ExtendVolume", mock.Anything, mock.Anything).Return(errors.New("volume api down"))
	s.env.OnActivity(guest.MethodRestart, mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("RollbackReservations", mock.Anything, []string{"res-1"}).Return(nil)
	s.env.OnActivity("UpdateTaskStatus", mock.Anything, activity.UpdateTaskStatusParams{
		InstanceID: "test-instance-1", TaskStatus: model.TaskNone.Name,
	}).Return(nil)

	s.env.ExecuteWorkflow(ResizeVolumeWorkflow, ResizeVolumeParams{
		InstanceID:     "test-instance-1",
		NewSizeGB:      20,
		ReservationIDs: []string{"res-1"},
		Timeouts:       testTimeouts(),
	})
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "SetVolumeSize", mock.Anything, mock.Anything)
	s.env.AssertNotCalled(s.T(), "CommitReservations", mock.Anything, mock.Anything)
}

func TestResizeVolumeWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(ResizeVolumeWorkflowTestSuite))
}
