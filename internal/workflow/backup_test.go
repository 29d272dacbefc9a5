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
)

type BackupWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *BackupWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
	registerGuestStubs(s.env)
}

func (s *BackupWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *BackupWorkflowTestSuite) TestBackupJobReachesGuest() {
	s.env.OnActivity("VerifyObjectStoreAccount", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity(guest.MethodCreateBackup, mock.Anything, mock.MatchedBy(func(p guest.CreateBackupParams) bool {
		return p.BackupID == "backup-1" && p.Bucket == "db-backups" &&
			p.ObjectKey == "test-tenant-1/backup-1.xbstream" && p.Version == guest.APIVersion
	})).Return(nil)

	s.env.ExecuteWorkflow(CreateBackupWorkflow, CreateBackupParams{
		InstanceID: "test-instance-1",
		BackupID:   "backup-1",
		BackupType: "xtrabackup",
		Bucket:     "db-backups",
		ObjectKey:  "test-tenant-1/backup-1.xbstream",
		Timeouts:   testTimeouts(),
	})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *BackupWorkflowTestSuite) TestBadObjectStoreCredentialsFailBackup() {
	s.env.OnActivity("VerifyObjectStoreAccount", mock.Anything, mock.Anything).
		Return(fault.New(fault.ObjectStoreAuth, "object store rejected credentials"))
	s.env.OnActivity("UpdateBackupState", mock.Anything, activity.UpdateBackupStateParams{
		BackupID: "backup-1",
		State:    model.BackupFailed,
	}).Return(nil)

	s.env.ExecuteWorkflow(CreateBackupWorkflow, CreateBackupParams{
		InstanceID: "test-instance-1",
		BackupID:   "backup-1",
		Timeouts:   testTimeouts(),
	})
	s.True(s.env.IsWorkflowCompleted())

	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Equal(fault.ObjectStoreAuth, fault.KindOf(err))
	// The cast never fires if the credential probe fails.
	s.env.AssertNotCalled(s.T(), guest.MethodCreateBackup, mock.Anything, mock.Anything)
}

func (s *BackupWorkflowTestSuite) TestDeleteBackupReleasesQuota() {
	s.env.OnActivity("Reserve", mock.Anything, activity.ReserveParams{
		TenantID: "test-tenant-1",
		Deltas:   map[string]int{model.ResourceBackups: -1},
	}).Return([]string{"rel-1"}, nil)
	s.env.OnActivity("SoftDeleteBackup", mock.Anything, "backup-1").Return(nil)
	s.env.OnActivity("CommitReservations", mock.Anything, []string{"rel-1"}).Return(nil)

	s.env.ExecuteWorkflow(DeleteBackupWorkflow, DeleteBackupParams{
		TenantID: "test-tenant-1",
		BackupID: "backup-1",
	})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *BackupWorkflowTestSuite) TestDeleteBackupRowFailureKeepsQuota() {
	s.env.OnActivity("Reserve", mock.Anything, mock.Anything).Return([]string{"rel-1"}, nil)
	s.env.OnActivity("SoftDeleteBackup", mock.Anything, "backup-1").
		Return(errors.New("db down"))
	s.env.OnActivity("RollbackReservations", mock.Anything, []string{"rel-1"}).Return(nil)

	s.env.ExecuteWorkflow(DeleteBackupWorkflow, DeleteBackupParams{
		TenantID: "test-tenant-1",
		BackupID: "backup-1",
	})
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "CommitReservations", mock.Anything, mock.Anything)
}

func TestBackupWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(BackupWorkflowTestSuite))
}
