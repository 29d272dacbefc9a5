package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/model"
)

type InstanceTaskWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment

	executed []string
}

func (s *InstanceTaskWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.executed = nil

	s.env.RegisterWorkflowWithOptions(func(ctx workflow.Context, arg string) error {
		s.executed = append(s.executed, arg)
		return nil
	}, workflow.RegisterOptions{Name: "RecordingTaskWorkflow"})

	s.env.RegisterWorkflowWithOptions(func(ctx workflow.Context, arg string) error {
		return errors.New("task blew up")
	}, workflow.RegisterOptions{Name: "FailingTaskWorkflow"})
}

func (s *InstanceTaskWorkflowTestSuite) signalTask(delay time.Duration, task model.InstanceTask) {
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(model.TaskSignalName, task)
	}, delay)
}

func (s *InstanceTaskWorkflowTestSuite) TestRunsSignalledTasksInOrder() {
	s.signalTask(0, model.InstanceTask{
		WorkflowName: "RecordingTaskWorkflow",
		WorkflowID:   "task-1",
		Arg:          "first",
	})
	s.signalTask(time.Second, model.InstanceTask{
		WorkflowName: "RecordingTaskWorkflow",
		WorkflowID:   "task-2",
		Arg:          "second",
	})

	s.env.ExecuteWorkflow(InstanceTaskWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.Equal([]string{"first", "second"}, s.executed)
}

func (s *InstanceTaskWorkflowTestSuite) TestIdleTimeoutCompletes() {
	s.env.ExecuteWorkflow(InstanceTaskWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.Empty(s.executed)
}

func (s *InstanceTaskWorkflowTestSuite) TestFailingTaskDoesNotStopTheLoop() {
	s.signalTask(0, model.InstanceTask{
		WorkflowName: "FailingTaskWorkflow",
		WorkflowID:   "task-1",
		Arg:          "boom",
	})
	s.signalTask(time.Second, model.InstanceTask{
		WorkflowName: "RecordingTaskWorkflow",
		WorkflowID:   "task-2",
		Arg:          "after-failure",
	})

	s.env.ExecuteWorkflow(InstanceTaskWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.Equal([]string{"after-failure"}, s.executed)
}

func TestInstanceTaskWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(InstanceTaskWorkflowTestSuite))
}

func TestInstanceTaskWorkflowID(t *testing.T) {
	if got := InstanceTaskWorkflowID("abc-123"); got != "instance-tasks-abc-123" {
		t.Fatalf("unexpected workflow id %q", got)
	}
}
