package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceStatus_API(t *testing.T) {
	cases := map[ServiceStatus]APIStatus{
		ServiceNew:      APINew,
		ServiceBuilding: APIBuild,
		ServiceRunning:  APIActive,
		ServiceBlocked:  APIBlocked,
		ServicePaused:   APIShutdown,
		ServiceShutdown: APIShutdown,
		ServiceCrashed:  APIError,
		ServiceFailed:   APIFailed,
		ServiceUnknown:  APIError,
	}
	for svc, want := range cases {
		assert.Equal(t, want, svc.API(), "service status %s", svc)
	}
	assert.Equal(t, APIError, ServiceStatus("bogus").API())
}

func TestDeriveStatus_ServerStatusWins(t *testing.T) {
	assert.Equal(t, APIBuild, DeriveStatus(ServerBuild, ServiceRunning, TaskNone))
	assert.Equal(t, APIError, DeriveStatus(ServerError, ServiceRunning, TaskNone))
	assert.Equal(t, APIReboot, DeriveStatus(ServerReboot, ServiceRunning, TaskNone))
	assert.Equal(t, APIResize, DeriveStatus(ServerResize, ServiceRunning, TaskNone))
	assert.Equal(t, APIResize, DeriveStatus(ServerVerifyResize, ServiceRunning, TaskNone))
}

func TestDeriveStatus_PausedMeansReboot(t *testing.T) {
	assert.Equal(t, APIReboot, DeriveStatus(ServerActive, ServicePaused, TaskNone))
}

func TestDeriveStatus_NewMeansBuild(t *testing.T) {
	assert.Equal(t, APIBuild, DeriveStatus(ServerActive, ServiceNew, TaskNone))
}

func TestDeriveStatus_Deleting(t *testing.T) {
	assert.Equal(t, APIShutdown, DeriveStatus(ServerActive, ServiceRunning, TaskDeleting))
	assert.Equal(t, APIShutdown, DeriveStatus(ServerShutdown, ServiceShutdown, TaskDeleting))
	assert.Equal(t, APIShutdown, DeriveStatus("", ServiceShutdown, TaskDeleting))
	// Any other server state during delete is an anomaly.
	assert.Equal(t, APIError, DeriveStatus("PAUSED", ServiceRunning, TaskDeleting))
}

func TestDeriveStatus_FallsBackToServiceMapping(t *testing.T) {
	assert.Equal(t, APIActive, DeriveStatus(ServerActive, ServiceRunning, TaskNone))
	assert.Equal(t, APIBlocked, DeriveStatus(ServerActive, ServiceBlocked, TaskNone))
	assert.Equal(t, APIFailed, DeriveStatus(ServerActive, ServiceFailed, TaskNone))
	assert.Equal(t, APIError, DeriveStatus(ServerActive, ServiceUnknown, TaskNone))
}

func TestTaskStatusByName(t *testing.T) {
	assert.Equal(t, TaskBuilding, TaskStatusByName("BUILDING"))
	assert.True(t, TaskStatusByName("BUILDING_ERROR_VOLUME").Error)
	assert.Equal(t, TaskNone, TaskStatusByName("bogus"))
}

func TestTaskStatus_Transient(t *testing.T) {
	assert.True(t, TaskBuilding.Transient())
	assert.True(t, TaskDeleting.Transient())
	assert.False(t, TaskNone.Transient())
	assert.False(t, TaskBuildingErrorServer.Transient())
}

func TestBackupState_Running(t *testing.T) {
	assert.True(t, BackupNew.Running())
	assert.True(t, BackupBuilding.Running())
	assert.True(t, BackupSaving.Running())
	assert.False(t, BackupCompleted.Running())
	assert.False(t, BackupFailed.Running())
}
