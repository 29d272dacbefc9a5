package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/dbaas/internal/model"
)

type fakeHeartbeats struct {
	instanceID string
	at         time.Time
}

func (f *fakeHeartbeats) Upsert(_ context.Context, instanceID string, at time.Time) error {
	f.instanceID = instanceID
	f.at = at
	return nil
}

type fakeStatuses struct {
	instanceID string
	status     model.ServiceStatus
}

func (f *fakeStatuses) Upsert(_ context.Context, instanceID string, status model.ServiceStatus) error {
	f.instanceID = instanceID
	f.status = status
	return nil
}

type fakeBackups struct {
	id       string
	state    model.BackupState
	location string
	checksum string
	size     int64
	complete bool
}

func (f *fakeBackups) UpdateState(_ context.Context, id string, state model.BackupState) error {
	f.id = id
	f.state = state
	return nil
}

func (f *fakeBackups) CompleteFromGuest(_ context.Context, id string, state model.BackupState, location, checksum string, sizeBytes int64, _ time.Time) error {
	f.id = id
	f.state = state
	f.location = location
	f.checksum = checksum
	f.size = sizeBytes
	f.complete = true
	return nil
}

func internalRouter(h *Internal) chi.Router {
	r := chi.NewRouter()
	r.Post("/instances/{instanceID}/heartbeat", h.Heartbeat)
	r.Post("/instances/{instanceID}/status", h.Status)
	r.Post("/backups/{backupID}/complete", h.CompleteBackup)
	return r
}

func TestInternal_Heartbeat(t *testing.T) {
	heartbeats := &fakeHeartbeats{}
	router := internalRouter(NewInternal(heartbeats, &fakeStatuses{}, &fakeBackups{}))

	req := httptest.NewRequest("POST", "/instances/instance-1/heartbeat", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "instance-1", heartbeats.instanceID)
	assert.WithinDuration(t, time.Now(), heartbeats.at, time.Minute)
}

func TestInternal_Status(t *testing.T) {
	statuses := &fakeStatuses{}
	router := internalRouter(NewInternal(&fakeHeartbeats{}, statuses, &fakeBackups{}))

	body := strings.NewReader(`{"status":"RUNNING"}`)
	req := httptest.NewRequest("POST", "/instances/instance-1/status", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "instance-1", statuses.instanceID)
	assert.Equal(t, model.ServiceRunning, statuses.status)
}

func TestInternal_StatusRejectsUnknown(t *testing.T) {
	statuses := &fakeStatuses{}
	router := internalRouter(NewInternal(&fakeHeartbeats{}, statuses, &fakeBackups{}))

	body := strings.NewReader(`{"status":"SLEEPING"}`)
	req := httptest.NewRequest("POST", "/instances/instance-1/status", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, statuses.instanceID)
}

func TestInternal_CompleteBackup(t *testing.T) {
	backups := &fakeBackups{}
	router := internalRouter(NewInternal(&fakeHeartbeats{}, &fakeStatuses{}, backups))

	body := strings.NewReader(`{
		"state": "COMPLETED",
		"location": "https://objects.local/database-backups/t1/b1.xbstream.gz",
		"checksum": "abc123",
		"size_bytes": 2048,
		"backup_timestamp": "2026-09-01T10:00:00Z"
	}`)
	req := httptest.NewRequest("POST", "/backups/backup-1/complete", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, backups.complete)
	assert.Equal(t, "backup-1", backups.id)
	assert.Equal(t, model.BackupCompleted, backups.state)
	assert.Equal(t, "abc123", backups.checksum)
	assert.Equal(t, int64(2048), backups.size)
}

func TestInternal_CompleteBackupFailed(t *testing.T) {
	backups := &fakeBackups{}
	router := internalRouter(NewInternal(&fakeHeartbeats{}, &fakeStatuses{}, backups))

	body := strings.NewReader(`{"state":"FAILED"}`)
	req := httptest.NewRequest("POST", "/backups/backup-1/complete", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, backups.complete)
	assert.Equal(t, model.BackupFailed, backups.state)
}

func TestInternal_CompleteBackupRejectsRunningState(t *testing.T) {
	backups := &fakeBackups{}
	router := internalRouter(NewInternal(&fakeHeartbeats{}, &fakeStatuses{}, backups))

	body := strings.NewReader(`{"state":"SAVING"}`)
	req := httptest.NewRequest("POST", "/backups/backup-1/complete", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, backups.id)
}
