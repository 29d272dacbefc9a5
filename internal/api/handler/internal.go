package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/dbaas/internal/api/request"
	"github.com/edvin/dbaas/internal/api/response"
	"github.com/edvin/dbaas/internal/model"
)

// HeartbeatWriter records agent liveness.
type HeartbeatWriter interface {
	Upsert(ctx context.Context, instanceID string, at time.Time) error
}

// StatusWriter records the guest-reported database status.
type StatusWriter interface {
	Upsert(ctx context.Context, instanceID string, status model.ServiceStatus) error
}

// BackupCompleter finalizes backup rows from guest reports.
type BackupCompleter interface {
	UpdateState(ctx context.Context, id string, state model.BackupState) error
	CompleteFromGuest(ctx context.Context, id string, state model.BackupState, location, checksum string, sizeBytes int64, backupTimestamp time.Time) error
}

// Internal is the write surface the guest agents report through. It sits
// behind the agent bearer token, never behind tenant identity.
type Internal struct {
	heartbeats HeartbeatWriter
	statuses   StatusWriter
	backups    BackupCompleter
}

func NewInternal(heartbeats HeartbeatWriter, statuses StatusWriter, backups BackupCompleter) *Internal {
	return &Internal{heartbeats: heartbeats, statuses: statuses, backups: backups}
}

func (h *Internal) Heartbeat(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.heartbeats.Upsert(r.Context(), instanceID, time.Now().UTC()); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reportStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Internal) Status(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req reportStatusRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !model.KnownServiceStatus(req.Status) {
		response.WriteError(w, http.StatusBadRequest, "unknown service status "+req.Status)
		return
	}

	if err := h.statuses.Upsert(r.Context(), instanceID, model.ServiceStatus(req.Status)); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeBackupRequest struct {
	State           string    `json:"state" validate:"required"`
	Location        string    `json:"location,omitempty"`
	Checksum        string    `json:"checksum,omitempty"`
	SizeBytes       int64     `json:"size_bytes,omitempty"`
	BackupTimestamp time.Time `json:"backup_timestamp,omitempty"`
}

// CompleteBackup lands the out-of-band outcome of one backup job. Failed
// jobs only flip the state; completed jobs carry the object store location
// and checksum.
func (h *Internal) CompleteBackup(w http.ResponseWriter, r *http.Request) {
	backupID, err := request.RequireID(chi.URLParam(r, "backupID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req completeBackupRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch model.BackupState(req.State) {
	case model.BackupFailed:
		err = h.backups.UpdateState(r.Context(), backupID, model.BackupFailed)
	case model.BackupCompleted:
		err = h.backups.CompleteFromGuest(r.Context(), backupID, model.BackupCompleted,
			req.Location, req.Checksum, req.SizeBytes, req.BackupTimestamp)
	default:
		response.WriteError(w, http.StatusBadRequest, "state must be COMPLETED or FAILED")
		return
	}
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
