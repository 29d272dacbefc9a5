package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/dbaas/internal/api/middleware"
	"github.com/edvin/dbaas/internal/api/request"
	"github.com/edvin/dbaas/internal/api/response"
	"github.com/edvin/dbaas/internal/core"
)

type Backup struct {
	svc *core.BackupService
}

func NewBackup(svc *core.BackupService) *Backup {
	return &Backup{svc: svc}
}

func (h *Backup) List(w http.ResponseWriter, r *http.Request) {
	backups, nextMarker, err := h.svc.List(r.Context(), mw.RequestContext(r))
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WritePaginated(w, http.StatusOK, backups, nextMarker)
}

func (h *Backup) Create(w http.ResponseWriter, r *http.Request) {
	var input core.CreateBackupInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	backup, err := h.svc.Create(r.Context(), mw.RequestContext(r), &input)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, backup)
}

func (h *Backup) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	backup, err := h.svc.Get(r.Context(), mw.RequestContext(r), id)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, backup)
}

func (h *Backup) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), mw.RequestContext(r), id); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
