package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/dbaas/internal/api/middleware"
	"github.com/edvin/dbaas/internal/api/request"
	"github.com/edvin/dbaas/internal/api/response"
	"github.com/edvin/dbaas/internal/core"
	"github.com/edvin/dbaas/internal/model"
)

// Database proxies schema management into the guest agent of one instance.
type Database struct {
	svc *core.GuestAdminService
}

func NewDatabase(svc *core.GuestAdminService) *Database {
	return &Database{svc: svc}
}

func (h *Database) List(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	rctx := mw.RequestContext(r)

	result, err := h.svc.ListDatabases(r.Context(), rctx, instanceID, rctx.Limit, rctx.Marker)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WritePaginated(w, http.StatusOK, result.Databases, result.NextMarker)
}

type createDatabasesRequest struct {
	Databases []model.DatabaseSpec `json:"databases" validate:"required,min=1,dive"`
}

func (h *Database) Create(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req createDatabasesRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.CreateDatabases(r.Context(), mw.RequestContext(r), instanceID, req.Databases); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Database) Delete(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	name, err := request.RequireID(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.DeleteDatabase(r.Context(), mw.RequestContext(r), instanceID, name); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
