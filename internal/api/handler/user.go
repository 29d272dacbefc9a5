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

// User proxies database user management into the guest agent of one
// instance.
type User struct {
	svc *core.GuestAdminService
}

func NewUser(svc *core.GuestAdminService) *User {
	return &User{svc: svc}
}

func (h *User) List(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	rctx := mw.RequestContext(r)

	result, err := h.svc.ListUsers(r.Context(), rctx, instanceID, rctx.Limit, rctx.Marker)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WritePaginated(w, http.StatusOK, result.Users, result.NextMarker)
}

type createUsersRequest struct {
	Users []model.UserSpec `json:"users" validate:"required,min=1,dive"`
}

func (h *User) Create(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req createUsersRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.CreateUsers(r.Context(), mw.RequestContext(r), instanceID, req.Users); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ChangePasswords rewrites the password for every user named in the body.
func (h *User) ChangePasswords(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req createUsersRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.ChangePasswords(r.Context(), mw.RequestContext(r), instanceID, req.Users); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *User) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.svc.DeleteUser(r.Context(), mw.RequestContext(r), instanceID, name); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *User) ListAccess(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.svc.ListAccess(r.Context(), mw.RequestContext(r), instanceID, name)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

type grantAccessRequest struct {
	Databases []string `json:"databases" validate:"required,min=1"`
}

func (h *User) GrantAccess(w http.ResponseWriter, r *http.Request) {
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

	var req grantAccessRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.GrantAccess(r.Context(), mw.RequestContext(r), instanceID, name, req.Databases); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *User) RevokeAccess(w http.ResponseWriter, r *http.Request) {
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
	database, err := request.RequireID(chi.URLParam(r, "database"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.RevokeAccess(r.Context(), mw.RequestContext(r), instanceID, name, database); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
