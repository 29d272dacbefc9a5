package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/dbaas/internal/api/middleware"
	"github.com/edvin/dbaas/internal/api/request"
	"github.com/edvin/dbaas/internal/api/response"
	"github.com/edvin/dbaas/internal/core"
)

// Root exposes the privileged root account and the admin-only guest
// introspection endpoints.
type Root struct {
	svc *core.GuestAdminService
}

func NewRoot(svc *core.GuestAdminService) *Root {
	return &Root{svc: svc}
}

// Enable turns on the root account and returns its one-time credentials.
// The password is never stored; losing it means enabling root again.
func (h *Root) Enable(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.EnableRoot(r.Context(), mw.RequestContext(r), instanceID)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

// Status reports whether root was ever enabled on the instance, from the
// control plane's append-only history rather than a guest round trip.
func (h *Root) Status(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	enabled, err := h.svc.RootEverEnabled(r.Context(), mw.RequestContext(r), instanceID)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]bool{"root_enabled": enabled})
}

func (h *Root) Diagnostics(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Diagnostics(r.Context(), mw.RequestContext(r), instanceID)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

func (h *Root) FilesystemStats(w http.ResponseWriter, r *http.Request) {
	instanceID, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.FilesystemStats(r.Context(), mw.RequestContext(r), instanceID)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}
