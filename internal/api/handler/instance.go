package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/dbaas/internal/api/middleware"
	"github.com/edvin/dbaas/internal/api/request"
	"github.com/edvin/dbaas/internal/api/response"
	"github.com/edvin/dbaas/internal/core"
	"github.com/edvin/dbaas/internal/model"
)

type Instance struct {
	svc *core.InstanceService
}

func NewInstance(svc *core.InstanceService) *Instance {
	return &Instance{svc: svc}
}

// instanceView augments the stored instance with the derived user-visible
// status.
type instanceView struct {
	*model.Instance
	Status model.APIStatus `json:"status"`
}

func (h *Instance) view(r *http.Request, inst *model.Instance) instanceView {
	return instanceView{Instance: inst, Status: h.svc.Status(r.Context(), inst)}
}

func (h *Instance) List(w http.ResponseWriter, r *http.Request) {
	rctx := mw.RequestContext(r)

	instances, nextMarker, err := h.svc.List(r.Context(), rctx)
	if err != nil {
		response.WriteFault(w, err)
		return
	}

	views := make([]instanceView, len(instances))
	for i := range instances {
		views[i] = h.view(r, &instances[i])
	}
	response.WritePaginated(w, http.StatusOK, views, nextMarker)
}

func (h *Instance) Create(w http.ResponseWriter, r *http.Request) {
	var input core.CreateInstanceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	inst, err := h.svc.Create(r.Context(), mw.RequestContext(r), &input)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, h.view(r, inst))
}

func (h *Instance) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	inst, err := h.svc.Get(r.Context(), mw.RequestContext(r), id)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, h.view(r, inst))
}

func (h *Instance) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	force := r.URL.Query().Get("force") == "true"

	if err := h.svc.Delete(r.Context(), mw.RequestContext(r), id, force); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Instance) Restart(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Restart(r.Context(), mw.RequestContext(r), id); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type resizeFlavorRequest struct {
	FlavorID string `json:"flavor_id" validate:"required"`
	MemoryMB int    `json:"memory_mb,omitempty"`
}

func (h *Instance) ResizeFlavor(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req resizeFlavorRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.ResizeFlavor(r.Context(), mw.RequestContext(r), id, req.FlavorID, req.MemoryMB); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type resizeVolumeRequest struct {
	VolumeSize int `json:"volume_size" validate:"required,min=1"`
}

func (h *Instance) ResizeVolume(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req resizeVolumeRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.ResizeVolume(r.Context(), mw.RequestContext(r), id, req.VolumeSize); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type attachReplicaRequest struct {
	MasterID string `json:"master_id" validate:"required"`
}

func (h *Instance) AttachReplica(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req attachReplicaRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.AttachReplica(r.Context(), mw.RequestContext(r), id, req.MasterID); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Instance) DetachReplica(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "instanceID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	masterID := r.URL.Query().Get("master_id")
	forFailover := r.URL.Query().Get("for_failover") == "true"

	if err := h.svc.DetachReplica(r.Context(), mw.RequestContext(r), id, masterID, forFailover); err != nil {
		response.WriteFault(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
