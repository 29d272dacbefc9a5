package handler

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/dbaas/internal/api/middleware"
	"github.com/edvin/dbaas/internal/api/request"
	"github.com/edvin/dbaas/internal/api/response"
	"github.com/edvin/dbaas/internal/quota"
)

type Quota struct {
	engine *quota.Engine
}

func NewQuota(engine *quota.Engine) *Quota {
	return &Quota{engine: engine}
}

// quotaView merges the hard limit with the live counters for one resource.
type quotaView struct {
	Resource  string `json:"resource"`
	HardLimit int    `json:"hard_limit"`
	InUse     int    `json:"in_use"`
	Reserved  int    `json:"reserved"`
}

func (h *Quota) view(r *http.Request, tenantID string) ([]quotaView, error) {
	quotas, err := h.engine.GetAllQuotas(r.Context(), tenantID)
	if err != nil {
		return nil, err
	}
	usages, err := h.engine.GetUsage(r.Context(), tenantID)
	if err != nil {
		return nil, err
	}

	views := make([]quotaView, 0, len(quotas))
	for resource, q := range quotas {
		v := quotaView{Resource: resource, HardLimit: q.HardLimit}
		if u, ok := usages[resource]; ok {
			v.InUse = u.InUse
			v.Reserved = u.Reserved
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Resource < views[j].Resource })
	return views, nil
}

// Show returns the calling tenant's own limits and usage.
func (h *Quota) Show(w http.ResponseWriter, r *http.Request) {
	views, err := h.view(r, mw.RequestContext(r).TenantID)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"quotas": views})
}

// ShowTenant returns any tenant's limits and usage. Admin only; the route
// guard enforces that.
func (h *Quota) ShowTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := request.RequireID(chi.URLParam(r, "tenantID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	views, err := h.view(r, tenantID)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"quotas": views})
}

type updateQuotasRequest struct {
	Quotas map[string]int `json:"quotas" validate:"required,min=1"`
}

// UpdateTenant overwrites hard limits for one tenant. Admin only.
func (h *Quota) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := request.RequireID(chi.URLParam(r, "tenantID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateQuotasRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	for resource, limit := range req.Quotas {
		if _, err := h.engine.SetQuota(r.Context(), tenantID, resource, limit); err != nil {
			response.WriteFault(w, err)
			return
		}
	}

	views, err := h.view(r, tenantID)
	if err != nil {
		response.WriteFault(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"quotas": views})
}
