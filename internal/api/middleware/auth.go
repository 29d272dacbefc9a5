package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/edvin/dbaas/internal/api/response"
	"github.com/edvin/dbaas/internal/config"
	"github.com/edvin/dbaas/internal/model"
)

type contextKey string

const requestContextKey contextKey = "request_context"

const maxPageSize = 200

// Identity builds the tenant-scoped request context from the identity
// headers the upstream auth proxy injects. Requests without a tenant are
// refused before any handler runs.
func Identity(cfg *config.Config) func(http.Handler) http.Handler {
	admin := make(map[string]bool, len(cfg.AdminRoles))
	for _, role := range cfg.AdminRoles {
		admin[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := r.Header.Get("X-Tenant-ID")
			if tenantID == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing tenant identity")
				return
			}

			rctx := &model.RequestContext{
				TenantID:  tenantID,
				UserID:    r.Header.Get("X-User-ID"),
				AuthToken: r.Header.Get("X-Auth-Token"),
				Marker:    r.URL.Query().Get("marker"),
			}
			for _, role := range strings.Split(r.Header.Get("X-Roles"), ",") {
				if admin[strings.TrimSpace(role)] {
					rctx.IsAdmin = true
					break
				}
			}
			if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
				if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
					rctx.Limit = min(limit, maxPageSize)
				}
			}

			ctx := context.WithValue(r.Context(), requestContextKey, rctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestContext returns the identity attached by the Identity middleware.
// Routes outside that middleware get an empty non-admin context.
func RequestContext(r *http.Request) *model.RequestContext {
	if rctx, ok := r.Context().Value(requestContextKey).(*model.RequestContext); ok {
		return rctx
	}
	return &model.RequestContext{}
}

// AdminOnly refuses callers whose roles do not grant admin scope.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !RequestContext(r).IsAdmin {
			response.WriteError(w, http.StatusForbidden, "admin scope required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AgentAuth guards the internal write path with the shared agent bearer
// token.
func AgentAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				response.WriteError(w, http.StatusUnauthorized, "agent token not configured")
				return
			}
			presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				response.WriteError(w, http.StatusUnauthorized, "invalid agent token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
