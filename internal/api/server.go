package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/dbaas/internal/api/handler"
	mw "github.com/edvin/dbaas/internal/api/middleware"
	"github.com/edvin/dbaas/internal/config"
	"github.com/edvin/dbaas/internal/core"
)

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	services       *core.Services
	corePool       *pgxpool.Pool
	temporalClient temporalclient.Client
	cfg            *config.Config
}

func NewServer(logger zerolog.Logger, corePool *pgxpool.Pool, temporalClient temporalclient.Client, cfg *config.Config) *Server {
	services := core.NewServices(corePool, temporalClient, cfg, logger)

	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		services:       services,
		corePool:       corePool,
		temporalClient: temporalClient,
		cfg:            cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Identity(s.cfg))

		// Instances
		instance := handler.NewInstance(s.services.Instance)
		r.Get("/instances", instance.List)
		r.Post("/instances", instance.Create)
		r.Get("/instances/{instanceID}", instance.Get)
		r.Delete("/instances/{instanceID}", instance.Delete)
		r.Post("/instances/{instanceID}/restart", instance.Restart)
		r.Post("/instances/{instanceID}/resize-flavor", instance.ResizeFlavor)
		r.Post("/instances/{instanceID}/resize-volume", instance.ResizeVolume)
		r.Put("/instances/{instanceID}/replica", instance.AttachReplica)
		r.Delete("/instances/{instanceID}/replica", instance.DetachReplica)

		// Guest databases
		database := handler.NewDatabase(s.services.GuestAdmin)
		r.Get("/instances/{instanceID}/databases", database.List)
		r.Post("/instances/{instanceID}/databases", database.Create)
		r.Delete("/instances/{instanceID}/databases/{name}", database.Delete)

		// Guest users
		user := handler.NewUser(s.services.GuestAdmin)
		r.Get("/instances/{instanceID}/users", user.List)
		r.Post("/instances/{instanceID}/users", user.Create)
		r.Put("/instances/{instanceID}/users", user.ChangePasswords)
		r.Delete("/instances/{instanceID}/users/{name}", user.Delete)
		r.Get("/instances/{instanceID}/users/{name}/access", user.ListAccess)
		r.Put("/instances/{instanceID}/users/{name}/access", user.GrantAccess)
		r.Delete("/instances/{instanceID}/users/{name}/access/{database}", user.RevokeAccess)

		// Root account
		root := handler.NewRoot(s.services.GuestAdmin)
		r.Post("/instances/{instanceID}/root", root.Enable)
		r.Get("/instances/{instanceID}/root", root.Status)

		// Backups
		backup := handler.NewBackup(s.services.Backup)
		r.Get("/backups", backup.List)
		r.Post("/backups", backup.Create)
		r.Get("/backups/{id}", backup.Get)
		r.Delete("/backups/{id}", backup.Delete)

		// Quotas
		quota := handler.NewQuota(s.services.Quota)
		r.Get("/quotas", quota.Show)

		// Operator-only surface
		r.Group(func(r chi.Router) {
			r.Use(mw.AdminOnly)
			r.Get("/instances/{instanceID}/diagnostics", root.Diagnostics)
			r.Get("/instances/{instanceID}/filesystem-stats", root.FilesystemStats)
			r.Get("/mgmt/quotas/{tenantID}", quota.ShowTenant)
			r.Put("/mgmt/quotas/{tenantID}", quota.UpdateTenant)
		})
	})

	// Agent write path: heartbeats, status reports and backup completions
	// arrive here, authenticated by the shared agent token.
	s.router.Route("/internal/v1", func(r chi.Router) {
		r.Use(mw.AgentAuth(s.cfg.AgentToken))

		stores := core.NewStores(s.corePool)
		internal := handler.NewInternal(stores.Heartbeats, stores.ServiceStatuses, stores.Backups)
		r.Post("/instances/{instanceID}/heartbeat", internal.Heartbeat)
		r.Post("/instances/{instanceID}/status", internal.Status)
		r.Post("/backups/{backupID}/complete", internal.CompleteBackup)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.corePool.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if _, err := s.temporalClient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
		checks["temporal"] = err.Error()
		healthy = false
	} else {
		checks["temporal"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
