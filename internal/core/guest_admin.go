package core

import (
	"context"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/dbaas/internal/config"
	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/store"
)

// GuestAdminService administers databases and users inside a running guest.
// Every method resolves the instance tenant-scoped, refuses instances with
// engine work in flight, and dispatches a synchronous guest call gated on a
// fresh agent heartbeat.
type GuestAdminService struct {
	instances *store.InstanceStore
	roots     *store.RootHistoryStore
	dispatch  *guestDispatch
	cfg       *config.Config
	log       zerolog.Logger
}

func NewGuestAdminService(stores *Stores, tc temporalclient.Client, cfg *config.Config, log zerolog.Logger) *GuestAdminService {
	return &GuestAdminService{
		instances: stores.Instances,
		roots:     stores.RootHistory,
		dispatch: &guestDispatch{
			tc:         tc,
			heartbeats: stores.Heartbeats,
			ttl:        cfg.HeartbeatTTL(),
		},
		cfg: cfg,
		log: log,
	}
}

func (s *GuestAdminService) resolve(ctx context.Context, rctx *model.RequestContext, instanceID string, mutating bool) (*model.Instance, error) {
	inst, err := s.instances.GetByID(ctx, scopedTenantID(rctx), instanceID)
	if err != nil {
		return nil, err
	}
	if mutating {
		if err := requireIdleTask(inst); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func (s *GuestAdminService) request() guest.Request {
	return guest.Request{Version: s.cfg.GuestAPIVersion}
}

func (s *GuestAdminService) ListDatabases(ctx context.Context, rctx *model.RequestContext, instanceID string, limit int, marker string) (*guest.ListDatabasesResult, error) {
	if _, err := s.resolve(ctx, rctx, instanceID, false); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.DatabasesPageSize
	}
	var result guest.ListDatabasesResult
	err := s.dispatch.call(ctx, instanceID, guest.MethodListDatabases,
		guest.ListParams{Request: s.request(), Limit: limit, Marker: marker},
		&result, s.cfg.AgentCallLowTimeout)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *GuestAdminService) CreateDatabases(ctx context.Context, rctx *model.RequestContext, instanceID string, databases []model.DatabaseSpec) error {
	if len(databases) == 0 {
		return fault.New(fault.BadRequest, "at least one database is required")
	}
	if _, err := s.resolve(ctx, rctx, instanceID, true); err != nil {
		return err
	}
	return s.dispatch.call(ctx, instanceID, guest.MethodCreateDatabase,
		guest.CreateDatabaseParams{Request: s.request(), Databases: databases},
		nil, s.cfg.AgentCallLowTimeout)
}

func (s *GuestAdminService) DeleteDatabase(ctx context.Context, rctx *model.RequestContext, instanceID, name string) error {
	if name == "" {
		return fault.New(fault.BadRequest, "database name is required")
	}
	if _, err := s.resolve(ctx, rctx, instanceID, true); err != nil {
		return err
	}
	return s.dispatch.call(ctx, instanceID, guest.MethodDeleteDatabase,
		guest.DeleteDatabaseParams{Request: s.request(), Name: name},
		nil, s.cfg.AgentCallLowTimeout)
}

func (s *GuestAdminService) ListUsers(ctx context.Context, rctx *model.RequestContext, instanceID string, limit int, marker string) (*guest.ListUsersResult, error) {
	if _, err := s.resolve(ctx, rctx, instanceID, false); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.UsersPageSize
	}
	var result guest.ListUsersResult
	err := s.dispatch.call(ctx, instanceID, guest.MethodListUsers,
		guest.ListParams{Request: s.request(), Limit: limit, Marker: marker},
		&result, s.cfg.AgentCallLowTimeout)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *GuestAdminService) CreateUsers(ctx context.Context, rctx *model.RequestContext, instanceID string, users []model.UserSpec) error {
	if len(users) == 0 {
		return fault.New(fault.BadRequest, "at least one user is required")
	}
	if _, err := s.resolve(ctx, rctx, instanceID, true); err != nil {
		return err
	}
	return s.dispatch.call(ctx, instanceID, guest.MethodCreateUser,
		guest.CreateUserParams{Request: s.request(), Users: users},
		nil, s.cfg.AgentCallLowTimeout)
}

func (s *GuestAdminService) DeleteUser(ctx context.Context, rctx *model.RequestContext, instanceID, name string) error {
	if name == "" {
		return fault.New(fault.BadRequest, "user name is required")
	}
	if _, err := s.resolve(ctx, rctx, instanceID, true); err != nil {
		return err
	}
	return s.dispatch.call(ctx, instanceID, guest.MethodDeleteUser,
		guest.DeleteUserParams{Request: s.request(), Name: name},
		nil, s.cfg.AgentCallLowTimeout)
}

func (s *GuestAdminService) ChangePasswords(ctx context.Context, rctx *model.RequestContext, instanceID string, users []model.UserSpec) error {
	if len(users) == 0 {
		return fault.New(fault.BadRequest, "at least one user is required")
	}
	if _, err := s.resolve(ctx, rctx, instanceID, true); err != nil {
		return err
	}
	return s.dispatch.call(ctx, instanceID, guest.MethodChangePasswords,
		guest.ChangePasswordsParams{Request: s.request(), Users: users},
		nil, s.cfg.AgentCallLowTimeout)
}

func (s *GuestAdminService) GrantAccess(ctx context.Context, rctx *model.RequestContext, instanceID, username string, databases []string) error {
	if _, err := s.resolve(ctx, rctx, instanceID, true); err != nil {
		return err
	}
	return s.dispatch.call(ctx, instanceID, guest.MethodGrantAccess,
		guest.AccessParams{Request: s.request(), Username: username, Databases: databases},
		nil, s.cfg.AgentCallLowTimeout)
}

func (s *GuestAdminService) RevokeAccess(ctx context.Context, rctx *model.RequestContext, instanceID, username, database string) error {
	if _, err := s.resolve(ctx, rctx, instanceID, true); err != nil {
		return err
	}
	return s.dispatch.call(ctx, instanceID, guest.MethodRevokeAccess,
		guest.AccessParams{Request: s.request(), Username: username, Databases: []string{database}},
		nil, s.cfg.AgentCallLowTimeout)
}

func (s *GuestAdminService) ListAccess(ctx context.Context, rctx *model.RequestContext, instanceID, username string) (*guest.ListDatabasesResult, error) {
	if _, err := s.resolve(ctx, rctx, instanceID, false); err != nil {
		return nil, err
	}
	var result guest.ListDatabasesResult
	err := s.dispatch.call(ctx, instanceID, guest.MethodListAccess,
		guest.AccessParams{Request: s.request(), Username: username},
		&result, s.cfg.AgentCallLowTimeout)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// EnableRoot turns on the privileged account inside the guest and records
// the enablement. The history row survives later disables: once root has
// ever been enabled, the instance is permanently marked.
func (s *GuestAdminService) EnableRoot(ctx context.Context, rctx *model.RequestContext, instanceID string) (*guest.EnableRootResult, error) {
	if _, err := s.resolve(ctx, rctx, instanceID, true); err != nil {
		return nil, err
	}

	var result guest.EnableRootResult
	if err := s.dispatch.call(ctx, instanceID, guest.MethodEnableRoot, s.request(), &result, s.cfg.AgentCallHighTimeout); err != nil {
		return nil, err
	}

	if _, err := s.roots.Record(ctx, instanceID, rctx.UserID); err != nil {
		s.log.Error().Err(err).Str("instance_id", instanceID).Msg("Failed to record root enablement")
	}
	return &result, nil
}

// RootEverEnabled reports whether root was ever enabled on the instance,
// from history alone. It deliberately does not ask the guest: a tenant who
// enabled root and disabled it again still had the keys.
func (s *GuestAdminService) RootEverEnabled(ctx context.Context, rctx *model.RequestContext, instanceID string) (bool, error) {
	if _, err := s.resolve(ctx, rctx, instanceID, false); err != nil {
		return false, err
	}
	h, err := s.roots.Get(ctx, instanceID)
	if err != nil {
		return false, err
	}
	return h != nil, nil
}

// Diagnostics asks the agent for its self-report. Admin only.
func (s *GuestAdminService) Diagnostics(ctx context.Context, rctx *model.RequestContext, instanceID string) (*guest.DiagnosticsResult, error) {
	if !rctx.IsAdmin {
		return nil, fault.New(fault.UnprocessableEntity, "diagnostics requires admin scope")
	}
	if _, err := s.resolve(ctx, rctx, instanceID, false); err != nil {
		return nil, err
	}
	var result guest.DiagnosticsResult
	err := s.dispatch.call(ctx, instanceID, guest.MethodGetDiagnostics, s.request(), &result, s.cfg.AgentCallLowTimeout)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// FilesystemStats reports the guest's data volume usage.
func (s *GuestAdminService) FilesystemStats(ctx context.Context, rctx *model.RequestContext, instanceID string) (*guest.FilesystemStatsResult, error) {
	if _, err := s.resolve(ctx, rctx, instanceID, false); err != nil {
		return nil, err
	}
	var result guest.FilesystemStatsResult
	err := s.dispatch.call(ctx, instanceID, guest.MethodGetFilesystemStats, s.request(), &result, s.cfg.AgentCallLowTimeout)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
