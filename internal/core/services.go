package core

import (
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/dbaas/internal/config"
	"github.com/edvin/dbaas/internal/quota"
	"github.com/edvin/dbaas/internal/store"
)

// Stores bundles the typed stores every service draws from.
type Stores struct {
	Instances       *store.InstanceStore
	ServiceStatuses *store.ServiceStatusStore
	Heartbeats      *store.HeartbeatStore
	Backups         *store.BackupStore
	RootHistory     *store.RootHistoryStore
}

func NewStores(db store.DB) *Stores {
	return &Stores{
		Instances:       store.NewInstanceStore(db),
		ServiceStatuses: store.NewServiceStatusStore(db),
		Heartbeats:      store.NewHeartbeatStore(db),
		Backups:         store.NewBackupStore(db),
		RootHistory:     store.NewRootHistoryStore(db),
	}
}

// Services is the synchronous surface of the control plane.
type Services struct {
	Instance   *InstanceService
	Backup     *BackupService
	GuestAdmin *GuestAdminService
	Quota      *quota.Engine
}

func NewServices(db store.TxDB, tc temporalclient.Client, cfg *config.Config, log zerolog.Logger) *Services {
	stores := NewStores(db)
	q := quota.NewEngine(db, log, quota.DefaultLimits(
		cfg.MaxInstancesPerTenant, cfg.MaxVolumesPerTenant, cfg.MaxBackupsPerTenant))
	return &Services{
		Instance:   NewInstanceService(stores, q, tc, cfg, log),
		Backup:     NewBackupService(stores, q, tc, cfg, log),
		GuestAdmin: NewGuestAdminService(stores, tc, cfg, log),
		Quota:      q,
	}
}
