// Package quota implements the two-phase reservation protocol guarding
// per-tenant resource limits. A reservation is admitted against
// in_use + reserved + delta under a row lock, then later committed into
// in_use or rolled back, so concurrent provisioning cannot oversubscribe
// a tenant's limits.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/platform"
	"github.com/edvin/dbaas/internal/store"
)

// Engine tracks usage for a fixed set of registered resources.
type Engine struct {
	db       store.TxDB
	log      zerolog.Logger
	defaults map[string]int
}

func NewEngine(db store.TxDB, log zerolog.Logger, defaults map[string]int) *Engine {
	return &Engine{db: db, log: log, defaults: defaults}
}

// GetQuota returns the tenant's limit for one resource, synthesizing the
// configured default when no override row exists.
func (e *Engine) GetQuota(ctx context.Context, tenantID, resource string) (*model.Quota, error) {
	def, ok := e.defaults[resource]
	if !ok {
		return nil, fault.New(fault.QuotaResourceUnknown, "unknown quota resource %q", resource)
	}

	var q model.Quota
	err := e.db.QueryRow(ctx,
		`SELECT id, tenant_id, resource, hard_limit, created_at, updated_at
		 FROM quotas WHERE tenant_id = $1 AND resource = $2`,
		tenantID, resource,
	).Scan(&q.ID, &q.TenantID, &q.Resource, &q.HardLimit, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.Quota{TenantID: tenantID, Resource: resource, HardLimit: def}, nil
		}
		return nil, fmt.Errorf("get quota %s/%s: %w", tenantID, resource, err)
	}
	return &q, nil
}

// GetAllQuotas returns the tenant's limit for every registered resource.
func (e *Engine) GetAllQuotas(ctx context.Context, tenantID string) (map[string]*model.Quota, error) {
	out := make(map[string]*model.Quota, len(e.defaults))
	for resource := range e.defaults {
		q, err := e.GetQuota(ctx, tenantID, resource)
		if err != nil {
			return nil, err
		}
		out[resource] = q
	}
	return out, nil
}

// SetQuota writes a per-tenant override for one resource.
func (e *Engine) SetQuota(ctx context.Context, tenantID, resource string, hardLimit int) (*model.Quota, error) {
	if _, ok := e.defaults[resource]; !ok {
		return nil, fault.New(fault.QuotaResourceUnknown, "unknown quota resource %q", resource)
	}
	if hardLimit < 0 {
		return nil, fault.New(fault.BadValue, "quota limit must not be negative")
	}
	_, err := e.db.Exec(ctx,
		`INSERT INTO quotas (id, tenant_id, resource, hard_limit, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (tenant_id, resource) DO UPDATE SET hard_limit = $4, updated_at = now()`,
		platform.NewID(), tenantID, resource, hardLimit)
	if err != nil {
		return nil, fmt.Errorf("set quota %s/%s: %w", tenantID, resource, err)
	}
	return e.GetQuota(ctx, tenantID, resource)
}

// GetUsage returns the usage counters for every registered resource,
// synthesizing zero rows for resources the tenant has never touched.
func (e *Engine) GetUsage(ctx context.Context, tenantID string) (map[string]*model.QuotaUsage, error) {
	rows, err := e.db.Query(ctx,
		`SELECT id, tenant_id, resource, in_use, reserved, created_at, updated_at
		 FROM quota_usages WHERE tenant_id = $1`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("get usage for %s: %w", tenantID, err)
	}
	defer rows.Close()

	out := make(map[string]*model.QuotaUsage, len(e.defaults))
	for rows.Next() {
		var u model.QuotaUsage
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Resource, &u.InUse, &u.Reserved, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out[u.Resource] = &u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usages: %w", err)
	}
	for resource := range e.defaults {
		if _, ok := out[resource]; !ok {
			out[resource] = &model.QuotaUsage{TenantID: tenantID, Resource: resource}
		}
	}
	return out, nil
}

// Reserve admits the signed deltas against the tenant's limits and records
// one RESERVED reservation per resource, all inside a single transaction
// with the usage rows locked. Either every delta is reserved or none is.
// Negative deltas (release on delete) are always admitted.
func (e *Engine) Reserve(ctx context.Context, tenantID string, deltas map[string]int) ([]string, error) {
	for resource := range deltas {
		if _, ok := e.defaults[resource]; !ok {
			return nil, fault.New(fault.QuotaResourceUnknown, "unknown quota resource %q", resource)
		}
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var overs []string
	var ids []string
	for resource, delta := range deltas {
		usage, err := lockUsage(ctx, tx, tenantID, resource)
		if err != nil {
			return nil, err
		}

		if delta > 0 {
			quota, err := e.GetQuota(ctx, tenantID, resource)
			if err != nil {
				return nil, err
			}
			if usage.InUse+usage.Reserved+delta > quota.HardLimit {
				overs = append(overs, resource)
				continue
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE quota_usages SET reserved = reserved + $1, updated_at = now() WHERE id = $2`,
			delta, usage.ID); err != nil {
			return nil, fmt.Errorf("reserve %s/%s: %w", tenantID, resource, err)
		}

		id := platform.NewID()
		if _, err := tx.Exec(ctx,
			`INSERT INTO reservations (id, usage_id, resource, delta, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, now(), now())`,
			id, usage.ID, resource, delta, string(model.ReservationReserved)); err != nil {
			return nil, fmt.Errorf("insert reservation %s/%s: %w", tenantID, resource, err)
		}
		ids = append(ids, id)
	}

	if len(overs) > 0 {
		return nil, fault.NewQuotaExceeded(overs)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve tx: %w", err)
	}
	return ids, nil
}

func lockUsage(ctx context.Context, tx pgx.Tx, tenantID, resource string) (*model.QuotaUsage, error) {
	var u model.QuotaUsage
	err := tx.QueryRow(ctx,
		`SELECT id, tenant_id, resource, in_use, reserved, created_at, updated_at
		 FROM quota_usages WHERE tenant_id = $1 AND resource = $2 FOR UPDATE`,
		tenantID, resource,
	).Scan(&u.ID, &u.TenantID, &u.Resource, &u.InUse, &u.Reserved, &u.CreatedAt, &u.UpdatedAt)
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lock usage %s/%s: %w", tenantID, resource, err)
	}

	// First touch for this (tenant, resource): create the counter row and
	// lock it. The unique constraint resolves a concurrent first touch.
	id := platform.NewID()
	if _, err := tx.Exec(ctx,
		`INSERT INTO quota_usages (id, tenant_id, resource, in_use, reserved, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, 0, now(), now())
		 ON CONFLICT (tenant_id, resource) DO NOTHING`,
		id, tenantID, resource); err != nil {
		return nil, fmt.Errorf("create usage %s/%s: %w", tenantID, resource, err)
	}
	err = tx.QueryRow(ctx,
		`SELECT id, tenant_id, resource, in_use, reserved, created_at, updated_at
		 FROM quota_usages WHERE tenant_id = $1 AND resource = $2 FOR UPDATE`,
		tenantID, resource,
	).Scan(&u.ID, &u.TenantID, &u.Resource, &u.InUse, &u.Reserved, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("lock usage %s/%s: %w", tenantID, resource, err)
	}
	return &u, nil
}

// Commit folds the reserved deltas into in_use and finalizes the
// reservations. Only RESERVED reservations move; committing twice is a
// no-op for the already-committed ids. Failures are logged and skipped,
// like Rollback: bookkeeping must never fail the work it accounts for.
func (e *Engine) Commit(ctx context.Context, reservationIDs []string) {
	for _, id := range reservationIDs {
		if err := e.finalize(ctx, id, model.ReservationCommitted); err != nil {
			e.log.Error().Err(err).Str("reservation_id", id).Msg("Failed to commit reservation")
		}
	}
}

// Rollback releases the reserved deltas without touching in_use. Failures
// are logged and skipped so one bad reservation cannot strand the rest.
func (e *Engine) Rollback(ctx context.Context, reservationIDs []string) {
	for _, id := range reservationIDs {
		if err := e.finalize(ctx, id, model.ReservationRolledBack); err != nil {
			e.log.Error().Err(err).Str("reservation_id", id).Msg("Failed to roll back reservation")
		}
	}
}

func (e *Engine) finalize(ctx context.Context, reservationID string, status model.ReservationStatus) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin finalize tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var usageID string
	var delta int
	err = tx.QueryRow(ctx,
		`SELECT usage_id, delta FROM reservations
		 WHERE id = $1 AND status = $2 FOR UPDATE`,
		reservationID, string(model.ReservationReserved),
	).Scan(&usageID, &delta)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("lock reservation %s: %w", reservationID, err)
	}

	usageUpdate := `UPDATE quota_usages SET reserved = reserved - $1, updated_at = now() WHERE id = $2`
	if status == model.ReservationCommitted {
		usageUpdate = `UPDATE quota_usages SET in_use = in_use + $1, reserved = reserved - $1, updated_at = now() WHERE id = $2`
	}
	if _, err := tx.Exec(ctx, usageUpdate, delta, usageID); err != nil {
		return fmt.Errorf("apply reservation %s: %w", reservationID, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE reservations SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), reservationID); err != nil {
		return fmt.Errorf("finalize reservation %s: %w", reservationID, err)
	}
	return tx.Commit(ctx)
}

// RunWithQuotas reserves the deltas, runs fn, then commits on success and
// rolls back on failure.
func (e *Engine) RunWithQuotas(ctx context.Context, tenantID string, deltas map[string]int, fn func() error) error {
	ids, err := e.Reserve(ctx, tenantID, deltas)
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		e.Rollback(ctx, ids)
		return err
	}
	e.Commit(ctx, ids)
	return nil
}

// DefaultLimits builds the registered-resource map from configured values.
func DefaultLimits(instances, volumes, backups int) map[string]int {
	return map[string]int{
		model.ResourceInstances: instances,
		model.ResourceVolumes:   volumes,
		model.ResourceBackups:   backups,
	}
}
