package activity

import (
	"context"

	"github.com/edvin/dbaas/internal/quota"
)

// Quota contains activities that finalize quota reservations from inside
// engine workflows. The sync layer reserves; the workflow decides the
// outcome once the substrate work settles.
type Quota struct {
	engine *quota.Engine
}

// NewQuota creates a new Quota activity struct.
func NewQuota(engine *quota.Engine) *Quota {
	return &Quota{engine: engine}
}

// CommitReservations folds the reserved deltas into usage. Never fails;
// bad reservations are logged and skipped.
func (a *Quota) CommitReservations(ctx context.Context, reservationIDs []string) error {
	a.engine.Commit(ctx, reservationIDs)
	return nil
}

// RollbackReservations releases the reserved deltas. Never fails; bad
// reservations are logged and skipped.
func (a *Quota) RollbackReservations(ctx context.Context, reservationIDs []string) error {
	a.engine.Rollback(ctx, reservationIDs)
	return nil
}

// ReserveParams holds the parameters for Reserve.
type ReserveParams struct {
	TenantID string
	Deltas   map[string]int
}

// Reserve opens reservations from inside a workflow. Delete flows use this
// with negative deltas so the release commits together with the teardown.
func (a *Quota) Reserve(ctx context.Context, params ReserveParams) ([]string, error) {
	return a.engine.Reserve(ctx, params.TenantID, params.Deltas)
}
