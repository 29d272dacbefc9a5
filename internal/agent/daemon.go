package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/dbaas/internal/model"
)

// Reporter drives the agent's periodic liveness and status reporting. The
// control plane treats a quiet agent as dead after two missed intervals, so
// the loop reports on a fixed ticker regardless of task activity.
type Reporter struct {
	log        zerolog.Logger
	api        *APIClient
	db         *DatabaseAdmin
	instanceID string
	interval   time.Duration
}

func NewReporter(log zerolog.Logger, api *APIClient, db *DatabaseAdmin, instanceID string, interval time.Duration) *Reporter {
	return &Reporter{
		log:        log.With().Str("component", "reporter").Logger(),
		api:        api,
		db:         db,
		instanceID: instanceID,
		interval:   interval,
	}
}

// Run reports until the context is cancelled. An immediate first report
// shortens the window where a freshly booted guest looks dead.
func (r *Reporter) Run(ctx context.Context) {
	r.report(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report(ctx)
		}
	}
}

func (r *Reporter) report(ctx context.Context) {
	if err := r.api.Heartbeat(ctx, r.instanceID); err != nil {
		r.log.Warn().Err(err).Msg("failed to report heartbeat")
	}

	// The process answering is the only signal the agent trusts; the
	// reconciler decides whether a silent database counts as crashed.
	status := model.ServiceShutdown
	if r.db.Ping(ctx) {
		status = model.ServiceRunning
	}

	if err := r.api.ReportStatus(ctx, r.instanceID, status); err != nil {
		r.log.Warn().Err(err).Msg("failed to report status")
	}
}
