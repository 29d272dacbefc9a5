package workflow

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/fault"
)

// pollUntil re-evaluates check every interval until it reports done, the
// check fails hard, or the deadline passes. Time comes from workflow.Now so
// replays and the test environment stay deterministic.
//
// check returns (done, err): err aborts the poll immediately; done stops it
// successfully. A transient condition is expressed as (false, nil).
func pollUntil(ctx workflow.Context, interval, timeout time.Duration, what string, check func() (bool, error)) error {
	deadline := workflow.Now(ctx).Add(timeout)
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !workflow.Now(ctx).Before(deadline) {
			return fault.New(fault.PollTimeout, "timed out after %s waiting for %s", timeout, what)
		}
		if err := workflow.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}
