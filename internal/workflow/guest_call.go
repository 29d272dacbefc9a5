package workflow

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dbaas/internal/guest"
)

// GuestCallParams is the envelope for GuestCallWorkflow.
type GuestCallParams struct {
	InstanceID string        `json:"instance_id"`
	Method     string        `json:"method"`
	Arg        any           `json:"arg"`
	Timeout    time.Duration `json:"timeout"`
}

// GuestCallWorkflow carries a single synchronous guest method for callers
// outside the engine. The sync layer executes it and blocks on the run, so
// user and database administration behaves like a direct RPC while still
// flowing through the instance's agent queue.
func GuestCallWorkflow(ctx workflow.Context, params GuestCallParams) (any, error) {
	caller := guest.Caller{}
	var result any
	if err := caller.Call(ctx, params.InstanceID, params.Method, params.Arg, &result, params.Timeout); err != nil {
		return nil, err
	}
	return result, nil
}

// GuestCallWorkflowID gives each call a unique id under a stable prefix so
// concurrent admin calls to the same instance never collide.
func GuestCallWorkflowID(instanceID, method, nonce string) string {
	return "guest-call-" + instanceID + "-" + method + "-" + nonce
}
