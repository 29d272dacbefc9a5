package model

import "time"

// TaskSignalName is the signal name used by the per-instance task workflow.
const TaskSignalName = "task"

// InstanceTask is a unit of engine work, processed strictly serially per
// instance by InstanceTaskWorkflow.
type InstanceTask struct {
	WorkflowName string `json:"workflow_name"`
	WorkflowID   string `json:"workflow_id"`
	Arg          any    `json:"arg"`
}

// TaskTimeouts carries the configured poll and call bounds into engine
// workflows. Workflows cannot read config directly (determinism), so the
// sync layer snapshots these at enqueue time.
type TaskTimeouts struct {
	AgentLow      time.Duration `json:"agent_low"`
	AgentHigh     time.Duration `json:"agent_high"`
	AgentSnapshot time.Duration `json:"agent_snapshot"`
	StateChange   time.Duration `json:"state_change"`
	ServerDelete  time.Duration `json:"server_delete"`
	Volume        time.Duration `json:"volume"`
	Reboot        time.Duration `json:"reboot"`
	Resize        time.Duration `json:"resize"`
	Revert        time.Duration `json:"revert"`
	DNS           time.Duration `json:"dns"`
	HeartbeatTTL  time.Duration `json:"heartbeat_ttl"`
}
