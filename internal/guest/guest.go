// Package guest defines the RPC surface between the control plane and the
// agent running inside each database instance. Every instance listens on
// its own task queue; method names are part of the wire contract and stay
// stable across agent versions.
package guest

// QueuePrefix is the task queue namespace for guest agents.
const QueuePrefix = "guestagent."

// QueueName returns the task queue the instance's agent consumes.
func QueueName(instanceID string) string {
	return QueuePrefix + instanceID
}

// APIVersion travels with every request so an older agent can reject calls
// it does not understand.
const APIVersion = "1.0"

// Wire method names. These are the registered activity names on the agent
// side; snake_case is the contract, not a style choice.
const (
	MethodPrepare                 = "prepare"
	MethodRestart                 = "restart"
	MethodStopDB                  = "stop_mysql"
	MethodStartDBWithConfChanges  = "start_mysql_with_conf_changes"
	MethodCreateUser              = "create_user"
	MethodDeleteUser              = "delete_user"
	MethodListUsers               = "list_users"
	MethodChangePasswords         = "change_passwords"
	MethodGrantAccess             = "grant_access"
	MethodRevokeAccess            = "revoke_access"
	MethodListAccess              = "list_access"
	MethodCreateDatabase          = "create_database"
	MethodDeleteDatabase          = "delete_database"
	MethodListDatabases           = "list_databases"
	MethodEnableRoot              = "enable_root"
	MethodDisableRoot             = "disable_root"
	MethodIsRootEnabled           = "is_root_enabled"
	MethodGetDiagnostics          = "get_diagnostics"
	MethodGetHWInfo               = "get_hwinfo"
	MethodGetFilesystemStats      = "get_filesystem_stats"
	MethodCreateBackup            = "create_backup"
	MethodGetReplicationSnapshot  = "get_replication_snapshot"
	MethodAttachReplicationSlave  = "attach_replication_slave"
	MethodDetachReplica           = "detach_replica"
	MethodCleanupSourceOnDetach   = "cleanup_source_on_replica_detach"
	MethodUpdateGuest             = "update_guest"
)
