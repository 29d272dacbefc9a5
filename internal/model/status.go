package model

// ServiceStatus is the last state of the database process observed inside the
// guest, as reported by the agent.
type ServiceStatus string

const (
	ServiceNew      ServiceStatus = "NEW"
	ServiceBuilding ServiceStatus = "BUILDING"
	ServiceRunning  ServiceStatus = "RUNNING"
	ServiceBlocked  ServiceStatus = "BLOCKED"
	ServicePaused   ServiceStatus = "PAUSED"
	ServiceShutdown ServiceStatus = "SHUTDOWN"
	ServiceCrashed  ServiceStatus = "CRASHED"
	ServiceFailed   ServiceStatus = "FAILED"
	ServiceUnknown  ServiceStatus = "UNKNOWN"
)

// APIStatus is the user-visible instance status.
type APIStatus string

const (
	APINew      APIStatus = "NEW"
	APIBuild    APIStatus = "BUILD"
	APIActive   APIStatus = "ACTIVE"
	APIBlocked  APIStatus = "BLOCKED"
	APIShutdown APIStatus = "SHUTDOWN"
	APIFailed   APIStatus = "FAILED"
	APIError    APIStatus = "ERROR"
	APIReboot   APIStatus = "REBOOT"
	APIResize   APIStatus = "RESIZE"
)

// serviceToAPI is the fixed mapping from guest service status to the
// user-visible status. The table is consulted only after the derivation
// rules in DeriveStatus have had their say.
var serviceToAPI = map[ServiceStatus]APIStatus{
	ServiceNew:      APINew,
	ServiceBuilding: APIBuild,
	ServiceRunning:  APIActive,
	ServiceBlocked:  APIBlocked,
	ServicePaused:   APIShutdown,
	ServiceShutdown: APIShutdown,
	ServiceCrashed:  APIError,
	ServiceFailed:   APIFailed,
	ServiceUnknown:  APIError,
}

// API returns the user-visible status for a service status.
func (s ServiceStatus) API() APIStatus {
	if api, ok := serviceToAPI[s]; ok {
		return api
	}
	return APIError
}

// Running reports whether the guest considers the database process live.
func (s ServiceStatus) Running() bool {
	return s == ServiceRunning || s == ServiceBlocked
}

// KnownServiceStatus reports whether name is a status an agent may report.
func KnownServiceStatus(name string) bool {
	_, ok := serviceToAPI[ServiceStatus(name)]
	return ok
}

// Substrate server statuses, as reported by the compute service.
const (
	ServerActive       = "ACTIVE"
	ServerBuild        = "BUILD"
	ServerError        = "ERROR"
	ServerReboot       = "REBOOT"
	ServerHardReboot   = "HARD_REBOOT"
	ServerResize       = "RESIZE"
	ServerVerifyResize = "VERIFY_RESIZE"
	ServerShutdown     = "SHUTDOWN"
	ServerDeleted      = "DELETED"
)

// DeriveStatus merges the substrate server status, the guest service status
// and the engine task status into the single user-visible instance status.
// It is a pure function of its three inputs.
func DeriveStatus(serverStatus string, service ServiceStatus, task TaskStatus) APIStatus {
	switch serverStatus {
	case ServerBuild:
		return APIBuild
	case ServerError:
		return APIError
	case ServerReboot, ServerHardReboot:
		return APIReboot
	case ServerResize, ServerVerifyResize:
		return APIResize
	}

	if service == ServicePaused {
		return APIReboot
	}
	if service == ServiceNew {
		return APIBuild
	}

	if task.Name == TaskDeleting.Name {
		switch serverStatus {
		case ServerActive, ServerShutdown, ServerDeleted, "":
			return APIShutdown
		default:
			return APIError
		}
	}

	return service.API()
}
