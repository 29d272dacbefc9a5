package model

// TaskStatus is a tagged variant describing what the lifecycle engine is
// doing (or failed to do) with an instance. Variants are fixed at init and
// never mutated; rows persist the Name.
type TaskStatus struct {
	Name   string
	Code   int
	Action string
	Text   string
	Error  bool
}

var (
	TaskNone      = TaskStatus{Name: "NONE", Code: 1, Action: "NONE", Text: "No tasks for the instance."}
	TaskDeleting  = TaskStatus{Name: "DELETING", Code: 2, Action: "DELETING", Text: "Deleting the instance."}
	TaskRebooting = TaskStatus{Name: "REBOOTING", Code: 3, Action: "REBOOTING", Text: "Rebooting the instance."}
	TaskResizing  = TaskStatus{Name: "RESIZING", Code: 4, Action: "RESIZING", Text: "Resizing the instance."}
	TaskBuilding  = TaskStatus{Name: "BUILDING", Code: 5, Action: "BUILDING", Text: "The instance is building."}

	TaskBuildingErrorDNS    = TaskStatus{Name: "BUILDING_ERROR_DNS", Code: 74, Action: "BUILDING", Text: "Build error: DNS.", Error: true}
	TaskBuildingErrorServer = TaskStatus{Name: "BUILDING_ERROR_SERVER", Code: 75, Action: "BUILDING", Text: "Build error: Server.", Error: true}
	TaskBuildingErrorVolume = TaskStatus{Name: "BUILDING_ERROR_VOLUME", Code: 76, Action: "BUILDING", Text: "Build error: Volume.", Error: true}
)

var taskStatuses = map[string]TaskStatus{
	TaskNone.Name:                TaskNone,
	TaskDeleting.Name:            TaskDeleting,
	TaskRebooting.Name:           TaskRebooting,
	TaskResizing.Name:            TaskResizing,
	TaskBuilding.Name:            TaskBuilding,
	TaskBuildingErrorDNS.Name:    TaskBuildingErrorDNS,
	TaskBuildingErrorServer.Name: TaskBuildingErrorServer,
	TaskBuildingErrorVolume.Name: TaskBuildingErrorVolume,
}

// TaskStatusByName resolves a persisted task status name. Unknown names
// resolve to TaskNone so a stale row cannot wedge reads.
func TaskStatusByName(name string) TaskStatus {
	if ts, ok := taskStatuses[name]; ok {
		return ts
	}
	return TaskNone
}

// Transient reports whether the status represents in-flight engine work.
func (t TaskStatus) Transient() bool {
	return !t.Error && t.Name != TaskNone.Name
}
