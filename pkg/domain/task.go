package domain

import (
	"time"
)

type TaskKind string

const (
	// Node's primary long-running service process
	KindDaemon TaskKind = "daemon"

	// One node's work item restoring data from an external snapshot
	KindRestoreSnapshot TaskKind = "restore_snapshot"
)

type TaskState string

const (
	// Task record created by the scheduler, nothing launched yet
	TaskStateNew TaskState = "TASK_NEW"

	TaskStateStaging  TaskState = "TASK_STAGING"
	TaskStateStarting TaskState = "TASK_STARTING"
	TaskStateRunning  TaskState = "TASK_RUNNING"
	TaskStateFinished TaskState = "TASK_FINISHED"
	TaskStateFailed   TaskState = "TASK_FAILED"
	TaskStateKilled   TaskState = "TASK_KILLED"
	TaskStateLost     TaskState = "TASK_LOST"
	TaskStateError    TaskState = "TASK_ERROR"
)

func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateFinished, TaskStateFailed, TaskStateKilled, TaskStateLost, TaskStateError:
		return true
	}
	return false
}

// Task is a record owned by the task store. Daemon and restore-snapshot
// tasks share one shape and are told apart by Kind.
type Task struct {
	Id       string
	Name     string
	Kind     TaskKind
	NodeName string
	SlaveId  string
	State    TaskState

	// restore-snapshot tasks only
	RestoreName      string
	ExternalLocation string
	AccessKey        string
	SecretKey        string

	ContainerId string
	StatusCode  int64

	CreatedAt time.Time
	UpdatedAt time.Time

	// set once the task's container has been started
	LaunchedAt *time.Time
}

// RestoreContext rebuilds the context a restore-snapshot task was created for.
func (t Task) RestoreContext() RestoreContext {
	return RestoreContext{
		Name:             t.RestoreName,
		ExternalLocation: t.ExternalLocation,
		AccessKey:        t.AccessKey,
		SecretKey:        t.SecretKey,
	}
}

// OfferRequirement is a resource claim the allocator has to fulfil for a
// single task.
type OfferRequirement struct {
	TaskId   string
	TaskName string
	NodeName string
	SlaveId  string

	Cpus   float64
	MemMb  float64
	DiskMb float64

	// Update claims re-provision an existing task on the slave it already runs on
	Update bool
}
