package domain

import "strings"

// WorkflowState is the lifecycle state of an execution.
type WorkflowState string

const (
	WorkflowStateRunning WorkflowState = "RUNNING"
	WorkflowStatePaused  WorkflowState = "PAUSED"
	WorkflowStateSuccess WorkflowState = "SUCCESS"
	WorkflowStateError   WorkflowState = "ERROR"
)

// TaskState is the lifecycle state of a single task.
type TaskState string

const (
	TaskStateIdle    TaskState = "IDLE"
	TaskStateRunning TaskState = "RUNNING"
	TaskStateDelayed TaskState = "DELAYED"
	TaskStateSuccess TaskState = "SUCCESS"
	TaskStateError   TaskState = "ERROR"
)

// NormalizeWorkflowState maps free-form values to canonical workflow states.
func NormalizeWorkflowState(value string) WorkflowState {
	switch WorkflowState(strings.ToUpper(strings.TrimSpace(value))) {
	case WorkflowStateRunning:
		return WorkflowStateRunning
	case WorkflowStatePaused:
		return WorkflowStatePaused
	case WorkflowStateSuccess:
		return WorkflowStateSuccess
	case WorkflowStateError:
		return WorkflowStateError
	default:
		return ""
	}
}

// NormalizeTaskState maps free-form values to canonical task states.
func NormalizeTaskState(value string) TaskState {
	switch TaskState(strings.ToUpper(strings.TrimSpace(value))) {
	case TaskStateIdle:
		return TaskStateIdle
	case TaskStateRunning:
		return TaskStateRunning
	case TaskStateDelayed:
		return TaskStateDelayed
	case TaskStateSuccess:
		return TaskStateSuccess
	case TaskStateError:
		return TaskStateError
	default:
		return ""
	}
}

func (s WorkflowState) IsCompleted() bool {
	return s == WorkflowStateSuccess || s == WorkflowStateError
}

func (s TaskState) IsCompleted() bool {
	return s == TaskStateSuccess || s == TaskStateError
}

// CanTransitionTaskState reports whether a task may move from current to next.
// Completed tasks never move; everything else may be re-entered by policies.
func CanTransitionTaskState(current, next TaskState) bool {
	if current == "" || next == "" {
		return false
	}
	if current == next {
		return true
	}
	return !current.IsCompleted()
}
