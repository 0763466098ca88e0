// Package rpc carries asynchronous engine and executor requests. Every send
// is fire-and-forget: results come back through a separate channel.
package rpc

import (
	"context"
	"time"
)

// StartOptions are launch-time options for a child workflow that are not
// part of its declared input, such as parent_task_id.
type StartOptions map[string]any

const ParentTaskIDOption = "parent_task_id"

// ExecutorClient dispatches actions to remote executors.
type ExecutorClient interface {
	RunAction(ctx context.Context, taskID, actionClass string, attributes, params map[string]any) error
}

// EngineClient asks an engine to start a new workflow execution.
type EngineClient interface {
	StartWorkflow(ctx context.Context, workflowName string, input map[string]any, opts StartOptions) error
}

type RunActionRequest struct {
	TaskID      string         `json:"task_id"`
	ActionClass string         `json:"action_class"`
	Attributes  map[string]any `json:"attributes"`
	Parameters  map[string]any `json:"parameters"`
	SentAt      time.Time      `json:"sent_at"`
}

type StartWorkflowRequest struct {
	WorkflowName string         `json:"workflow_name"`
	Input        map[string]any `json:"input"`
	Options      StartOptions   `json:"options"`
	SentAt       time.Time      `json:"sent_at"`
}

// ParentTaskID returns the parent linkage carried by the request, if any.
func (r StartWorkflowRequest) ParentTaskID() string {
	id, _ := r.Options[ParentTaskIDOption].(string)
	return id
}
