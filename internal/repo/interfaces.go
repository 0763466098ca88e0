package repo

import (
	"context"
	"errors"

	"github.com/animus-labs/animus-flow/internal/domain"
)

// ErrNotFound is returned when a record does not exist in any visible scope.
var ErrNotFound = errors.New("not found")

// TaskRepository persists task records.
type TaskRepository interface {
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	UpdateTask(ctx context.Context, task domain.Task) error
	ListTasks(ctx context.Context, executionID string) ([]domain.Task, error)
}

// ExecutionRepository persists workflow executions.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, exec domain.Execution) (domain.Execution, error)
	GetExecution(ctx context.Context, id string) (domain.Execution, error)
	UpdateExecutionState(ctx context.Context, id string, state domain.WorkflowState) error
}

// DefinitionRepository loads stored actions and workflows by fully
// qualified name.
type DefinitionRepository interface {
	GetAction(ctx context.Context, name string) (domain.ActionDefinition, error)
	GetWorkflow(ctx context.Context, name string) (domain.WorkflowDefinition, error)
}
