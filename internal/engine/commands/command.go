// Package commands implements the engine commands that advance a single
// workflow execution. Commands are run one at a time by a driver; a command
// returning false asks the driver to stop processing the current batch.
package commands

import (
	"context"
	"log/slog"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/repo"
	"github.com/animus-labs/animus-flow/internal/rpc"
	"github.com/animus-labs/animus-flow/internal/workflow/policy"
	"github.com/animus-labs/animus-flow/internal/workflow/spec"
)

// Command is the closed set of engine commands: *RunTask, *FailWorkflow,
// *SucceedWorkflow, *PauseWorkflow and *RollbackWorkflow.
type Command interface {
	Kind() Kind
	Run(ctx context.Context, exec *domain.Execution, h Handler) (bool, error)

	sealed()
}

// Handler is the workflow handler driving the current execution.
type Handler interface {
	UpstreamTasks(ctx context.Context, taskSpec *spec.TaskSpec) ([]domain.Task, error)
	PauseWorkflow(ctx context.Context) error
}

type DataFlow interface {
	PrepareTask(task domain.Task, taskSpec *spec.TaskSpec, upstream []domain.Task, exec domain.Execution) (domain.Task, error)
}

type PolicyBuilder interface {
	Build(decls spec.Policies) ([]policy.Policy, error)
}

type Resolver interface {
	ResolveAction(ctx context.Context, rootWorkflowName, currentWorkflowName, name string) (domain.ActionDefinition, error)
	ResolveWorkflow(ctx context.Context, rootWorkflowName, currentWorkflowName, name string) (domain.WorkflowDefinition, error)
}

// Evaluator evaluates an expression tree against a data context.
type Evaluator func(tree any, ctx map[string]any) (any, error)

// Recorder receives command and dispatch counts.
type Recorder interface {
	CommandRun(command, result string)
	Dispatched(kind string)
}

// Deps bundles the collaborators commands need. Logger and Metrics are optional.
type Deps struct {
	Tasks    repo.TaskRepository
	DataFlow DataFlow
	Policies PolicyBuilder
	Resolver Resolver
	Evaluate Evaluator
	Executor rpc.ExecutorClient
	Engine   rpc.EngineClient
	Logger   *slog.Logger
	Metrics  Recorder
}

func (d *Deps) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Deps) dispatched(kind string) {
	if d != nil && d.Metrics != nil {
		d.Metrics.Dispatched(kind)
	}
}

func (d *Deps) commandRun(kind Kind, err error, cont bool) {
	if d == nil || d.Metrics == nil {
		return
	}
	result := "continue"
	switch {
	case err != nil:
		result = "error"
	case !cont:
		result = "halt"
	}
	d.Metrics.CommandRun(string(kind), result)
}
