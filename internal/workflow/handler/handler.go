// Package handler drives the task graph of one workflow execution.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/repo"
	"github.com/animus-labs/animus-flow/internal/workflow/spec"
)

// Handler answers graph questions for a single execution and applies
// workflow-level state changes. The execution pointer is shared with the
// command driver so state changes are visible to both.
type Handler struct {
	exec       *domain.Execution
	wfSpec     *spec.WorkflowSpec
	tasks      repo.TaskRepository
	executions repo.ExecutionRepository
	logger     *slog.Logger

	// stored is the execution state last written to the repository.
	stored domain.WorkflowState
}

func New(exec *domain.Execution, wfSpec *spec.WorkflowSpec, tasks repo.TaskRepository, executions repo.ExecutionRepository, logger *slog.Logger) (*Handler, error) {
	if exec == nil {
		return nil, errors.New("execution is required")
	}
	if wfSpec == nil {
		return nil, errors.New("workflow spec is required")
	}
	if tasks == nil || executions == nil {
		return nil, errors.New("task and execution repositories are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{exec: exec, wfSpec: wfSpec, tasks: tasks, executions: executions, logger: logger, stored: exec.State}, nil
}

func (h *Handler) Execution() *domain.Execution { return h.exec }

func (h *Handler) Spec() *spec.WorkflowSpec { return h.wfSpec }

// UpstreamNames returns the names of tasks feeding taskName: its requires
// list followed by every task that transitions to it, without duplicates.
func (h *Handler) UpstreamNames(taskSpec *spec.TaskSpec) []string {
	if taskSpec == nil {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(taskSpec.Requires))
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range taskSpec.Requires {
		add(name)
	}
	for _, name := range h.wfSpec.TaskNames() {
		for _, next := range h.wfSpec.Tasks[name].Transitions() {
			if next == taskSpec.Name {
				add(name)
				break
			}
		}
	}
	return out
}

// UpstreamTasks returns the persisted upstream tasks of taskSpec in the
// order they were stored.
func (h *Handler) UpstreamTasks(ctx context.Context, taskSpec *spec.TaskSpec) ([]domain.Task, error) {
	names := h.UpstreamNames(taskSpec)
	if len(names) == 0 {
		return nil, nil
	}
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	stored, err := h.tasks.ListTasks(ctx, h.exec.ID)
	if err != nil {
		return nil, fmt.Errorf("list tasks of execution %s: %w", h.exec.ID, err)
	}
	out := make([]domain.Task, 0, len(names))
	for _, task := range stored {
		if _, ok := wanted[task.Name]; ok {
			out = append(out, task)
		}
	}
	return out, nil
}

// StartTasks returns the tasks with no upstream, in lexical order.
func (h *Handler) StartTasks() []*spec.TaskSpec {
	inbound := map[string]struct{}{}
	for _, name := range h.wfSpec.TaskNames() {
		for _, next := range h.wfSpec.Tasks[name].Transitions() {
			inbound[next] = struct{}{}
		}
	}
	out := make([]*spec.TaskSpec, 0, len(h.wfSpec.Tasks))
	for _, name := range h.wfSpec.TaskNames() {
		task := h.wfSpec.Tasks[name]
		if _, ok := inbound[name]; ok {
			continue
		}
		if len(task.Requires) > 0 {
			continue
		}
		out = append(out, task)
	}
	return out
}

// PauseWorkflow moves the execution to PAUSED and stores the new state.
func (h *Handler) PauseWorkflow(ctx context.Context) error {
	if err := h.SetState(ctx, domain.WorkflowStatePaused); err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "execution paused", "execution_id", h.exec.ID)
	return nil
}

// SetState stores state for the execution and mirrors it on the shared record.
func (h *Handler) SetState(ctx context.Context, state domain.WorkflowState) error {
	if err := h.executions.UpdateExecutionState(ctx, h.exec.ID, state); err != nil {
		return fmt.Errorf("update execution %s state: %w", h.exec.ID, err)
	}
	h.exec.State = state
	h.stored = state
	return nil
}

// Flush stores a state change made directly on the execution record, such
// as the one applied by a terminal command.
func (h *Handler) Flush(ctx context.Context) error {
	if h.exec.State == h.stored {
		return nil
	}
	return h.SetState(ctx, h.exec.State)
}
