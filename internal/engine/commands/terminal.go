package commands

import (
	"context"
	"errors"

	"github.com/animus-labs/animus-flow/internal/domain"
)

// FailWorkflow moves the execution to ERROR and halts the batch.
type FailWorkflow struct {
	deps *Deps
}

func (c *FailWorkflow) Kind() Kind { return KindFail }
func (c *FailWorkflow) sealed()    {}

func (c *FailWorkflow) Run(ctx context.Context, exec *domain.Execution, _ Handler) (bool, error) {
	if exec == nil {
		return false, errors.New("execution is required")
	}
	exec.State = domain.WorkflowStateError
	c.deps.logger().InfoContext(ctx, "workflow failed", "execution_id", exec.ID, "workflow", exec.WorkflowName)
	return false, nil
}

// SucceedWorkflow moves the execution to SUCCESS and halts the batch.
type SucceedWorkflow struct {
	deps *Deps
}

func (c *SucceedWorkflow) Kind() Kind { return KindSucceed }
func (c *SucceedWorkflow) sealed()    {}

func (c *SucceedWorkflow) Run(ctx context.Context, exec *domain.Execution, _ Handler) (bool, error) {
	if exec == nil {
		return false, errors.New("execution is required")
	}
	exec.State = domain.WorkflowStateSuccess
	c.deps.logger().InfoContext(ctx, "workflow succeeded", "execution_id", exec.ID, "workflow", exec.WorkflowName)
	return false, nil
}

// PauseWorkflow delegates to the handler and halts the batch. The execution
// record itself is left to the handler.
type PauseWorkflow struct {
	deps *Deps
}

func (c *PauseWorkflow) Kind() Kind { return KindPause }
func (c *PauseWorkflow) sealed()    {}

func (c *PauseWorkflow) Run(ctx context.Context, exec *domain.Execution, h Handler) (bool, error) {
	if h == nil {
		return false, errors.New("workflow handler is required")
	}
	if err := h.PauseWorkflow(ctx); err != nil {
		return false, err
	}
	if exec != nil {
		c.deps.logger().InfoContext(ctx, "workflow paused", "execution_id", exec.ID, "workflow", exec.WorkflowName)
	}
	return false, nil
}

// RollbackWorkflow has no behavior yet and lets the batch continue.
type RollbackWorkflow struct{}

func (c *RollbackWorkflow) Kind() Kind { return KindRollback }
func (c *RollbackWorkflow) sealed()    {}

func (c *RollbackWorkflow) Run(context.Context, *domain.Execution, Handler) (bool, error) {
	return true, nil
}
