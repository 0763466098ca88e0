// Package dataflow computes a task's inbound context and evaluated input
// parameters from the execution context and upstream task outputs.
package dataflow

import (
	"fmt"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/expr"
	"github.com/animus-labs/animus-flow/internal/workflow/spec"
)

type Resolver struct{}

func New() *Resolver {
	return &Resolver{}
}

// PrepareTask returns task with InContext and Parameters populated. The
// input task is not modified.
func (r *Resolver) PrepareTask(task domain.Task, taskSpec *spec.TaskSpec, upstream []domain.Task, exec domain.Execution) (domain.Task, error) {
	if taskSpec == nil {
		return domain.Task{}, fmt.Errorf("task spec is required")
	}
	inContext := EvaluateInContext(exec, upstream)

	params, err := expr.EvaluateMap(taskSpec.Parameters, inContext)
	if err != nil {
		return domain.Task{}, fmt.Errorf("evaluate parameters for task %q: %w", taskSpec.Name, err)
	}

	task.InContext = inContext
	if params != nil {
		task.Parameters = domain.Metadata(params)
	} else {
		task.Parameters = nil
	}
	return task, nil
}

// EvaluateInContext merges the execution context and input with upstream
// outputs. Later upstream tasks win on key collisions.
func EvaluateInContext(exec domain.Execution, upstream []domain.Task) domain.Metadata {
	out := exec.Context.Merge(exec.Input)
	for _, task := range upstream {
		out = out.Merge(task.Output)
	}
	return out
}
