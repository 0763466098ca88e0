package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/rpc"
	"github.com/animus-labs/animus-flow/internal/workflow/policy"
	"github.com/animus-labs/animus-flow/internal/workflow/spec"
)

// ErrNestedAdHoc is returned when an ad-hoc action names another ad-hoc
// action as its base. Expansion is a single step, so the base must be a
// registered action with its own action class.
var ErrNestedAdHoc = errors.New("ad-hoc action expands a single step; its base must not be ad-hoc")

// RunTask materializes a task, applies its start policies and dispatches it
// to an executor or to a child workflow.
type RunTask struct {
	deps     *Deps
	taskSpec *spec.TaskSpec
	task     *domain.Task
}

// NewRunTask returns a RunTask. A non-nil task makes the command resume that
// record: no task is created and data flow is not evaluated again.
func NewRunTask(deps *Deps, taskSpec *spec.TaskSpec, task *domain.Task) *RunTask {
	c := &RunTask{deps: deps, taskSpec: taskSpec}
	if task != nil {
		t := *task
		c.task = &t
	}
	return c
}

func (c *RunTask) Kind() Kind { return KindRunTask }
func (c *RunTask) sealed()    {}

func (c *RunTask) TaskSpec() *spec.TaskSpec { return c.taskSpec }

// Task returns the task record as of the last step that ran, or nil.
func (c *RunTask) Task() *domain.Task {
	if c.task == nil {
		return nil
	}
	t := *c.task
	return &t
}

func (c *RunTask) Run(ctx context.Context, exec *domain.Execution, h Handler) (bool, error) {
	if exec == nil {
		return false, errors.New("execution is required")
	}
	if c.taskSpec == nil {
		return false, errors.New("task spec is required")
	}
	if c.deps == nil || c.deps.Tasks == nil {
		return false, errors.New("task repository is required")
	}
	c.deps.logger().DebugContext(ctx, "running workflow task", "execution_id", exec.ID, "task", c.taskSpec.Name)

	task, err := c.prepareTask(ctx, *exec, h)
	if err != nil {
		return false, err
	}
	c.task = &task

	task, err = c.beforeTaskStart(ctx, task)
	if err != nil {
		return false, err
	}
	c.task = &task

	if err := c.runTask(ctx, *exec, task); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RunTask) prepareTask(ctx context.Context, exec domain.Execution, h Handler) (domain.Task, error) {
	if c.task != nil {
		return *c.task, nil
	}
	if h == nil {
		return domain.Task{}, errors.New("workflow handler is required")
	}
	if c.deps.DataFlow == nil {
		return domain.Task{}, errors.New("data flow resolver is required")
	}

	snapshot, err := c.taskSpec.Marshal()
	if err != nil {
		return domain.Task{}, fmt.Errorf("snapshot task spec: %w", err)
	}
	task, err := c.deps.Tasks.CreateTask(ctx, domain.Task{
		ExecutionID: exec.ID,
		Name:        c.taskSpec.Name,
		State:       domain.TaskStateRunning,
		Spec:        snapshot,
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task %q: %w", c.taskSpec.Name, err)
	}

	upstream, err := h.UpstreamTasks(ctx, c.taskSpec)
	if err != nil {
		return domain.Task{}, fmt.Errorf("upstream tasks for %q: %w", c.taskSpec.Name, err)
	}
	task, err = c.deps.DataFlow.PrepareTask(task, c.taskSpec, upstream, exec)
	if err != nil {
		return domain.Task{}, err
	}
	if err := c.deps.Tasks.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("store data flow for task %s: %w", task.ID, err)
	}
	return task, nil
}

func (c *RunTask) beforeTaskStart(ctx context.Context, task domain.Task) (domain.Task, error) {
	if len(c.taskSpec.Policies) == 0 {
		return task, nil
	}
	if c.deps.Policies == nil {
		return domain.Task{}, errors.New("policy builder is required")
	}
	policies, err := c.deps.Policies.Build(c.taskSpec.Policies)
	if err != nil {
		return domain.Task{}, fmt.Errorf("build policies for task %q: %w", c.taskSpec.Name, err)
	}
	for _, p := range policies {
		task, err = p.BeforeTaskStart(ctx, task, c.taskSpec)
		if err != nil {
			return domain.Task{}, fmt.Errorf("policy %s before task %q: %w", p.Type(), c.taskSpec.Name, err)
		}
	}
	if err := c.deps.Tasks.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("store task %s after policies: %w", task.ID, err)
	}
	for _, p := range policies {
		hook, ok := p.(policy.StoredHook)
		if !ok {
			continue
		}
		if err := hook.AfterTaskStored(ctx, task); err != nil {
			return domain.Task{}, fmt.Errorf("policy %s after storing task %q: %w", p.Type(), c.taskSpec.Name, err)
		}
	}
	return task, nil
}

func (c *RunTask) runTask(ctx context.Context, exec domain.Execution, task domain.Task) error {
	// Policies may have moved the task out of RUNNING.
	if task.State != domain.TaskStateRunning {
		c.deps.logger().DebugContext(ctx, "task held by policy", "execution_id", exec.ID, "task_id", task.ID, "state", string(task.State))
		return nil
	}

	switch {
	case c.taskSpec.Action != "":
		return c.runAction(ctx, exec, task)
	case c.taskSpec.Workflow != "":
		return c.runWorkflow(ctx, exec, task)
	default:
		return nil
	}
}

func (c *RunTask) runAction(ctx context.Context, exec domain.Execution, task domain.Task) error {
	if c.deps.Resolver == nil || c.deps.Executor == nil {
		return errors.New("resolver and executor client are required")
	}
	wfSpec, err := spec.ParseWorkflow(exec.WorkflowSpec)
	if err != nil {
		return err
	}

	action, err := c.deps.Resolver.ResolveAction(ctx, exec.WorkflowName, wfSpec.Name, c.taskSpec.Action)
	if err != nil {
		return err
	}

	params := map[string]any{}
	for k, v := range task.Parameters {
		params[k] = v
	}

	if action.IsAdHoc() {
		action, params, err = c.expandAdHoc(ctx, exec, wfSpec, action, params)
		if err != nil {
			return err
		}
	}

	attributes := map[string]any(action.Attributes)
	if attributes == nil {
		attributes = map[string]any{}
	}
	if err := c.deps.Executor.RunAction(ctx, task.ID, action.ActionClass, attributes, params); err != nil {
		return fmt.Errorf("run action %s for task %s: %w", action.Name, task.ID, err)
	}
	c.deps.dispatched("action")
	c.deps.logger().InfoContext(ctx, "action dispatched", "execution_id", exec.ID, "task_id", task.ID, "action", action.Name, "action_class", action.ActionClass)
	return nil
}

// expandAdHoc replaces an ad-hoc action with its base. Declared base
// parameters are evaluated against params and replace them; without them
// the effective parameters are empty.
func (c *RunTask) expandAdHoc(ctx context.Context, exec domain.Execution, wfSpec *spec.WorkflowSpec, action domain.ActionDefinition, params map[string]any) (domain.ActionDefinition, map[string]any, error) {
	actionSpec, err := spec.ParseAction(action.Spec)
	if err != nil {
		return domain.ActionDefinition{}, nil, fmt.Errorf("ad-hoc action %s: %w", action.Name, err)
	}
	base, err := c.deps.Resolver.ResolveAction(ctx, exec.WorkflowName, wfSpec.Name, actionSpec.Base)
	if err != nil {
		return domain.ActionDefinition{}, nil, err
	}
	if base.IsAdHoc() {
		return domain.ActionDefinition{}, nil, fmt.Errorf("action %s has ad-hoc base %s: %w", action.Name, base.Name, ErrNestedAdHoc)
	}

	baseParams, declared := actionSpec.BaseParameters()
	if !declared {
		return base, map[string]any{}, nil
	}
	evaluate := c.deps.Evaluate
	if evaluate == nil {
		return domain.ActionDefinition{}, nil, errors.New("expression evaluator is required")
	}
	evaluated, err := evaluate(baseParams, params)
	if err != nil {
		return domain.ActionDefinition{}, nil, fmt.Errorf("evaluate base parameters of %s: %w", action.Name, err)
	}
	out, ok := evaluated.(map[string]any)
	if !ok {
		return domain.ActionDefinition{}, nil, fmt.Errorf("base parameters of %s evaluated to %T", action.Name, evaluated)
	}
	return base, out, nil
}

func (c *RunTask) runWorkflow(ctx context.Context, exec domain.Execution, task domain.Task) error {
	if c.deps.Resolver == nil || c.deps.Engine == nil {
		return errors.New("resolver and engine client are required")
	}
	parentSpec, err := spec.ParseWorkflow(exec.WorkflowSpec)
	if err != nil {
		return err
	}

	wf, err := c.deps.Resolver.ResolveWorkflow(ctx, exec.WorkflowName, parentSpec.Name, c.taskSpec.Workflow)
	if err != nil {
		return err
	}
	childSpec, err := spec.ParseWorkflow(wf.Spec)
	if err != nil {
		return fmt.Errorf("workflow %s: %w", wf.Name, err)
	}

	input, opts := PartitionStartParams(task.Parameters, childSpec, task.ID)
	if err := c.deps.Engine.StartWorkflow(ctx, wf.Name, input, opts); err != nil {
		return fmt.Errorf("start workflow %s for task %s: %w", wf.Name, task.ID, err)
	}
	c.deps.dispatched("workflow")
	c.deps.logger().InfoContext(ctx, "sub-workflow dispatched", "execution_id", exec.ID, "task_id", task.ID, "workflow", wf.Name)
	return nil
}

// PartitionStartParams splits task parameters into the child workflow input
// (keys the child declares) and start options (everything else, plus
// parent_task_id). params is not modified. parent_task_id always carries the
// parent task id, even when params has an undeclared key of that name.
func PartitionStartParams(params map[string]any, childSpec *spec.WorkflowSpec, parentTaskID string) (map[string]any, rpc.StartOptions) {
	input := make(map[string]any, len(params))
	opts := make(rpc.StartOptions, len(params)+1)
	for k, v := range params {
		if childSpec.HasParameter(k) {
			input[k] = v
			continue
		}
		opts[k] = v
	}
	opts[rpc.ParentTaskIDOption] = parentTaskID
	return input, opts
}
