// Package engine runs workflow executions: it starts new executions from
// start requests and resumes delayed tasks once they are due.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/engine/commands"
	"github.com/animus-labs/animus-flow/internal/expr"
	"github.com/animus-labs/animus-flow/internal/platform/auditlog"
	"github.com/animus-labs/animus-flow/internal/repo"
	"github.com/animus-labs/animus-flow/internal/rpc"
	"github.com/animus-labs/animus-flow/internal/workflow/dataflow"
	"github.com/animus-labs/animus-flow/internal/workflow/handler"
	"github.com/animus-labs/animus-flow/internal/workflow/policy"
	"github.com/animus-labs/animus-flow/internal/workflow/resolve"
	"github.com/animus-labs/animus-flow/internal/workflow/spec"
	"github.com/google/uuid"
)

// Consumer feeds the engine loop.
type Consumer interface {
	NextStartWorkflow(ctx context.Context, timeout time.Duration) (rpc.StartWorkflowRequest, bool, error)
	ClaimDueTaskRuns(ctx context.Context, limit int64) ([]string, error)
}

type Recorder interface {
	commands.Recorder
	WorkflowStarted(err error)
	TaskResumed(err error)
}

// EventSink receives the execution audit trail.
type EventSink interface {
	Record(ctx context.Context, event auditlog.Event) error
}

type Options struct {
	Executions  repo.ExecutionRepository
	Tasks       repo.TaskRepository
	Definitions repo.DefinitionRepository
	Executor    rpc.ExecutorClient
	Engine      rpc.EngineClient
	Scheduler   policy.Scheduler
	Consumer    Consumer
	Logger      *slog.Logger
	Metrics     Recorder
	Events      EventSink

	// PollTimeout bounds each blocking wait for a start request.
	PollTimeout time.Duration
	// ClaimLimit caps the delayed runs resumed per loop iteration.
	ClaimLimit int64
	// ErrorBackoff is the pause after a consumer failure.
	ErrorBackoff time.Duration
}

type Service struct {
	executions repo.ExecutionRepository
	tasks      repo.TaskRepository
	resolver   *resolve.Resolver
	deps       *commands.Deps
	consumer   Consumer
	logger     *slog.Logger
	metrics    Recorder
	events     EventSink

	pollTimeout  time.Duration
	claimLimit   int64
	errorBackoff time.Duration
}

func NewService(opts Options) (*Service, error) {
	if opts.Executions == nil || opts.Tasks == nil || opts.Definitions == nil {
		return nil, errors.New("execution, task and definition repositories are required")
	}
	if opts.Executor == nil || opts.Engine == nil {
		return nil, errors.New("executor and engine clients are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	if opts.ClaimLimit <= 0 {
		opts.ClaimLimit = 100
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Second
	}

	resolver := resolve.New(opts.Definitions)
	deps := &commands.Deps{
		Tasks:    opts.Tasks,
		DataFlow: dataflow.New(),
		Policies: policy.NewBuilder(opts.Scheduler),
		Resolver: resolver,
		Evaluate: expr.EvaluateRecursively,
		Executor: opts.Executor,
		Engine:   opts.Engine,
		Logger:   logger,
	}
	if opts.Metrics != nil {
		deps.Metrics = opts.Metrics
	}

	return &Service{
		executions:   opts.Executions,
		tasks:        opts.Tasks,
		resolver:     resolver,
		deps:         deps,
		consumer:     opts.Consumer,
		logger:       logger,
		metrics:      opts.Metrics,
		events:       opts.Events,
		pollTimeout:  opts.PollTimeout,
		claimLimit:   opts.ClaimLimit,
		errorBackoff: opts.ErrorBackoff,
	}, nil
}

// StartWorkflow creates an execution for the requested workflow and runs
// its start tasks.
func (s *Service) StartWorkflow(ctx context.Context, req rpc.StartWorkflowRequest) (domain.Execution, error) {
	exec, err := s.startWorkflow(ctx, req)
	if s.metrics != nil {
		s.metrics.WorkflowStarted(err)
	}
	return exec, err
}

func (s *Service) startWorkflow(ctx context.Context, req rpc.StartWorkflowRequest) (domain.Execution, error) {
	name := strings.TrimSpace(req.WorkflowName)
	if name == "" {
		return domain.Execution{}, errors.New("workflow name is required")
	}
	wf, err := s.resolver.ResolveWorkflow(ctx, name, name, name)
	if err != nil {
		return domain.Execution{}, err
	}
	wfSpec, err := spec.ParseWorkflow(wf.Spec)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("workflow %s: %w", wf.Name, err)
	}

	id := uuid.NewString()
	exec, err := s.executions.CreateExecution(ctx, domain.Execution{
		ID:           id,
		WorkflowName: wf.Name,
		WorkflowSpec: wf.Spec,
		State:        domain.WorkflowStateRunning,
		Input:        domain.Metadata(req.Input).Clone(),
		Context:      executionContext(id, wf.Name, req),
		StartParams:  domain.Metadata(req.Options).Clone(),
	})
	if err != nil {
		return domain.Execution{}, fmt.Errorf("create execution of %s: %w", wf.Name, err)
	}
	s.logger.InfoContext(ctx, "execution created", "execution_id", exec.ID, "workflow", exec.WorkflowName, "parent_task_id", exec.ParentTaskID())
	s.record(ctx, auditlog.Event{
		Action:      auditlog.ActionExecutionCreated,
		ExecutionID: exec.ID,
		Payload: map[string]any{
			"workflow":       exec.WorkflowName,
			"parent_task_id": exec.ParentTaskID(),
		},
	})

	h, err := handler.New(&exec, wfSpec, s.tasks, s.executions, s.logger)
	if err != nil {
		return domain.Execution{}, err
	}
	starts := h.StartTasks()
	cmds := make([]commands.Command, 0, len(starts))
	for _, taskSpec := range starts {
		cmds = append(cmds, commands.NewRunTask(s.deps, taskSpec, nil))
	}
	if err := s.runBatch(ctx, h, cmds); err != nil {
		return exec, err
	}
	return exec, nil
}

// executionContext is the data every task of the execution can reference
// as $.__execution.
func executionContext(id, workflowName string, req rpc.StartWorkflowRequest) domain.Metadata {
	meta := map[string]any{
		"id":            id,
		"workflow_name": workflowName,
	}
	if parent := req.ParentTaskID(); parent != "" {
		meta["parent_task_id"] = parent
	}
	return domain.Metadata{"__execution": meta}
}

// ResumeTask runs an existing task again, typically after a wait-before
// delay elapsed. Tasks of executions that are no longer running are skipped.
func (s *Service) ResumeTask(ctx context.Context, taskID string) error {
	err := s.resumeTask(ctx, taskID)
	if s.metrics != nil {
		s.metrics.TaskResumed(err)
	}
	return err
}

func (s *Service) resumeTask(ctx context.Context, taskID string) error {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	exec, err := s.executions.GetExecution(ctx, task.ExecutionID)
	if err != nil {
		return fmt.Errorf("load execution %s: %w", task.ExecutionID, err)
	}
	if exec.State != domain.WorkflowStateRunning {
		s.logger.InfoContext(ctx, "skipping task resume", "execution_id", exec.ID, "task_id", task.ID, "execution_state", string(exec.State))
		return nil
	}

	taskSpec, err := spec.ParseTask(task.Spec)
	if err != nil {
		return fmt.Errorf("task %s: %w", task.ID, err)
	}
	wfSpec, err := spec.ParseWorkflow(exec.WorkflowSpec)
	if err != nil {
		return fmt.Errorf("execution %s: %w", exec.ID, err)
	}
	h, err := handler.New(&exec, wfSpec, s.tasks, s.executions, s.logger)
	if err != nil {
		return err
	}
	s.record(ctx, auditlog.Event{
		Action:      auditlog.ActionTaskResumed,
		ExecutionID: exec.ID,
		TaskID:      task.ID,
		Payload:     map[string]any{"task": task.Name, "state": string(task.State)},
	})
	return s.runBatch(ctx, h, []commands.Command{commands.NewRunTask(s.deps, taskSpec, &task)})
}

// ApplyCommand runs a workflow-level command, looked up by registry name,
// against a stored execution. Task commands need a task spec and are
// rejected.
func (s *Service) ApplyCommand(ctx context.Context, executionID, name string) error {
	exec, err := s.executions.GetExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("load execution %s: %w", executionID, err)
	}
	kind, ok := commands.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", commands.ErrUnknownCommand, name)
	}
	if kind == commands.KindRunTask {
		return fmt.Errorf("command %q needs a task and cannot be applied to an execution", name)
	}
	cmd, err := commands.New(kind, s.deps, nil, nil)
	if err != nil {
		return err
	}
	wfSpec, err := spec.ParseWorkflow(exec.WorkflowSpec)
	if err != nil {
		return fmt.Errorf("execution %s: %w", exec.ID, err)
	}
	h, err := handler.New(&exec, wfSpec, s.tasks, s.executions, s.logger)
	if err != nil {
		return err
	}
	return s.runBatch(ctx, h, []commands.Command{cmd})
}

func (s *Service) runBatch(ctx context.Context, h *handler.Handler, cmds []commands.Command) error {
	exec := h.Execution()
	before := exec.State
	n, err := commands.RunBatch(ctx, s.deps, exec, h, cmds)
	if err != nil {
		s.logger.ErrorContext(ctx, "command batch failed", "execution_id", exec.ID, "commands_run", n, "error", err)
		return err
	}
	if err := h.Flush(ctx); err != nil {
		return err
	}
	if exec.State != before {
		s.record(ctx, auditlog.Event{
			Action:      auditlog.ActionExecutionStateChanged,
			ExecutionID: exec.ID,
			Payload:     map[string]any{"from": string(before), "to": string(exec.State)},
		})
	}
	return nil
}

// record stores an audit event. The trail is best effort: failures are
// logged and never fail the command batch.
func (s *Service) record(ctx context.Context, event auditlog.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Record(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit event not stored", "action", event.Action, "execution_id", event.ExecutionID, "error", err)
	}
}

// Run consumes start requests and due task runs until ctx is done. Failures
// of individual requests are logged and do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	if s.consumer == nil {
		return errors.New("consumer is required")
	}
	s.logger.InfoContext(ctx, "engine loop started", "poll_timeout", s.pollTimeout.String())
	for {
		if ctx.Err() != nil {
			s.logger.Info("engine loop stopped")
			return nil
		}
		if err := s.step(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.ErrorContext(ctx, "engine consumer failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(s.errorBackoff):
			}
		}
	}
}

func (s *Service) step(ctx context.Context) error {
	due, err := s.consumer.ClaimDueTaskRuns(ctx, s.claimLimit)
	if err != nil {
		return err
	}
	for _, taskID := range due {
		if err := s.ResumeTask(ctx, taskID); err != nil {
			s.logger.ErrorContext(ctx, "task resume failed", "task_id", taskID, "error", err)
		}
	}

	req, ok, err := s.consumer.NextStartWorkflow(ctx, s.pollTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if _, err := s.StartWorkflow(ctx, req); err != nil {
		s.logger.ErrorContext(ctx, "workflow start failed", "workflow", req.WorkflowName, "parent_task_id", req.ParentTaskID(), "error", err)
	}
	return nil
}
