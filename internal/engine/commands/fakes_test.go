package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/expr"
	"github.com/animus-labs/animus-flow/internal/repo"
	"github.com/animus-labs/animus-flow/internal/rpc"
	"github.com/animus-labs/animus-flow/internal/workflow/policy"
	"github.com/animus-labs/animus-flow/internal/workflow/spec"
)

type memoryTasks struct {
	tasks     map[string]domain.Task
	created   int
	updated   int
	nextID    int
	updateErr error
}

func newMemoryTasks() *memoryTasks {
	return &memoryTasks{tasks: map[string]domain.Task{}}
}

func (m *memoryTasks) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	m.nextID++
	m.created++
	task.ID = fmt.Sprintf("task-%d", m.nextID)
	m.tasks[task.ID] = task
	return task, nil
}

func (m *memoryTasks) GetTask(ctx context.Context, id string) (domain.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, repo.ErrNotFound
	}
	return task, nil
}

func (m *memoryTasks) UpdateTask(ctx context.Context, task domain.Task) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated++
	m.tasks[task.ID] = task
	return nil
}

func (m *memoryTasks) ListTasks(ctx context.Context, executionID string) ([]domain.Task, error) {
	out := make([]domain.Task, 0)
	for _, task := range m.tasks {
		if task.ExecutionID == executionID {
			out = append(out, task)
		}
	}
	return out, nil
}

// staticDataFlow assigns fixed parameters and counts calls.
type staticDataFlow struct {
	params domain.Metadata
	calls  int
}

func (d *staticDataFlow) PrepareTask(task domain.Task, taskSpec *spec.TaskSpec, upstream []domain.Task, exec domain.Execution) (domain.Task, error) {
	d.calls++
	task.Parameters = d.params.Clone()
	task.InContext = domain.Metadata{}
	return task, nil
}

type fakeHandler struct {
	upstreamCalls int
	paused        int
}

func (h *fakeHandler) UpstreamTasks(ctx context.Context, taskSpec *spec.TaskSpec) ([]domain.Task, error) {
	h.upstreamCalls++
	return nil, nil
}

func (h *fakeHandler) PauseWorkflow(ctx context.Context) error {
	h.paused++
	return nil
}

type fakeResolver struct {
	actions   map[string]domain.ActionDefinition
	workflows map[string]domain.WorkflowDefinition
	scopes    [][3]string
}

func (r *fakeResolver) ResolveAction(ctx context.Context, root, current, name string) (domain.ActionDefinition, error) {
	r.scopes = append(r.scopes, [3]string{root, current, name})
	action, ok := r.actions[name]
	if !ok {
		return domain.ActionDefinition{}, fmt.Errorf("action %q: %w", name, repo.ErrNotFound)
	}
	return action, nil
}

func (r *fakeResolver) ResolveWorkflow(ctx context.Context, root, current, name string) (domain.WorkflowDefinition, error) {
	r.scopes = append(r.scopes, [3]string{root, current, name})
	wf, ok := r.workflows[name]
	if !ok {
		return domain.WorkflowDefinition{}, fmt.Errorf("workflow %q: %w", name, repo.ErrNotFound)
	}
	return wf, nil
}

type actionCall struct {
	TaskID      string
	ActionClass string
	Attributes  map[string]any
	Params      map[string]any
}

type recordingExecutor struct {
	calls []actionCall
}

func (e *recordingExecutor) RunAction(ctx context.Context, taskID, actionClass string, attributes, params map[string]any) error {
	e.calls = append(e.calls, actionCall{TaskID: taskID, ActionClass: actionClass, Attributes: attributes, Params: params})
	return nil
}

type workflowCall struct {
	Name  string
	Input map[string]any
	Opts  rpc.StartOptions
}

type recordingEngine struct {
	calls []workflowCall
}

func (e *recordingEngine) StartWorkflow(ctx context.Context, name string, input map[string]any, opts rpc.StartOptions) error {
	e.calls = append(e.calls, workflowCall{Name: name, Input: input, Opts: opts})
	return nil
}

// statePolicy forces the task into a fixed state.
type statePolicy struct {
	state domain.TaskState
}

func (p statePolicy) Type() string { return "force-state" }

func (p statePolicy) BeforeTaskStart(ctx context.Context, task domain.Task, taskSpec *spec.TaskSpec) (domain.Task, error) {
	task.State = p.state
	return task, nil
}

type recordingScheduler struct {
	taskIDs []string
}

func (s *recordingScheduler) ScheduleTaskRun(ctx context.Context, taskID string, delay time.Duration) error {
	s.taskIDs = append(s.taskIDs, taskID)
	return nil
}

type staticPolicies struct {
	policies []policy.Policy
}

func (b staticPolicies) Build(decls spec.Policies) ([]policy.Policy, error) {
	return b.policies, nil
}

type countingRecorder struct {
	commands map[string]int
	dispatch map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{commands: map[string]int{}, dispatch: map[string]int{}}
}

func (r *countingRecorder) CommandRun(command, result string) { r.commands[command+"/"+result]++ }
func (r *countingRecorder) Dispatched(kind string)           { r.dispatch[kind]++ }

type fixture struct {
	deps     *Deps
	tasks    *memoryTasks
	dataFlow *staticDataFlow
	handler  *fakeHandler
	resolver *fakeResolver
	executor *recordingExecutor
	engine   *recordingEngine
	metrics  *countingRecorder
}

func newFixture(params domain.Metadata) *fixture {
	f := &fixture{
		tasks:    newMemoryTasks(),
		dataFlow: &staticDataFlow{params: params},
		handler:  &fakeHandler{},
		resolver: &fakeResolver{
			actions:   map[string]domain.ActionDefinition{},
			workflows: map[string]domain.WorkflowDefinition{},
		},
		executor: &recordingExecutor{},
		engine:   &recordingEngine{},
		metrics:  newCountingRecorder(),
	}
	f.deps = &Deps{
		Tasks:    f.tasks,
		DataFlow: f.dataFlow,
		Policies: policy.NewBuilder(nil),
		Resolver: f.resolver,
		Evaluate: expr.EvaluateRecursively,
		Executor: f.executor,
		Engine:   f.engine,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  f.metrics,
	}
	return f
}

const parentWorkflowSpec = `
name: parent
tasks:
  t1:
    action: my_action
`

func newExecution() *domain.Execution {
	return &domain.Execution{
		ID:           "exec-1",
		WorkflowName: "wb.parent",
		WorkflowSpec: []byte(parentWorkflowSpec),
		State:        domain.WorkflowStateRunning,
		Context:      domain.Metadata{"env": "test"},
	}
}
