package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/animus-flow/internal/domain"
)

type TaskStore struct {
	db DB
}

const (
	insertTaskQuery = `INSERT INTO workflow_tasks (
		task_id,
		execution_id,
		name,
		state,
		spec,
		parameters,
		in_context,
		output,
		runtime_context,
		created_at,
		updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)`

	selectTaskQuery = `SELECT task_id, execution_id, name, state, spec, parameters, in_context, output, runtime_context, created_at, updated_at
	 FROM workflow_tasks
	 WHERE task_id = $1`

	listTasksByExecutionQuery = `SELECT task_id, execution_id, name, state, spec, parameters, in_context, output, runtime_context, created_at, updated_at
	 FROM workflow_tasks
	 WHERE execution_id = $1
	 ORDER BY created_at ASC, name ASC`

	updateTaskQuery = `UPDATE workflow_tasks
	 SET state = $2, parameters = $3, in_context = $4, output = $5, runtime_context = $6, updated_at = $7
	 WHERE task_id = $1`
)

func NewTaskStore(db DB) *TaskStore {
	if db == nil {
		return nil
	}
	return &TaskStore{db: db}
}

func (s *TaskStore) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if s == nil || s.db == nil {
		return domain.Task{}, fmt.Errorf("task store not initialized")
	}
	if err := task.Validate(); err != nil {
		return domain.Task{}, err
	}
	if strings.TrimSpace(task.ID) == "" {
		task.ID = uuid.NewString()
	}
	task.CreatedAt = normalizeTime(task.CreatedAt)
	task.UpdatedAt = task.CreatedAt

	encoded, err := encodeTaskFields(task)
	if err != nil {
		return domain.Task{}, err
	}
	_, err = s.db.ExecContext(
		ctx,
		insertTaskQuery,
		task.ID,
		strings.TrimSpace(task.ExecutionID),
		strings.TrimSpace(task.Name),
		string(task.State),
		task.Spec,
		encoded.parameters,
		encoded.inContext,
		encoded.output,
		encoded.runtimeContext,
		task.CreatedAt,
	)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

func (s *TaskStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	if s == nil || s.db == nil {
		return domain.Task{}, fmt.Errorf("task store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Task{}, fmt.Errorf("task id is required")
	}
	return scanTask(s.db.QueryRowContext(ctx, selectTaskQuery, id))
}

// UpdateTask writes the mutable fields of a task. Identity, execution
// back-reference and spec snapshot are never rewritten.
func (s *TaskStore) UpdateTask(ctx context.Context, task domain.Task) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("task store not initialized")
	}
	id := strings.TrimSpace(task.ID)
	if id == "" {
		return fmt.Errorf("task id is required")
	}
	if domain.NormalizeTaskState(string(task.State)) == "" {
		return fmt.Errorf("task state is invalid")
	}
	encoded, err := encodeTaskFields(task)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		updateTaskQuery,
		id,
		string(task.State),
		encoded.parameters,
		encoded.inContext,
		encoded.output,
		encoded.runtimeContext,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireAffected(res, "task", id)
}

func (s *TaskStore) ListTasks(ctx context.Context, executionID string) ([]domain.Task, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("task store not initialized")
	}
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return nil, fmt.Errorf("execution id is required")
	}
	rows, err := s.db.QueryContext(ctx, listTasksByExecutionQuery, executionID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

type taskFields struct {
	parameters     []byte
	inContext      []byte
	output         []byte
	runtimeContext []byte
}

func encodeTaskFields(task domain.Task) (taskFields, error) {
	var out taskFields
	var err error
	if out.parameters, err = encodeNullableMetadata(task.Parameters); err != nil {
		return taskFields{}, fmt.Errorf("encode parameters: %w", err)
	}
	if out.inContext, err = encodeNullableMetadata(task.InContext); err != nil {
		return taskFields{}, fmt.Errorf("encode in_context: %w", err)
	}
	if out.output, err = encodeNullableMetadata(task.Output); err != nil {
		return taskFields{}, fmt.Errorf("encode output: %w", err)
	}
	if out.runtimeContext, err = encodeNullableMetadata(task.RuntimeContext); err != nil {
		return taskFields{}, fmt.Errorf("encode runtime_context: %w", err)
	}
	return out, nil
}

func scanTask(scanner rowScanner) (domain.Task, error) {
	var task domain.Task
	var state string
	var parameters, inContext, output, runtimeContext []byte
	if err := scanner.Scan(
		&task.ID,
		&task.ExecutionID,
		&task.Name,
		&state,
		&task.Spec,
		&parameters,
		&inContext,
		&output,
		&runtimeContext,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return domain.Task{}, handleNotFound(err)
	}
	task.State = domain.NormalizeTaskState(state)
	var err error
	if task.Parameters, err = decodeMetadata(parameters); err != nil {
		return domain.Task{}, fmt.Errorf("decode parameters: %w", err)
	}
	if task.InContext, err = decodeMetadata(inContext); err != nil {
		return domain.Task{}, fmt.Errorf("decode in_context: %w", err)
	}
	if task.Output, err = decodeMetadata(output); err != nil {
		return domain.Task{}, fmt.Errorf("decode output: %w", err)
	}
	if task.RuntimeContext, err = decodeMetadata(runtimeContext); err != nil {
		return domain.Task{}, fmt.Errorf("decode runtime_context: %w", err)
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return task, nil
}
