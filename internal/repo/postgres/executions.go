package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/repo"
)

type ExecutionStore struct {
	db DB
}

const (
	insertExecutionQuery = `INSERT INTO workflow_executions (
		execution_id,
		workflow_name,
		workflow_spec,
		state,
		input,
		context,
		start_params,
		created_at,
		updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`

	selectExecutionQuery = `SELECT execution_id, workflow_name, workflow_spec, state, input, context, start_params, created_at, updated_at
	 FROM workflow_executions
	 WHERE execution_id = $1`

	updateExecutionStateQuery = `UPDATE workflow_executions
	 SET state = $2, updated_at = $3
	 WHERE execution_id = $1`
)

func NewExecutionStore(db DB) *ExecutionStore {
	if db == nil {
		return nil
	}
	return &ExecutionStore{db: db}
}

func (s *ExecutionStore) CreateExecution(ctx context.Context, exec domain.Execution) (domain.Execution, error) {
	if s == nil || s.db == nil {
		return domain.Execution{}, fmt.Errorf("execution store not initialized")
	}
	if strings.TrimSpace(exec.ID) == "" {
		exec.ID = uuid.NewString()
	}
	if err := exec.Validate(); err != nil {
		return domain.Execution{}, err
	}
	inputJSON, err := encodeMetadata(exec.Input)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("encode input: %w", err)
	}
	contextJSON, err := encodeMetadata(exec.Context)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("encode context: %w", err)
	}
	startParamsJSON, err := encodeMetadata(exec.StartParams)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("encode start params: %w", err)
	}
	exec.CreatedAt = normalizeTime(exec.CreatedAt)
	exec.UpdatedAt = exec.CreatedAt

	_, err = s.db.ExecContext(
		ctx,
		insertExecutionQuery,
		exec.ID,
		strings.TrimSpace(exec.WorkflowName),
		exec.WorkflowSpec,
		string(exec.State),
		inputJSON,
		contextJSON,
		startParamsJSON,
		exec.CreatedAt,
	)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("insert execution: %w", err)
	}
	return exec, nil
}

func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (domain.Execution, error) {
	if s == nil || s.db == nil {
		return domain.Execution{}, fmt.Errorf("execution store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Execution{}, fmt.Errorf("execution id is required")
	}
	var exec domain.Execution
	var state string
	var inputJSON, contextJSON, startParamsJSON []byte
	row := s.db.QueryRowContext(ctx, selectExecutionQuery, id)
	if err := row.Scan(&exec.ID, &exec.WorkflowName, &exec.WorkflowSpec, &state, &inputJSON, &contextJSON,
		&startParamsJSON, &exec.CreatedAt, &exec.UpdatedAt); err != nil {
		return domain.Execution{}, handleNotFound(err)
	}
	exec.State = domain.NormalizeWorkflowState(state)
	var err error
	if exec.Input, err = decodeMetadata(inputJSON); err != nil {
		return domain.Execution{}, fmt.Errorf("decode input: %w", err)
	}
	if exec.Context, err = decodeMetadata(contextJSON); err != nil {
		return domain.Execution{}, fmt.Errorf("decode context: %w", err)
	}
	if exec.StartParams, err = decodeMetadata(startParamsJSON); err != nil {
		return domain.Execution{}, fmt.Errorf("decode start params: %w", err)
	}
	exec.CreatedAt = exec.CreatedAt.UTC()
	exec.UpdatedAt = exec.UpdatedAt.UTC()
	return exec, nil
}

func (s *ExecutionStore) UpdateExecutionState(ctx context.Context, id string, state domain.WorkflowState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("execution store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("execution id is required")
	}
	if domain.NormalizeWorkflowState(string(state)) == "" {
		return fmt.Errorf("workflow state is invalid: %q", state)
	}
	res, err := s.db.ExecContext(ctx, updateExecutionStateQuery, id, string(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update execution state: %w", err)
	}
	return requireAffected(res, "execution", id)
}

func requireAffected(res sql.Result, entity, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", entity, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, repo.ErrNotFound)
	}
	return nil
}
