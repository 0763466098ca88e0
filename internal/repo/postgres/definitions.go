package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-flow/internal/domain"
)

type DefinitionStore struct {
	db DB
}

const (
	selectActionByNameQuery = `SELECT action_id, name, action_class, attributes, spec
	 FROM action_definitions
	 WHERE name = $1`

	selectWorkflowByNameQuery = `SELECT workflow_id, name, spec
	 FROM workflow_definitions
	 WHERE name = $1`
)

func NewDefinitionStore(db DB) *DefinitionStore {
	if db == nil {
		return nil
	}
	return &DefinitionStore{db: db}
}

func (s *DefinitionStore) GetAction(ctx context.Context, name string) (domain.ActionDefinition, error) {
	if s == nil || s.db == nil {
		return domain.ActionDefinition{}, fmt.Errorf("definition store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ActionDefinition{}, fmt.Errorf("action name is required")
	}
	var action domain.ActionDefinition
	var actionClass sql.NullString
	var attributesJSON []byte
	row := s.db.QueryRowContext(ctx, selectActionByNameQuery, name)
	if err := row.Scan(&action.ID, &action.Name, &actionClass, &attributesJSON, &action.Spec); err != nil {
		return domain.ActionDefinition{}, handleNotFound(err)
	}
	action.ActionClass = strings.TrimSpace(actionClass.String)
	attributes, err := decodeMetadata(attributesJSON)
	if err != nil {
		return domain.ActionDefinition{}, fmt.Errorf("decode attributes: %w", err)
	}
	action.Attributes = attributes
	return action, nil
}

func (s *DefinitionStore) GetWorkflow(ctx context.Context, name string) (domain.WorkflowDefinition, error) {
	if s == nil || s.db == nil {
		return domain.WorkflowDefinition{}, fmt.Errorf("definition store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.WorkflowDefinition{}, fmt.Errorf("workflow name is required")
	}
	var wf domain.WorkflowDefinition
	row := s.db.QueryRowContext(ctx, selectWorkflowByNameQuery, name)
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Spec); err != nil {
		return domain.WorkflowDefinition{}, handleNotFound(err)
	}
	return wf, nil
}
