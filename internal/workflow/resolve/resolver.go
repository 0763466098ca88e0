// Package resolve maps symbolic action and workflow names to stored
// definitions, preferring workbook-local names over global ones.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/repo"
)

type Resolver struct {
	defs repo.DefinitionRepository
}

func New(defs repo.DefinitionRepository) *Resolver {
	return &Resolver{defs: defs}
}

// ResolveAction looks up name within the workbook of rootWorkflowName first,
// then in the global scope.
func (r *Resolver) ResolveAction(ctx context.Context, rootWorkflowName, currentWorkflowName, name string) (domain.ActionDefinition, error) {
	if r == nil || r.defs == nil {
		return domain.ActionDefinition{}, errors.New("definition repository is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ActionDefinition{}, errors.New("action name is required")
	}
	for _, candidate := range candidates(rootWorkflowName, currentWorkflowName, name) {
		action, err := r.defs.GetAction(ctx, candidate)
		if err == nil {
			return action, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.ActionDefinition{}, fmt.Errorf("load action %q: %w", candidate, err)
		}
	}
	return domain.ActionDefinition{}, fmt.Errorf("action %q: %w", name, repo.ErrNotFound)
}

// ResolveWorkflow follows the same scoping rules as ResolveAction.
func (r *Resolver) ResolveWorkflow(ctx context.Context, rootWorkflowName, currentWorkflowName, name string) (domain.WorkflowDefinition, error) {
	if r == nil || r.defs == nil {
		return domain.WorkflowDefinition{}, errors.New("definition repository is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.WorkflowDefinition{}, errors.New("workflow name is required")
	}
	for _, candidate := range candidates(rootWorkflowName, currentWorkflowName, name) {
		wf, err := r.defs.GetWorkflow(ctx, candidate)
		if err == nil {
			return wf, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.WorkflowDefinition{}, fmt.Errorf("load workflow %q: %w", candidate, err)
		}
	}
	return domain.WorkflowDefinition{}, fmt.Errorf("workflow %q: %w", name, repo.ErrNotFound)
}

// WorkbookName extracts the workbook prefix from a qualified workflow name
// such as `wb.wf` given the declared workflow name `wf`. Empty when the
// workflow is global.
func WorkbookName(rootWorkflowName, currentWorkflowName string) string {
	root := strings.TrimSpace(rootWorkflowName)
	current := strings.TrimSpace(currentWorkflowName)
	if root == "" || current == "" || root == current {
		return ""
	}
	prefix, ok := strings.CutSuffix(root, "."+current)
	if !ok {
		return ""
	}
	return prefix
}

func candidates(rootWorkflowName, currentWorkflowName, name string) []string {
	if wb := WorkbookName(rootWorkflowName, currentWorkflowName); wb != "" {
		return []string{wb + "." + name, name}
	}
	return []string{name}
}
