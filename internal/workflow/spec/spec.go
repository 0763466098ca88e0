// Package spec provides read-only views over parsed workflow, task and
// ad-hoc action definitions.
package spec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	WorkflowTypeDirect  = "direct"
	WorkflowTypeReverse = "reverse"
)

// WorkflowSpec is a parsed workflow definition.
type WorkflowSpec struct {
	Name       string               `json:"name" yaml:"name"`
	Type       string               `json:"type,omitempty" yaml:"type,omitempty"`
	Parameters []string             `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Tasks      map[string]*TaskSpec `json:"tasks" yaml:"tasks"`
}

// TaskSpec is the immutable definition of a single task.
type TaskSpec struct {
	Name       string         `json:"name" yaml:"name"`
	Action     string         `json:"action,omitempty" yaml:"action,omitempty"`
	Workflow   string         `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Requires   Names          `json:"requires,omitempty" yaml:"requires,omitempty"`
	OnComplete Names          `json:"on-complete,omitempty" yaml:"on-complete,omitempty"`
	OnSuccess  Names          `json:"on-success,omitempty" yaml:"on-success,omitempty"`
	OnError    Names          `json:"on-error,omitempty" yaml:"on-error,omitempty"`
	Policies   Policies       `json:"policies,omitempty" yaml:"policies,omitempty"`
}

// ActionSpec is an ad-hoc action wrapping a base action.
type ActionSpec struct {
	Name       string   `json:"name" yaml:"name"`
	Base       string   `json:"base" yaml:"base"`
	Parameters []string `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	baseParameters map[string]any
	baseDeclared   bool
}

// PolicySpec is one policy declaration attached to a task. Value holds the
// scalar form (`wait-before: 2`); Options holds the mapping form.
type PolicySpec struct {
	Type    string
	Value   any
	Options map[string]any
}

// Names is a list of task names. It decodes from a scalar, a sequence or a
// mapping whose keys are task names.
type Names []string

// Policies keeps declaration order from either the list or the mapping form.
type Policies []PolicySpec

func (w *WorkflowSpec) Validate() error {
	if w == nil {
		return errors.New("workflow spec is required")
	}
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("workflow.name is required")
	}
	switch w.Type {
	case WorkflowTypeDirect, WorkflowTypeReverse:
	default:
		return fmt.Errorf("workflow.type unsupported: %q", w.Type)
	}
	for _, name := range w.TaskNames() {
		if err := w.Tasks[name].Validate(); err != nil {
			return fmt.Errorf("workflow.tasks[%s]: %w", name, err)
		}
	}
	return nil
}

// HasParameter reports whether name is a declared workflow parameter.
func (w *WorkflowSpec) HasParameter(name string) bool {
	for _, p := range w.Parameters {
		if p == name {
			return true
		}
	}
	return false
}

func (w *WorkflowSpec) Task(name string) (*TaskSpec, bool) {
	t, ok := w.Tasks[name]
	return t, ok
}

// TaskNames returns task names in lexical order.
func (w *WorkflowSpec) TaskNames() []string {
	names := make([]string, 0, len(w.Tasks))
	for name := range w.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *TaskSpec) Validate() error {
	if t == nil {
		return errors.New("task spec is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("task.name is required")
	}
	hasAction := strings.TrimSpace(t.Action) != ""
	hasWorkflow := strings.TrimSpace(t.Workflow) != ""
	if hasAction == hasWorkflow {
		return fmt.Errorf("task %q must declare exactly one of action or workflow", t.Name)
	}
	for i, p := range t.Policies {
		if strings.TrimSpace(p.Type) == "" {
			return fmt.Errorf("task %q policies[%d].type is required", t.Name, i)
		}
	}
	return nil
}

// Transitions returns every task this task may lead to, in declaration order
// and without duplicates.
func (t *TaskSpec) Transitions() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(t.OnComplete)+len(t.OnSuccess)+len(t.OnError))
	for _, group := range []Names{t.OnComplete, t.OnSuccess, t.OnError} {
		for _, name := range group {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// Marshal returns the snapshot stored on the task record.
func (t *TaskSpec) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

func (a *ActionSpec) Validate() error {
	if a == nil {
		return errors.New("action spec is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("action.name is required")
	}
	if strings.TrimSpace(a.Base) == "" {
		return fmt.Errorf("action %q base is required", a.Name)
	}
	return nil
}

// BaseParameters returns the base parameter expressions and whether the action
// declared them at all. An empty mapping still counts as declared.
func (a *ActionSpec) BaseParameters() (map[string]any, bool) {
	return a.baseParameters, a.baseDeclared
}

func (p PolicySpec) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Options)+2)
	for k, v := range p.Options {
		out[k] = v
	}
	out["type"] = p.Type
	if p.Value != nil {
		out["value"] = p.Value
	}
	return json.Marshal(out)
}

// Option returns a named option, falling back to the scalar value.
func (p PolicySpec) Option(key string) (any, bool) {
	if v, ok := p.Options[key]; ok {
		return v, true
	}
	if p.Value != nil {
		return p.Value, true
	}
	return nil, false
}
