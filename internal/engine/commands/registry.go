package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/workflow/spec"
)

type Kind string

const (
	KindRunTask  Kind = "run_task"
	KindFail     Kind = "fail"
	KindSucceed  Kind = "succeed"
	KindPause    Kind = "pause"
	KindRollback Kind = "rollback"
)

var ErrUnknownCommand = errors.New("unknown command")

// registry maps command names found in external declarations to kinds.
// It is read-only after package initialization.
var registry = map[string]Kind{
	"run_task": KindRunTask,
	"fail":     KindFail,
	"succeed":  KindSucceed,
	"pause":    KindPause,
	// TODO: "rollback" resolves to pause, leaving RollbackWorkflow unreachable
	// by name. Route it to KindRollback once rollback semantics are agreed.
	"rollback": KindPause,
}

// Lookup returns the kind registered for name.
func Lookup(name string) (Kind, bool) {
	kind, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return kind, ok
}

// Names returns the registered command names in lexical order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New builds a command of the given kind. taskSpec and task are only used by
// KindRunTask; task may be nil for a task that has not been created yet.
func New(kind Kind, deps *Deps, taskSpec *spec.TaskSpec, task *domain.Task) (Command, error) {
	switch kind {
	case KindRunTask:
		if taskSpec == nil {
			return nil, errors.New("run_task requires a task spec")
		}
		return NewRunTask(deps, taskSpec, task), nil
	case KindFail:
		return &FailWorkflow{deps: deps}, nil
	case KindSucceed:
		return &SucceedWorkflow{deps: deps}, nil
	case KindPause:
		return &PauseWorkflow{deps: deps}, nil
	case KindRollback:
		return &RollbackWorkflow{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}
}

// Parse resolves a command name through the registry and builds it.
func Parse(name string, deps *Deps, taskSpec *spec.TaskSpec, task *domain.Task) (Command, error) {
	kind, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return New(kind, deps, taskSpec, task)
}
