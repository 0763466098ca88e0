// Package policy builds task policies from their declarations. Only the
// before-start hook is modeled here.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/workflow/spec"
)

const (
	TypeWaitBefore  = "wait-before"
	TypePauseBefore = "pause-before"
	TypeRetry       = "retry"
	TypeTimeout     = "timeout"
)

var ErrUnknownPolicy = errors.New("unknown policy")

// Policy intercepts a task before it is dispatched. BeforeTaskStart returns
// the task to continue with; it may move the task out of RUNNING.
type Policy interface {
	Type() string
	BeforeTaskStart(ctx context.Context, task domain.Task, taskSpec *spec.TaskSpec) (domain.Task, error)
}

// StoredHook is implemented by policies with side effects that depend on the
// task state they wrote. AfterTaskStored runs only once that state is persisted.
type StoredHook interface {
	AfterTaskStored(ctx context.Context, task domain.Task) error
}

// Scheduler re-runs an existing task after a delay.
type Scheduler interface {
	ScheduleTaskRun(ctx context.Context, taskID string, delay time.Duration) error
}

type factory func(b *Builder, decl spec.PolicySpec) (Policy, error)

var factories = map[string]factory{
	TypeWaitBefore:  newWaitBefore,
	TypePauseBefore: newPauseBefore,
	TypeRetry:       newRetry,
	TypeTimeout:     newTimeout,
}

type Builder struct {
	scheduler Scheduler
}

// NewBuilder returns a Builder. scheduler may be nil, in which case delayed
// tasks are left for an external driver to resume.
func NewBuilder(scheduler Scheduler) *Builder {
	return &Builder{scheduler: scheduler}
}

// Build returns policies in declaration order.
func (b *Builder) Build(decls spec.Policies) ([]Policy, error) {
	out := make([]Policy, 0, len(decls))
	for i, decl := range decls {
		name := strings.ToLower(strings.TrimSpace(decl.Type))
		fn, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("policies[%d] %q: %w", i, decl.Type, ErrUnknownPolicy)
		}
		p, err := fn(b, decl)
		if err != nil {
			return nil, fmt.Errorf("policies[%d] %s: %w", i, name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func intOption(decl spec.PolicySpec, key string) (int, bool, error) {
	raw, ok := decl.Option(key)
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("%s must be an integer, got %T", key, raw)
	}
}

func boolOption(decl spec.PolicySpec, key string) (bool, error) {
	raw, ok := decl.Option(key)
	if !ok || raw == nil {
		return false, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%s must be a boolean, got %T", key, raw)
	}
}

// policyContext returns a copy of the runtime context and the nested mapping
// reserved for key.
func policyContext(task domain.Task, key string) (domain.Metadata, map[string]any) {
	runtime := task.RuntimeContext.Clone()
	nested := map[string]any{}
	switch existing := runtime[key].(type) {
	case map[string]any:
		for k, v := range existing {
			nested[k] = v
		}
	case domain.Metadata:
		for k, v := range existing {
			nested[k] = v
		}
	}
	runtime[key] = nested
	return runtime, nested
}
