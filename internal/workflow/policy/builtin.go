package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/workflow/spec"
)

const waitBeforeContextKey = "wait_before_policy"

// WaitBefore delays the first start of a task. On re-entry the recorded skip
// flag lets the task run. The re-run is scheduled from AfterTaskStored so a
// task whose DELAYED state failed to persist is never resumed.
type WaitBefore struct {
	Delay     int
	scheduler Scheduler
}

func newWaitBefore(b *Builder, decl spec.PolicySpec) (Policy, error) {
	delay, _, err := intOption(decl, "delay")
	if err != nil {
		return nil, err
	}
	if delay < 0 {
		return nil, errors.New("delay must be >= 0")
	}
	return &WaitBefore{Delay: delay, scheduler: b.scheduler}, nil
}

func (p *WaitBefore) Type() string { return TypeWaitBefore }

func (p *WaitBefore) BeforeTaskStart(ctx context.Context, task domain.Task, taskSpec *spec.TaskSpec) (domain.Task, error) {
	if p.Delay <= 0 {
		return task, nil
	}
	runtime, state := policyContext(task, waitBeforeContextKey)
	if skip, _ := state["skip"].(bool); skip {
		task.RuntimeContext = runtime
		task.State = domain.TaskStateRunning
		return task, nil
	}
	state["skip"] = true
	state["delay"] = p.Delay
	task.RuntimeContext = runtime
	task.State = domain.TaskStateDelayed
	return task, nil
}

func (p *WaitBefore) AfterTaskStored(ctx context.Context, task domain.Task) error {
	if p.Delay <= 0 || p.scheduler == nil || task.State != domain.TaskStateDelayed {
		return nil
	}
	if err := p.scheduler.ScheduleTaskRun(ctx, task.ID, time.Duration(p.Delay)*time.Second); err != nil {
		return fmt.Errorf("schedule delayed task %s: %w", task.ID, err)
	}
	return nil
}

// PauseBefore holds a task in IDLE until it is resumed externally.
type PauseBefore struct {
	Enabled bool
}

func newPauseBefore(_ *Builder, decl spec.PolicySpec) (Policy, error) {
	enabled, err := boolOption(decl, "enabled")
	if err != nil {
		return nil, err
	}
	return &PauseBefore{Enabled: enabled}, nil
}

func (p *PauseBefore) Type() string { return TypePauseBefore }

func (p *PauseBefore) BeforeTaskStart(_ context.Context, task domain.Task, _ *spec.TaskSpec) (domain.Task, error) {
	if p.Enabled {
		task.State = domain.TaskStateIdle
	}
	return task, nil
}

// Retry only validates its options here; retries happen after completion.
type Retry struct {
	Count int
	Delay int
}

func newRetry(_ *Builder, decl spec.PolicySpec) (Policy, error) {
	count, _, err := intOption(spec.PolicySpec{Options: decl.Options}, "count")
	if err != nil {
		return nil, err
	}
	delay, _, err := intOption(spec.PolicySpec{Options: decl.Options}, "delay")
	if err != nil {
		return nil, err
	}
	if count < 0 || delay < 0 {
		return nil, errors.New("count and delay must be >= 0")
	}
	return &Retry{Count: count, Delay: delay}, nil
}

func (p *Retry) Type() string { return TypeRetry }

func (p *Retry) BeforeTaskStart(_ context.Context, task domain.Task, _ *spec.TaskSpec) (domain.Task, error) {
	return task, nil
}

// Timeout only validates its options here.
type Timeout struct {
	Seconds int
}

func newTimeout(_ *Builder, decl spec.PolicySpec) (Policy, error) {
	seconds, ok, err := intOption(decl, "seconds")
	if err != nil {
		return nil, err
	}
	if !ok || seconds <= 0 {
		return nil, errors.New("timeout must be > 0")
	}
	return &Timeout{Seconds: seconds}, nil
}

func (p *Timeout) Type() string { return TypeTimeout }

func (p *Timeout) BeforeTaskStart(_ context.Context, task domain.Task, _ *spec.TaskSpec) (domain.Task, error) {
	return task, nil
}
