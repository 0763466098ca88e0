package domain

import (
	"errors"
	"strings"
	"time"
)

// Task is one node's execution instance within an Execution.
// Nil metadata fields are stored as SQL NULL.
type Task struct {
	ID             string
	ExecutionID    string
	Name           string
	State          TaskState
	Spec           []byte
	Parameters     Metadata
	InContext      Metadata
	Output         Metadata
	RuntimeContext Metadata
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ExecutionID) == "" {
		return errors.New("execution id is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("task name is required")
	}
	if NormalizeTaskState(string(t.State)) == "" {
		return errors.New("task state is invalid")
	}
	return nil
}
