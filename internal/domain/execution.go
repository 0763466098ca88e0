package domain

import (
	"errors"
	"strings"
	"time"
)

// Execution is one running instance of a workflow.
type Execution struct {
	ID           string
	WorkflowName string
	WorkflowSpec []byte
	State        WorkflowState
	Input        Metadata
	Context      Metadata
	StartParams  Metadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (e Execution) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("execution id is required")
	}
	if strings.TrimSpace(e.WorkflowName) == "" {
		return errors.New("workflow name is required")
	}
	if len(e.WorkflowSpec) == 0 {
		return errors.New("workflow spec is required")
	}
	if NormalizeWorkflowState(string(e.State)) == "" {
		return errors.New("workflow state is invalid")
	}
	return nil
}

// ParentTaskID returns the parent task linkage recorded at start, if any.
func (e Execution) ParentTaskID() string {
	if e.StartParams == nil {
		return ""
	}
	id, _ := e.StartParams["parent_task_id"].(string)
	return id
}
