package domain

// ActionDefinition is a stored action. Built-in actions carry ActionClass;
// ad-hoc actions carry a serialized spec naming their base action.
type ActionDefinition struct {
	ID          string
	Name        string
	ActionClass string
	Attributes  Metadata
	Spec        []byte
}

func (a ActionDefinition) IsAdHoc() bool {
	return len(a.Spec) > 0
}

// WorkflowDefinition is a stored workflow that nested tasks may start.
type WorkflowDefinition struct {
	ID   string
	Name string
	Spec []byte
}
