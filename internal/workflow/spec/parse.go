package spec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseWorkflow decodes a serialized workflow spec. JSON input is accepted
// since it is a YAML subset.
func ParseWorkflow(input []byte) (*WorkflowSpec, error) {
	var wf WorkflowSpec
	if err := yaml.Unmarshal(input, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow spec: %w", err)
	}
	if wf.Type == "" {
		wf.Type = WorkflowTypeDirect
	}
	for name, task := range wf.Tasks {
		if task == nil {
			task = &TaskSpec{}
			wf.Tasks[name] = task
		}
		if task.Name == "" {
			task.Name = name
		}
		if err := task.normalize(); err != nil {
			return nil, err
		}
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}

// ParseTask decodes a single task spec, such as a task record snapshot.
func ParseTask(input []byte) (*TaskSpec, error) {
	var task TaskSpec
	if err := yaml.Unmarshal(input, &task); err != nil {
		return nil, fmt.Errorf("decode task spec: %w", err)
	}
	if err := task.normalize(); err != nil {
		return nil, err
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return &task, nil
}

type actionPayload struct {
	Name           string     `yaml:"name"`
	Base           string     `yaml:"base"`
	Parameters     []string   `yaml:"parameters"`
	BaseParameters *yaml.Node `yaml:"base-parameters"`
}

// ParseAction decodes an ad-hoc action spec.
func ParseAction(input []byte) (*ActionSpec, error) {
	var payload actionPayload
	if err := yaml.Unmarshal(input, &payload); err != nil {
		return nil, fmt.Errorf("decode action spec: %w", err)
	}
	action := &ActionSpec{
		Name:       payload.Name,
		Base:       payload.Base,
		Parameters: payload.Parameters,
	}
	if node := payload.BaseParameters; node != nil && node.Tag != "!!null" {
		if node.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("action %q base-parameters must be a mapping", payload.Name)
		}
		params := map[string]any{}
		if err := node.Decode(&params); err != nil {
			return nil, fmt.Errorf("decode action base-parameters: %w", err)
		}
		if _, err := stringKeys(params); err != nil {
			return nil, fmt.Errorf("action %q base-parameters: %w", payload.Name, err)
		}
		action.baseParameters = params
		action.baseDeclared = true
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}

func (n *Names) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" || value.Value == "" {
			*n = nil
			return nil
		}
		*n = Names{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make(Names, 0, len(value.Content))
		for _, item := range value.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				out = append(out, item.Value)
			case yaml.MappingNode:
				for i := 0; i < len(item.Content); i += 2 {
					out = append(out, item.Content[i].Value)
				}
			default:
				return fmt.Errorf("line %d: unsupported task reference", item.Line)
			}
		}
		*n = out
		return nil
	case yaml.MappingNode:
		out := make(Names, 0, len(value.Content)/2)
		for i := 0; i < len(value.Content); i += 2 {
			out = append(out, value.Content[i].Value)
		}
		*n = out
		return nil
	default:
		return fmt.Errorf("line %d: unsupported task reference list", value.Line)
	}
}

func (p *Policies) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*p = nil
			return nil
		}
		return fmt.Errorf("line %d: policies must be a list or mapping", value.Line)
	case yaml.MappingNode:
		out := make(Policies, 0, len(value.Content)/2)
		for i := 0; i < len(value.Content); i += 2 {
			policy, err := decodePolicyValue(value.Content[i].Value, value.Content[i+1])
			if err != nil {
				return err
			}
			out = append(out, policy)
		}
		*p = out
		return nil
	case yaml.SequenceNode:
		out := make(Policies, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: policy entry must be a mapping", item.Line)
			}
			fields := map[string]any{}
			if err := item.Decode(&fields); err != nil {
				return fmt.Errorf("line %d: decode policy: %w", item.Line, err)
			}
			policy := PolicySpec{Options: map[string]any{}}
			for k, v := range fields {
				switch k {
				case "type":
					policy.Type, _ = v.(string)
				case "value":
					policy.Value = v
				default:
					policy.Options[k] = v
				}
			}
			out = append(out, policy)
		}
		*p = out
		return nil
	default:
		return fmt.Errorf("line %d: policies must be a list or mapping", value.Line)
	}
}

func decodePolicyValue(policyType string, node *yaml.Node) (PolicySpec, error) {
	policy := PolicySpec{Type: policyType}
	if node.Kind == yaml.MappingNode {
		opts := map[string]any{}
		if err := node.Decode(&opts); err != nil {
			return PolicySpec{}, fmt.Errorf("line %d: decode policy %s: %w", node.Line, policyType, err)
		}
		policy.Options = opts
		return policy, nil
	}
	var value any
	if err := node.Decode(&value); err != nil {
		return PolicySpec{}, fmt.Errorf("line %d: decode policy %s: %w", node.Line, policyType, err)
	}
	policy.Value = value
	return policy, nil
}

// normalize rewrites nested mappings decoded with non-string keys so the
// task can be evaluated and snapshotted as JSON.
func (t *TaskSpec) normalize() error {
	if _, err := stringKeys(t.Parameters); err != nil {
		return fmt.Errorf("task %q parameters: %w", t.Name, err)
	}
	for i := range t.Policies {
		value, err := stringKeys(t.Policies[i].Value)
		if err != nil {
			return fmt.Errorf("task %q policies[%d]: %w", t.Name, i, err)
		}
		t.Policies[i].Value = value
		if _, err := stringKeys(t.Policies[i].Options); err != nil {
			return fmt.Errorf("task %q policies[%d]: %w", t.Name, i, err)
		}
	}
	return nil
}

// stringKeys converts yaml mappings with scalar non-string keys (`1: foo`)
// into string-keyed maps. String-keyed maps are rewritten in place.
func stringKeys(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			converted, err := stringKeys(item)
			if err != nil {
				return nil, err
			}
			t[k] = converted
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			if k == nil {
				return nil, fmt.Errorf("mapping key must not be null")
			}
			key := fmt.Sprint(k)
			if _, dup := out[key]; dup {
				return nil, fmt.Errorf("mapping key %q is duplicated", key)
			}
			converted, err := stringKeys(item)
			if err != nil {
				return nil, err
			}
			out[key] = converted
		}
		return out, nil
	case []any:
		for i, item := range t {
			converted, err := stringKeys(item)
			if err != nil {
				return nil, err
			}
			t[i] = converted
		}
		return t, nil
	default:
		return v, nil
	}
}
