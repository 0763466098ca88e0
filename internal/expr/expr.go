// Package expr evaluates `$`-rooted path expressions embedded in parameter
// trees. Paths are executed as JMESPath queries against the data context.
package expr

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/jmespath/go-jmespath"
)

var inlinePattern = regexp.MustCompile(`\{\s*(\$[^{}]*?)\s*\}`)

// IsExpression reports whether s is a whole-value expression such as `$.a.b`.
func IsExpression(s string) bool {
	s = strings.TrimSpace(s)
	return s == "$" || strings.HasPrefix(s, "$.")
}

// Evaluate runs a single expression against ctx.
func Evaluate(expression string, ctx map[string]any) (any, error) {
	expression = strings.TrimSpace(expression)
	if !IsExpression(expression) {
		return nil, fmt.Errorf("not an expression: %q", expression)
	}
	data := normalize(ctx)
	if expression == "$" {
		return data, nil
	}
	query := strings.TrimPrefix(expression, "$.")
	result, err := jmespath.Search(query, data)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expression, err)
	}
	return result, nil
}

// EvaluateRecursively walks maps and slices in tree and replaces every
// expression string with its value. Strings with inline `{$.path}` segments
// are rendered; a string made of a single inline segment keeps the raw value.
func EvaluateRecursively(tree any, ctx map[string]any) (any, error) {
	switch v := tree.(type) {
	case string:
		return evaluateString(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			evaluated, err := EvaluateRecursively(item, ctx)
			if err != nil {
				return nil, err
			}
			out[key] = evaluated
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			evaluated, err := EvaluateRecursively(item, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, evaluated)
		}
		return out, nil
	default:
		return tree, nil
	}
}

// EvaluateMap is EvaluateRecursively for parameter mappings.
func EvaluateMap(params map[string]any, ctx map[string]any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out, err := EvaluateRecursively(params, ctx)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func evaluateString(s string, ctx map[string]any) (any, error) {
	if IsExpression(s) {
		return Evaluate(s, ctx)
	}
	matches := inlinePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return Evaluate(s[matches[0][2]:matches[0][3]], ctx)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		value, err := Evaluate(s[m[2]:m[3]], ctx)
		if err != nil {
			return nil, err
		}
		if value != nil {
			b.WriteString(fmt.Sprint(value))
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// normalize rewrites named map and slice types into the plain shapes the
// JMESPath interpreter understands.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[key] = normalize(item)
		}
		return out
	case []any:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, normalize(item))
		}
		return out
	case []string:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, item)
		}
		return out
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]interface{}, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = normalize(iter.Value().Interface())
			}
			return out
		}
		return value
	}
}
