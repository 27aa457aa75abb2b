// Package resolve substitutes $step placeholders with values from completed
// step results. Resolution is pure and idempotent: the same reference against
// the same results snapshot always yields the same value.
package resolve

import (
	"fmt"
	"strconv"

	"github.com/ormasoftchile/pert/pkg/plan"
)

// InvariantError reports a reference to a step that has not published a
// successful result. The executor's scheduling guarantee makes this
// unreachable for validated plans; if it surfaces, the run is aborted and
// logged as an engine defect, not shown as a user-facing failure.
type InvariantError struct {
	Ref    plan.Ref
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("unresolved reference %s: %s", e.Ref, e.Reason)
}

// Value resolves a single reference against a results snapshot. A bare list
// field yields the whole list; a numeric path segment indexes an element;
// a named segment descends into a dict.
func Value(ref plan.Ref, results map[int]*plan.StepResult) (any, error) {
	src, ok := results[ref.StepID]
	if !ok {
		return nil, &InvariantError{Ref: ref, Reason: "source step has no published result"}
	}
	if src.Status != plan.StatusSucceeded {
		return nil, &InvariantError{Ref: ref, Reason: fmt.Sprintf("source step is %s, not succeeded", src.Status)}
	}

	var cur any = src.Output
	for _, seg := range ref.Path {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, &InvariantError{Ref: ref, Reason: fmt.Sprintf("field %q absent from output", seg)}
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, &InvariantError{Ref: ref, Reason: fmt.Sprintf("segment %q is not a list index", seg)}
			}
			if idx < 0 || idx >= len(node) {
				return nil, &InvariantError{Ref: ref, Reason: fmt.Sprintf("index %d out of range (len %d)", idx, len(node))}
			}
			cur = node[idx]
		default:
			return nil, &InvariantError{Ref: ref, Reason: fmt.Sprintf("segment %q addresses a scalar", seg)}
		}
	}
	return cur, nil
}

// Parameters returns a deep copy of params with every whole-string reference
// replaced by its resolved value. The input map is never mutated.
func Parameters(params map[string]any, results map[int]*plan.StepResult) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out, err := resolveAny(params, results)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func resolveAny(v any, results map[int]*plan.StepResult) (any, error) {
	switch val := v.(type) {
	case string:
		if ref, ok := plan.ParseRef(val); ok {
			return Value(ref, results)
		}
		return val, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := resolveAny(item, results)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := resolveAny(item, results)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return val, nil
	}
}
