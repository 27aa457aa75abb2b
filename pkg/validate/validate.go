package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ormasoftchile/pert/pkg/plan"
	"github.com/ormasoftchile/pert/pkg/tool"
)

// Validate runs the four-phase static analysis on a plan that has already
// passed the Gate. Phases run in order (structural, reference completeness,
// field existence, type compatibility) and short-circuit on the first
// failure. A nil return means the plan is safe to schedule.
func Validate(p *plan.Plan, cat *tool.Catalog) *Error {
	if err := validateStructural(p); err != nil {
		return err
	}
	if p.Impossible() {
		// A well-formed rejection has nothing further to validate.
		return nil
	}
	if err := validateReferences(p); err != nil {
		return err
	}
	if err := validateFields(p, cat); err != nil {
		return err
	}
	return validateTypes(p, cat)
}

// ---------------------------------------------------------------------------
// Phase 1: structural
// ---------------------------------------------------------------------------

func validateStructural(p *plan.Plan) *Error {
	if p.Complexity != "" && !p.Complexity.Valid() {
		return errorf(RuleStructural, "complexity", nil, "unknown complexity %q", p.Complexity)
	}

	if p.Impossible() {
		if len(p.Steps) != 0 {
			return errorf(RuleStructural, "steps", nil,
				"impossible plan must have no steps, got %d", len(p.Steps))
		}
		if p.Reason == "" {
			return errorf(RuleStructural, "reason", nil,
				"impossible plan must carry a reason")
		}
		return nil
	}

	seen := make(map[int]int) // id → index
	for i, s := range p.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if s.ID <= 0 {
			return errorf(RuleStructural, path+".id", []int{s.ID},
				"step ID must be a positive integer, got %d", s.ID)
		}
		if s.Action == "" {
			return errorf(RuleStructural, path+".action", []int{s.ID},
				"step %d has no action", s.ID)
		}
		if prev, ok := seen[s.ID]; ok {
			return errorf(RuleStructural, path+".id", []int{s.ID},
				"duplicate step ID %d (first at steps[%d])", s.ID, prev)
		}
		seen[s.ID] = i
	}

	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				return errorf(RuleStructural, "", []int{s.ID},
					"step %d depends on itself", s.ID)
			}
			if p.Step(dep) == nil {
				return errorf(RuleStructural, "", []int{s.ID},
					"step %d depends on unknown step %d", s.ID, dep)
			}
		}
	}

	if cycle := findCycle(p); cycle != nil {
		parts := make([]string, len(cycle))
		for i, id := range cycle {
			parts[i] = fmt.Sprintf("%d", id)
		}
		return errorf(RuleStructural, "", cycle,
			"dependency cycle: %s", strings.Join(parts, " -> "))
	}
	return nil
}

// findCycle runs DFS with a recursion stack and returns the offending cycle
// as an ordered list of step IDs, closed on the repeated step.
func findCycle(p *plan.Plan) []int {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[int]int, len(p.Steps))
	var stack []int

	var visit func(id int) []int
	visit = func(id int) []int {
		state[id] = inStack
		stack = append(stack, id)
		for _, dep := range p.Step(id).Dependencies {
			switch state[dep] {
			case inStack:
				// Close the cycle from its first occurrence on the stack.
				for i, sid := range stack {
					if sid == dep {
						cycle := append([]int{}, stack[i:]...)
						return append(cycle, dep)
					}
				}
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, s := range p.Steps {
		if state[s.ID] == unvisited {
			if cycle := visit(s.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Phase 2: reference completeness
// ---------------------------------------------------------------------------

// Every variable reference must point at a step that exists in the plan and
// is listed in the referencing step's own dependencies. A reference to an
// existing step that is not a declared dependency is an error: data must
// never be read before it is guaranteed to exist.
func validateReferences(p *plan.Plan) *Error {
	for _, s := range p.Steps {
		deps := make(map[int]struct{}, len(s.Dependencies))
		for _, d := range s.Dependencies {
			deps[d] = struct{}{}
		}
		for _, pr := range plan.Refs(s.Parameters) {
			src := pr.Ref.StepID
			if p.Step(src) == nil {
				return errorf(RuleReference, paramPath(s.ID, pr.Param), []int{s.ID},
					"step %d parameter %q references unknown step %d (field %q)",
					s.ID, pr.Param, src, pr.Ref.Field())
			}
			if _, ok := deps[src]; !ok {
				return errorf(RuleReference, paramPath(s.ID, pr.Param), []int{s.ID, src},
					"step %d parameter %q references step %d field %q without declaring it as a dependency",
					s.ID, pr.Param, src, pr.Ref.Field())
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Phase 3: field existence
// ---------------------------------------------------------------------------

func validateFields(p *plan.Plan, cat *tool.Catalog) *Error {
	for _, s := range p.Steps {
		for _, pr := range plan.Refs(s.Parameters) {
			src := p.Step(pr.Ref.StepID)
			spec, err := cat.Lookup(src.Action)
			if err != nil {
				// The gate already verified every action; reaching this is
				// a pipeline ordering bug.
				return errorf(RuleField, paramPath(s.ID, pr.Param), []int{s.ID}, "%v", err)
			}
			if _, ferr := spec.OutputField(pr.Ref.Path); ferr != nil {
				if _, declared := spec.Outputs[pr.Ref.Field()]; !declared {
					return &Error{
						Rule:    RuleField,
						Path:    paramPath(s.ID, pr.Param),
						StepIDs: []int{s.ID},
						Message: fmt.Sprintf("step %d parameter %q: %v", s.ID, pr.Param, ferr),
						Err: &UnknownOutputFieldError{
							Tool:  spec.Name,
							Field: pr.Ref.Field(),
							Valid: outputNames(spec),
						},
					}
				}
				return errorf(RuleField, paramPath(s.ID, pr.Param), []int{s.ID},
					"step %d parameter %q: %v", s.ID, pr.Param, ferr)
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Phase 4: type compatibility
// ---------------------------------------------------------------------------

// Parameters must exist in the consuming tool's input schema, required
// inputs must be present, and both literal values and resolved reference
// types must satisfy the declared parameter type. Lists never bind to
// scalar parameters and vice versa; structured types must match exactly.
// The validator does not coerce; a tool wanting both a scalar summary and
// a list of results declares two fields.
func validateTypes(p *plan.Plan, cat *tool.Catalog) *Error {
	for _, s := range p.Steps {
		spec, err := cat.Lookup(s.Action)
		if err != nil {
			return errorf(RuleType, "", []int{s.ID}, "%v", err)
		}

		params := make([]string, 0, len(s.Parameters))
		for name := range s.Parameters {
			params = append(params, name)
		}
		sort.Strings(params)

		for _, name := range params {
			if _, ok := spec.Inputs[name]; !ok {
				return errorf(RuleType, paramPath(s.ID, name), []int{s.ID},
					"step %d: tool %q declares no parameter %q", s.ID, spec.Name, name)
			}
		}

		inputs := make([]string, 0, len(spec.Inputs))
		for name := range spec.Inputs {
			inputs = append(inputs, name)
		}
		sort.Strings(inputs)
		for _, name := range inputs {
			if !spec.Inputs[name].Required {
				continue
			}
			if _, ok := s.Parameters[name]; !ok {
				return errorf(RuleType, paramPath(s.ID, name), []int{s.ID},
					"step %d: required parameter %q of tool %q is missing", s.ID, name, spec.Name)
			}
		}

		for _, name := range params {
			val := s.Parameters[name]
			want := spec.Inputs[name].Type
			got, gerr := parameterType(p, cat, val)
			if gerr != nil {
				return errorf(RuleType, paramPath(s.ID, name), []int{s.ID},
					"step %d parameter %q: %v", s.ID, name, gerr)
			}
			if !tool.Compatible(got, want) {
				return errorf(RuleType, paramPath(s.ID, name), []int{s.ID},
					"step %d parameter %q: %s value does not satisfy declared type %s",
					s.ID, name, got, want)
			}
		}
	}
	return nil
}

// parameterType classifies a top-level parameter value. A whole-string
// reference takes the type of the referenced output field; any other value
// is classified literally (a list containing references is still a list).
func parameterType(p *plan.Plan, cat *tool.Catalog, val any) (tool.ValueType, error) {
	if s, ok := val.(string); ok {
		if ref, isRef := plan.ParseRef(s); isRef {
			src := p.Step(ref.StepID)
			spec, err := cat.Lookup(src.Action)
			if err != nil {
				return "", err
			}
			return spec.OutputField(ref.Path)
		}
	}
	return tool.TypeOf(val), nil
}

func outputNames(spec *tool.Spec) []string {
	names := make([]string, 0, len(spec.Outputs))
	for name := range spec.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func paramPath(stepID int, param string) string {
	return fmt.Sprintf("step[%d].parameters.%s", stepID, param)
}
