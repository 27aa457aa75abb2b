// Package plan defines the task-plan data model: plans, steps, variable
// references, step results, and execution runs.
package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Complexity classifies a plan as emitted by the external planner.
type Complexity string

const (
	ComplexitySimple     Complexity = "simple"
	ComplexityMedium     Complexity = "medium"
	ComplexityComplex    Complexity = "complex"
	ComplexityImpossible Complexity = "impossible"
)

// Valid reports whether c is one of the four known complexity values.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexitySimple, ComplexityMedium, ComplexityComplex, ComplexityImpossible:
		return true
	}
	return false
}

// Step is one tool invocation with typed parameters and declared dependencies.
// Reasoning and ExpectedOutput are advisory planner output carried through for
// audit only; the engine never interprets them.
type Step struct {
	ID             int            `json:"id"`
	Action         string         `json:"action"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Dependencies   []int          `json:"dependencies,omitempty"`
	Reasoning      string         `json:"reasoning,omitempty"`
	ExpectedOutput string         `json:"expected_output,omitempty"`

	// TimeoutSeconds overrides the tool's declared timeout for this step.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Plan is a DAG of steps proposed to satisfy a goal. Step order in Steps is
// advisory; execution order is derived from Dependencies.
type Plan struct {
	Goal       string     `json:"goal"`
	Steps      []Step     `json:"steps"`
	Complexity Complexity `json:"complexity"`

	// Reason is present iff Complexity == impossible and explains the
	// missing capability.
	Reason string `json:"reason,omitempty"`
}

// Step returns the step with the given ID, or nil.
func (p *Plan) Step(id int) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Impossible reports whether the plan is an impossibility rejection.
func (p *Plan) Impossible() bool {
	return p.Complexity == ComplexityImpossible
}

// Actions returns the distinct tool names referenced by the plan, sorted.
func (p *Plan) Actions() []string {
	seen := make(map[string]struct{})
	for _, s := range p.Steps {
		seen[s.Action] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Rejection builds an impossible-plan rejection for the given goal. Missing
// names the tools the catalog lacks; available enumerates what the catalog
// does offer so the planner can retry with a feasible goal.
func Rejection(goal string, missing, available []string) *Plan {
	var b strings.Builder
	fmt.Fprintf(&b, "missing tools: %s", strings.Join(missing, ", "))
	if len(available) > 0 {
		fmt.Fprintf(&b, "; available tools: %s", strings.Join(available, ", "))
	} else {
		b.WriteString("; no tools are registered")
	}
	return &Plan{
		Goal:       goal,
		Steps:      []Step{},
		Complexity: ComplexityImpossible,
		Reason:     b.String(),
	}
}
