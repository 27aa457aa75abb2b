// Package validate implements the pre-execution pipeline: capability gate,
// semantic (JSON Schema) checks, and the four-phase plan validator.
package validate

import (
	"fmt"
	"strings"
)

// Rule names the validator phase that rejected a plan.
const (
	RuleStructural = "structural"
	RuleReference  = "reference"
	RuleField      = "field"
	RuleType       = "type"
	RuleSemantic   = "semantic"
)

// Error is a structured plan validation failure: the failing rule, the
// offending step(s), and a human-readable explanation. Plans that produce
// one are never executed.
type Error struct {
	Rule    string `json:"rule"`
	Path    string `json:"path,omitempty"`
	StepIDs []int  `json:"step_ids,omitempty"`
	Message string `json:"message"`

	// Err carries a more specific error value (e.g. *UnknownOutputFieldError).
	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s at %s", e.Rule, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Rule, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(rule, path string, stepIDs []int, msg string, args ...any) *Error {
	return &Error{
		Rule:    rule,
		Path:    path,
		StepIDs: stepIDs,
		Message: fmt.Sprintf(msg, args...),
	}
}

// CapabilityError reports tools a plan references that the catalog lacks.
// Fatal to the plan, surfaced to the caller, never retried.
type CapabilityError struct {
	Missing   []string
	Available []string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("missing tools: %s", strings.Join(e.Missing, ", "))
}

// UnknownOutputFieldError reports a reference to a field absent from the
// source tool's declared output schema.
type UnknownOutputFieldError struct {
	Tool  string
	Field string
	Valid []string
}

func (e *UnknownOutputFieldError) Error() string {
	return fmt.Sprintf("tool %q has no output field %q (valid fields: %s)",
		e.Tool, e.Field, strings.Join(e.Valid, ", "))
}
