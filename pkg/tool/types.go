// Package tool defines the typed tool catalog: specs, the invocation
// contract, and the registry the gate and validator check plans against.
package tool

import (
	"fmt"
	"time"
)

// ValueType is the type vocabulary shared by input and output schemas.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeNumber ValueType = "number"
	TypeBool   ValueType = "bool"
	TypeList   ValueType = "list"
	TypeDict   ValueType = "dict"
	TypeAny    ValueType = "any"
)

// Valid reports whether t is a known type name.
func (t ValueType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBool, TypeList, TypeDict, TypeAny:
		return true
	}
	return false
}

// Scalar reports whether t is a scalar (non-structured) type.
func (t ValueType) Scalar() bool {
	switch t {
	case TypeString, TypeNumber, TypeBool:
		return true
	}
	return false
}

// Compatible reports whether a value of type got can bind to a parameter
// declared as want. Structured types must match exactly; there is no
// coercion between lists, dicts, and scalars. TypeAny on either side
// matches anything (it marks fields whose element type is not declared).
func Compatible(got, want ValueType) bool {
	if got == TypeAny || want == TypeAny {
		return true
	}
	return got == want
}

// TypeOf classifies a literal parameter value.
func TypeOf(v any) ValueType {
	switch v.(type) {
	case string:
		return TypeString
	case bool:
		return TypeBool
	case int, int64, float64:
		return TypeNumber
	case []any:
		return TypeList
	case map[string]any:
		return TypeDict
	default:
		return TypeAny
	}
}

// Kind tags a tool family.
type Kind string

const (
	KindContent Kind = "content" // produces data for downstream steps
	KindAction  Kind = "action"  // performs an external side effect
)

// ParamSpec declares one input parameter.
type ParamSpec struct {
	Type        ValueType `yaml:"type"                  json:"type"`
	Required    bool      `yaml:"required,omitempty"    json:"required,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
}

// ErrorKind declares one failure category a tool may raise.
type ErrorKind struct {
	Retryable   bool   `yaml:"retryable,omitempty"   json:"retryable,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Spec is an immutable tool description. Registered once at startup;
// never mutated afterwards.
type Spec struct {
	Name        string               `yaml:"name"                  json:"name"`
	Kind        Kind                 `yaml:"kind,omitempty"        json:"kind,omitempty"`
	Description string               `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      map[string]ParamSpec `yaml:"inputs,omitempty"      json:"inputs,omitempty"`
	Outputs     map[string]ValueType `yaml:"outputs,omitempty"     json:"outputs,omitempty"`
	ErrorKinds  map[string]ErrorKind `yaml:"error_kinds,omitempty" json:"error_kinds,omitempty"`

	// TimeoutSeconds bounds one invocation; plans may override per step.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`

	// Binary and Args declare the stdio transport for tools dispatched as
	// subprocesses. Empty Binary means the host wires a Handler in code.
	Binary string   `yaml:"binary,omitempty" json:"binary,omitempty"`
	Args   []string `yaml:"args,omitempty"   json:"args,omitempty"`
}

// DefaultTimeout applies when a spec declares none.
const DefaultTimeout = 60 * time.Second

// Timeout returns the per-invocation bound for this tool.
func (s *Spec) Timeout() time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return DefaultTimeout
}

// Retryable reports whether the named error kind is declared retryable.
// Unknown kinds are never retryable.
func (s *Spec) Retryable(kind string) bool {
	ek, ok := s.ErrorKinds[kind]
	return ok && ek.Retryable
}

// OutputField resolves a reference field path against the declared output
// schema and returns the bound type. The first segment must name a declared
// output field. A numeric segment indexes a list-typed value; a further
// named segment descends into a dict-typed value. Element types are not
// declared, so anything below the first segment resolves to TypeAny.
func (s *Spec) OutputField(path []string) (ValueType, error) {
	if len(path) == 0 {
		return "", fmt.Errorf("empty field path")
	}
	t, ok := s.Outputs[path[0]]
	if !ok {
		return "", fmt.Errorf("unknown output field %q", path[0])
	}
	cur := t
	for _, seg := range path[1:] {
		switch {
		case isIndex(seg):
			if cur != TypeList && cur != TypeAny {
				return "", fmt.Errorf("segment %q indexes non-list field %q (%s)", seg, path[0], cur)
			}
		default:
			if cur != TypeDict && cur != TypeAny {
				return "", fmt.Errorf("segment %q descends into non-dict field %q (%s)", seg, path[0], cur)
			}
		}
		cur = TypeAny
	}
	return cur, nil
}

// Validate checks the spec for registration: a name, known types throughout.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("tool spec has no name")
	}
	if s.Kind != "" && s.Kind != KindContent && s.Kind != KindAction {
		return fmt.Errorf("tool %s: unknown kind %q", s.Name, s.Kind)
	}
	for name, ps := range s.Inputs {
		if !ps.Type.Valid() {
			return fmt.Errorf("tool %s: input %q has unknown type %q", s.Name, name, ps.Type)
		}
	}
	for name, t := range s.Outputs {
		if !t.Valid() {
			return fmt.Errorf("tool %s: output %q has unknown type %q", s.Name, name, t)
		}
	}
	return nil
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, c := range seg {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
