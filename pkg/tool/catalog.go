package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Status of one tool invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Error is a tool-reported failure, categorized by the tool's declared
// error kinds.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Message
}

// Result is the invocation envelope every tool returns. On success Output
// conforms to the tool's output schema; on failure Error carries the kind
// and message.
type Result struct {
	Status Status         `json:"status"`
	Output map[string]any `json:"output,omitempty"`
	Error  *Error         `json:"error,omitempty"`
}

// Handler invokes a tool. Implementations are external to the engine:
// subprocesses, network calls, or in-process functions. The returned error
// is reserved for transport breakdowns; tool-level failures travel in the
// Result envelope.
type Handler interface {
	Invoke(ctx context.Context, params map[string]any) (*Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, params map[string]any) (*Result, error)

func (f HandlerFunc) Invoke(ctx context.Context, params map[string]any) (*Result, error) {
	return f(ctx, params)
}

// DuplicateToolError reports a second registration under an existing name.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// NotFoundError reports a lookup for an unregistered tool.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Name)
}

// ErrSealed is returned by Register once the catalog has served a read.
var ErrSealed = fmt.Errorf("catalog is sealed: registration after first lookup")

type entry struct {
	spec    *Spec
	handler Handler
}

// Catalog maps tool names to specs and handlers. It is populated at startup
// and sealed on first read: any Register after a Lookup fails, so concurrent
// readers never race a writer.
type Catalog struct {
	mu     sync.RWMutex
	tools  map[string]entry
	sealed atomic.Bool
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tools: make(map[string]entry)}
}

// Register adds a spec with its handler. handler may be nil for tools that
// are validated against but dispatched elsewhere (e.g. dry runs).
func (c *Catalog) Register(spec *Spec, handler Handler) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if c.sealed.Load() {
		return ErrSealed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tools[spec.Name]; ok {
		return &DuplicateToolError{Name: spec.Name}
	}
	c.tools[spec.Name] = entry{spec: spec, handler: handler}
	return nil
}

// Lookup returns the spec for name. The first lookup seals the catalog.
func (c *Catalog) Lookup(name string) (*Spec, error) {
	c.sealed.Store(true)
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.tools[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return e.spec, nil
}

// Handler returns the invocation handler for name.
func (c *Catalog) Handler(name string) (Handler, error) {
	c.sealed.Store(true)
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.tools[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	if e.handler == nil {
		return nil, fmt.Errorf("tool %q has no handler wired", name)
	}
	return e.handler, nil
}

// Names returns all registered tool names, sorted.
func (c *Catalog) Names() []string {
	c.sealed.Store(true)
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
