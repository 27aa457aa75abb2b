// Package trace implements the engine's append-only JSONL audit trail.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventRunStart      EventType = "run_start"
	EventRunComplete   EventType = "run_complete"
	EventStepStart     EventType = "step_start"
	EventStepRetry     EventType = "step_retry"
	EventStepComplete  EventType = "step_complete"
	EventCriticVerdict EventType = "critic_verdict"
	EventSessionLoaded EventType = "session_loaded"
	EventSessionSaved  EventType = "session_saved"
)

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Failure describes why a step failed.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Writer writes trace events to an append-only JSONL stream.
type Writer struct {
	mu    sync.Mutex
	runID string
	enc   *json.Encoder
}

// NewWriter creates a trace writer over w.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{runID: runID, enc: json.NewEncoder(w)}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return NewWriter(f, runID), nil
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	return tw.enc.Encode(Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     tw.runID,
		Data:      data,
	})
}

// EmitRunStart records the goal and step count at the top of a run.
func (tw *Writer) EmitRunStart(goal string, stepCount int) {
	tw.Emit(EventRunStart, map[string]any{
		"goal":       goal,
		"step_count": stepCount,
	})
}

// EmitStepStart records a step dispatch.
func (tw *Writer) EmitStepStart(stepID int, action string) {
	tw.Emit(EventStepStart, map[string]any{
		"step_id": stepID,
		"action":  action,
	})
}

// EmitStepRetry records one retry attempt for a step.
func (tw *Writer) EmitStepRetry(stepID int, attempt int, kind string) {
	tw.Emit(EventStepRetry, map[string]any{
		"step_id": stepID,
		"attempt": attempt,
		"kind":    kind,
	})
}

// EmitStepComplete records a step reaching a terminal status.
func (tw *Writer) EmitStepComplete(stepID int, status string, duration time.Duration, failure *Failure) {
	data := map[string]any{
		"step_id":     stepID,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	}
	if failure != nil {
		data["failure"] = failure
	}
	tw.Emit(EventStepComplete, data)
}

// EmitCriticVerdict records the critic's judgement on a finished run.
func (tw *Writer) EmitCriticVerdict(verdict string, stepIDs []int, rationale string) {
	data := map[string]any{
		"verdict":   verdict,
		"rationale": rationale,
	}
	if len(stepIDs) > 0 {
		data["step_ids"] = stepIDs
	}
	tw.Emit(EventCriticVerdict, data)
}

// EmitRunComplete records the run's terminal status.
func (tw *Writer) EmitRunComplete(status string, duration time.Duration) {
	tw.Emit(EventRunComplete, map[string]any{
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
}
