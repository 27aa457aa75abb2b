package plan

import (
	"sort"
	"time"
)

// StepStatus is the per-step execution state.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusScheduled StepStatus = "scheduled"
	StatusRunning   StepStatus = "running"
	StatusSucceeded StepStatus = "succeeded"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
)

// Terminal reports whether the status is a final step state.
func (s StepStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// RunStatus is the terminal state of a whole run.
type RunStatus string

const (
	RunCompleted          RunStatus = "completed"
	RunPartiallyCompleted RunStatus = "partially-completed"
	RunAborted            RunStatus = "aborted"
)

// StepError describes why a step failed, categorized by the tool's declared
// error kinds. Engine-synthesized kinds: "timeout", "cancelled",
// "resolution_invariant".
type StepError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *StepError) Error() string {
	return e.Kind + ": " + e.Message
}

// StepResult is the published outcome of one step. A result is written
// exactly once, after it is fully computed, and never mutated afterwards.
type StepResult struct {
	StepID  int            `json:"step_id"`
	Status  StepStatus     `json:"status"`
	Output  map[string]any `json:"output,omitempty"`
	Error   *StepError     `json:"error,omitempty"`
	Retries int            `json:"retries,omitempty"`

	// Duration covers all attempts, including retries.
	Duration time.Duration `json:"duration,omitempty"`
}

// Decision is the critic's judgement on an executed run.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionRetry  Decision = "retry"
	DecisionReplan Decision = "replan"
)

// Verdict is the critic's full answer. StepIDs is set only for retry and
// names the steps to re-execute; their downstream dependents re-run too.
type Verdict struct {
	Decision  Decision `json:"verdict"`
	StepIDs   []int    `json:"step_ids,omitempty"`
	Rationale string   `json:"rationale"`
}

// ExecutionRun collects the published results of one executor pass over a
// plan. The executor owns it while running and hands it, immutable, to the
// critic and then to the session store.
type ExecutionRun struct {
	RunID   string              `json:"run_id"`
	Goal    string              `json:"goal"`
	Status  RunStatus           `json:"status"`
	Results map[int]*StepResult `json:"results"`
	Verdict *Verdict            `json:"verdict,omitempty"`
}

// Result returns the published result for a step, or nil if none.
func (r *ExecutionRun) Result(id int) *StepResult {
	return r.Results[id]
}

// Counts returns how many steps ended succeeded, failed, and skipped.
func (r *ExecutionRun) Counts() (succeeded, failed, skipped int) {
	for _, sr := range r.Results {
		switch sr.Status {
		case StatusSucceeded:
			succeeded++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// FailedSteps returns the IDs of steps that ended failed, ascending.
func (r *ExecutionRun) FailedSteps() []int {
	var ids []int
	for id, sr := range r.Results {
		if sr.Status == StatusFailed {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
