// Package critic defines the post-execution adjudicator contract and two
// implementations: an outcome-based default and a rule-based critic whose
// acceptance rules are expr expressions over the finished run.
package critic

import (
	"context"
	"fmt"

	"github.com/ormasoftchile/pert/pkg/plan"
)

// Critic compares a finished run against the plan's goal and decides whether
// to accept the results, retry specific steps, or demand a structurally new
// plan. Critics are pure read-only adjudicators: they inspect step outputs
// and the goal text only, and never mutate the run.
type Critic interface {
	Evaluate(ctx context.Context, p *plan.Plan, run *plan.ExecutionRun) (plan.Verdict, error)
}

// Func adapts a function to the Critic interface.
type Func func(ctx context.Context, p *plan.Plan, run *plan.ExecutionRun) (plan.Verdict, error)

func (f Func) Evaluate(ctx context.Context, p *plan.Plan, run *plan.ExecutionRun) (plan.Verdict, error) {
	return f(ctx, p, run)
}

// Outcome is the default critic: a completed run is accepted, a partially
// completed run retries its failed steps, and an aborted run asks for a new
// plan (nothing succeeded, so the shape itself is suspect).
type Outcome struct{}

func (Outcome) Evaluate(_ context.Context, _ *plan.Plan, run *plan.ExecutionRun) (plan.Verdict, error) {
	switch run.Status {
	case plan.RunCompleted:
		return plan.Verdict{
			Decision:  plan.DecisionAccept,
			Rationale: "every step succeeded",
		}, nil
	case plan.RunPartiallyCompleted:
		failed := run.FailedSteps()
		return plan.Verdict{
			Decision:  plan.DecisionRetry,
			StepIDs:   failed,
			Rationale: fmt.Sprintf("%d step(s) failed; independent branches completed", len(failed)),
		}, nil
	default:
		return plan.Verdict{
			Decision:  plan.DecisionReplan,
			Rationale: "run aborted before any step completed",
		}, nil
	}
}
