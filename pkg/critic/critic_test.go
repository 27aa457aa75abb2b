package critic

import (
	"context"
	"reflect"
	"testing"

	"github.com/ormasoftchile/pert/pkg/plan"
)

func runFixture(status plan.RunStatus) *plan.ExecutionRun {
	return &plan.ExecutionRun{
		RunID:  "r1",
		Goal:   "summarize the news",
		Status: status,
		Results: map[int]*plan.StepResult{
			1: {StepID: 1, Status: plan.StatusSucceeded, Output: map[string]any{"count": 2}},
			2: {StepID: 2, Status: plan.StatusFailed, Error: &plan.StepError{Kind: "rate_limited", Message: "slow"}},
			3: {StepID: 3, Status: plan.StatusSkipped},
		},
	}
}

func TestOutcome_CompletedAccepts(t *testing.T) {
	run := &plan.ExecutionRun{
		Status:  plan.RunCompleted,
		Results: map[int]*plan.StepResult{1: {StepID: 1, Status: plan.StatusSucceeded}},
	}
	v, err := Outcome{}.Evaluate(context.Background(), &plan.Plan{}, run)
	if err != nil {
		t.Fatal(err)
	}
	if v.Decision != plan.DecisionAccept {
		t.Errorf("decision = %s", v.Decision)
	}
}

func TestOutcome_PartialRetriesFailedSteps(t *testing.T) {
	v, err := Outcome{}.Evaluate(context.Background(), &plan.Plan{}, runFixture(plan.RunPartiallyCompleted))
	if err != nil {
		t.Fatal(err)
	}
	if v.Decision != plan.DecisionRetry {
		t.Fatalf("decision = %s", v.Decision)
	}
	if !reflect.DeepEqual(v.StepIDs, []int{2}) {
		t.Errorf("StepIDs = %v", v.StepIDs)
	}
}

func TestOutcome_AbortedReplans(t *testing.T) {
	v, err := Outcome{}.Evaluate(context.Background(), &plan.Plan{}, runFixture(plan.RunAborted))
	if err != nil {
		t.Fatal(err)
	}
	if v.Decision != plan.DecisionReplan {
		t.Errorf("decision = %s", v.Decision)
	}
}

func TestRules_FirstMatchWins(t *testing.T) {
	rules, err := NewRules([]Rule{
		{When: `failed > 0 && succeeded == 0`, Decision: plan.DecisionReplan, Rationale: "nothing worked"},
		{When: `failed > 0`, Decision: plan.DecisionRetry, Rationale: "salvage the rest"},
		{When: `true`, Decision: plan.DecisionAccept, Rationale: "default accept"},
	})
	if err != nil {
		t.Fatal(err)
	}

	v, err := rules.Evaluate(context.Background(), &plan.Plan{Goal: "g"}, runFixture(plan.RunPartiallyCompleted))
	if err != nil {
		t.Fatal(err)
	}
	if v.Decision != plan.DecisionRetry {
		t.Fatalf("decision = %s, want retry from second rule", v.Decision)
	}
	if !reflect.DeepEqual(v.StepIDs, []int{2}) {
		t.Errorf("retry must target the failed steps: %v", v.StepIDs)
	}
	if v.Rationale != "salvage the rest" {
		t.Errorf("rationale = %q", v.Rationale)
	}
}

func TestRules_OutputsVisibleToExpressions(t *testing.T) {
	rules, err := NewRules([]Rule{
		{When: `outputs["1"].count == 2`, Decision: plan.DecisionAccept, Rationale: "enough results"},
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := rules.Evaluate(context.Background(), &plan.Plan{Goal: "g"}, runFixture(plan.RunPartiallyCompleted))
	if err != nil {
		t.Fatal(err)
	}
	if v.Decision != plan.DecisionAccept {
		t.Errorf("decision = %s", v.Decision)
	}
}

func TestRules_FallsThroughToOutcome(t *testing.T) {
	rules, err := NewRules([]Rule{
		{When: `status == "completed"`, Decision: plan.DecisionAccept, Rationale: "clean"},
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := rules.Evaluate(context.Background(), &plan.Plan{Goal: "g"}, runFixture(plan.RunPartiallyCompleted))
	if err != nil {
		t.Fatal(err)
	}
	// No rule matched; the outcome default retries the failures.
	if v.Decision != plan.DecisionRetry {
		t.Errorf("decision = %s, want retry from fallthrough", v.Decision)
	}
}

func TestNewRules_RejectsBadExpressions(t *testing.T) {
	if _, err := NewRules([]Rule{{When: `status ==`, Decision: plan.DecisionAccept}}); err == nil {
		t.Error("expected compile error")
	}
	if _, err := NewRules([]Rule{{When: `true`, Decision: "maybe"}}); err == nil {
		t.Error("expected unknown decision error")
	}
	if _, err := NewRules([]Rule{{When: `goal`, Decision: plan.DecisionAccept}}); err == nil {
		t.Error("expected non-boolean expression error")
	}
}
