package plan

import (
	"reflect"
	"strings"
	"testing"
)

func TestPlan_StepLookup(t *testing.T) {
	p := &Plan{Steps: []Step{{ID: 1, Action: "a"}, {ID: 3, Action: "b"}}}
	if s := p.Step(3); s == nil || s.Action != "b" {
		t.Errorf("Step(3) = %+v, want action b", s)
	}
	if s := p.Step(2); s != nil {
		t.Errorf("Step(2) = %+v, want nil", s)
	}
}

func TestPlan_ActionsSortedDistinct(t *testing.T) {
	p := &Plan{Steps: []Step{
		{ID: 1, Action: "web_search"},
		{ID: 2, Action: "summarize"},
		{ID: 3, Action: "web_search"},
	}}
	want := []string{"summarize", "web_search"}
	if got := p.Actions(); !reflect.DeepEqual(got, want) {
		t.Errorf("Actions() = %v, want %v", got, want)
	}
}

func TestRejection(t *testing.T) {
	p := Rejection("book a flight", []string{"flight_booking"}, []string{"summarize", "web_search"})
	if !p.Impossible() {
		t.Fatal("rejection must have impossible complexity")
	}
	if len(p.Steps) != 0 {
		t.Errorf("rejection must carry no steps, got %d", len(p.Steps))
	}
	if !strings.Contains(p.Reason, "missing tools: flight_booking") {
		t.Errorf("reason missing the absent tool: %q", p.Reason)
	}
	if !strings.Contains(p.Reason, "available tools: summarize, web_search") {
		t.Errorf("reason missing the available tools: %q", p.Reason)
	}
}

func TestRejection_EmptyCatalog(t *testing.T) {
	p := Rejection("anything", []string{"x"}, nil)
	if !strings.Contains(p.Reason, "no tools are registered") {
		t.Errorf("reason = %q", p.Reason)
	}
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	_, err := Decode([]byte(`{"goal":"g","steps":[],"complexity":"simple","bogus":1}`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestDecode_RejectsTrailingData(t *testing.T) {
	_, err := Decode([]byte(`{"goal":"g","steps":[],"complexity":"simple"}{"extra":true}`))
	if err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestDecode_Valid(t *testing.T) {
	data := []byte(`{
		"goal": "summarize the news",
		"complexity": "medium",
		"steps": [
			{"id": 1, "action": "web_search", "parameters": {"query": "news"}},
			{"id": 2, "action": "summarize", "parameters": {"text": "$step1.results"}, "dependencies": [1]}
		]
	}`)
	p, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(p.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(p.Steps))
	}
	if p.Steps[1].Dependencies[0] != 1 {
		t.Errorf("step 2 dependencies = %v", p.Steps[1].Dependencies)
	}
}

func TestExecutionRun_Counts(t *testing.T) {
	run := &ExecutionRun{Results: map[int]*StepResult{
		1: {StepID: 1, Status: StatusSucceeded},
		2: {StepID: 2, Status: StatusFailed},
		3: {StepID: 3, Status: StatusSkipped},
		4: {StepID: 4, Status: StatusSkipped},
	}}
	succeeded, failed, skipped := run.Counts()
	if succeeded != 1 || failed != 1 || skipped != 2 {
		t.Errorf("Counts() = %d,%d,%d", succeeded, failed, skipped)
	}
	if got := run.FailedSteps(); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("FailedSteps() = %v", got)
	}
}
