package validate

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ormasoftchile/pert/pkg/plan"
	"github.com/ormasoftchile/pert/pkg/tool"
)

func testCatalog(t *testing.T) *tool.Catalog {
	t.Helper()
	cat := tool.NewCatalog()
	specs := []*tool.Spec{
		{
			Name: "web_search",
			Kind: tool.KindContent,
			Inputs: map[string]tool.ParamSpec{
				"query": {Type: tool.TypeString, Required: true},
				"limit": {Type: tool.TypeNumber},
			},
			Outputs: map[string]tool.ValueType{
				"results": tool.TypeList,
				"count":   tool.TypeNumber,
			},
		},
		{
			Name: "summarize",
			Kind: tool.KindContent,
			Inputs: map[string]tool.ParamSpec{
				"text": {Type: tool.TypeAny, Required: true},
			},
			Outputs: map[string]tool.ValueType{
				"summary": tool.TypeString,
			},
		},
		{
			Name: "send_email",
			Kind: tool.KindAction,
			Inputs: map[string]tool.ParamSpec{
				"to":   {Type: tool.TypeString, Required: true},
				"body": {Type: tool.TypeString, Required: true},
			},
			Outputs: map[string]tool.ValueType{
				"message_id": tool.TypeString,
			},
		},
	}
	for _, s := range specs {
		if err := cat.Register(s, nil); err != nil {
			t.Fatal(err)
		}
	}
	return cat
}

func validPlan() *plan.Plan {
	return &plan.Plan{
		Goal:       "research and report",
		Complexity: plan.ComplexityMedium,
		Steps: []plan.Step{
			{ID: 1, Action: "web_search", Parameters: map[string]any{"query": "golang schedulers"}},
			{ID: 2, Action: "summarize", Parameters: map[string]any{"text": "$step1.results"}, Dependencies: []int{1}},
			{ID: 3, Action: "send_email", Parameters: map[string]any{
				"to":   "team@example.com",
				"body": "$step2.summary",
			}, Dependencies: []int{2}},
		},
	}
}

func TestGate_AllToolsPresent(t *testing.T) {
	cat := testCatalog(t)
	p := validPlan()
	out, cerr := Gate(p, cat)
	if cerr != nil {
		t.Fatalf("Gate rejected a feasible plan: %v", cerr)
	}
	if out != p {
		t.Error("Gate must return the plan unchanged when feasible")
	}
}

func TestGate_MissingTool(t *testing.T) {
	cat := testCatalog(t)
	p := validPlan()
	p.Steps[0].Action = "flight_booking"

	out, cerr := Gate(p, cat)
	if cerr == nil {
		t.Fatal("expected capability error")
	}
	if !reflect.DeepEqual(cerr.Missing, []string{"flight_booking"}) {
		t.Errorf("Missing = %v", cerr.Missing)
	}
	if !out.Impossible() {
		t.Error("gate rejection must be an impossible plan")
	}
	if len(out.Steps) != 0 {
		t.Errorf("rejection must carry no steps, got %d", len(out.Steps))
	}
	if !strings.Contains(out.Reason, "flight_booking") {
		t.Errorf("reason = %q", out.Reason)
	}
	if !strings.Contains(out.Reason, "web_search") {
		t.Errorf("reason should enumerate available tools: %q", out.Reason)
	}
}

func TestValidate_ValidPlan(t *testing.T) {
	if err := Validate(validPlan(), testCatalog(t)); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}
}

func TestValidate_ImpossibleRejectionPasses(t *testing.T) {
	p := plan.Rejection("book a flight", []string{"flight_booking"}, []string{"web_search"})
	if err := Validate(p, testCatalog(t)); err != nil {
		t.Fatalf("well-formed rejection rejected: %v", err)
	}
}

func TestValidate_ImpossibleWithStepsFails(t *testing.T) {
	p := validPlan()
	p.Complexity = plan.ComplexityImpossible
	p.Reason = "whatever"
	err := Validate(p, testCatalog(t))
	if err == nil || err.Rule != RuleStructural {
		t.Fatalf("err = %v, want structural error", err)
	}
}

func TestValidate_DependencyCycle(t *testing.T) {
	p := &plan.Plan{
		Goal:       "cyclic",
		Complexity: plan.ComplexitySimple,
		Steps: []plan.Step{
			{ID: 1, Action: "web_search", Parameters: map[string]any{"query": "a"}, Dependencies: []int{2}},
			{ID: 2, Action: "summarize", Parameters: map[string]any{"text": "b"}, Dependencies: []int{1}},
		},
	}
	err := Validate(p, testCatalog(t))
	if err == nil || err.Rule != RuleStructural {
		t.Fatalf("err = %v, want structural error", err)
	}
	if !strings.Contains(err.Message, "dependency cycle") {
		t.Errorf("message = %q", err.Message)
	}
	if len(err.StepIDs) < 3 || err.StepIDs[0] != err.StepIDs[len(err.StepIDs)-1] {
		t.Errorf("cycle should be closed on the repeated step: %v", err.StepIDs)
	}
}

func TestValidate_SelfDependency(t *testing.T) {
	p := &plan.Plan{
		Goal:       "self",
		Complexity: plan.ComplexitySimple,
		Steps: []plan.Step{
			{ID: 1, Action: "web_search", Parameters: map[string]any{"query": "a"}, Dependencies: []int{1}},
		},
	}
	err := Validate(p, testCatalog(t))
	if err == nil || !strings.Contains(err.Message, "depends on itself") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate_DuplicateStepIDs(t *testing.T) {
	p := &plan.Plan{
		Goal:       "dup",
		Complexity: plan.ComplexitySimple,
		Steps: []plan.Step{
			{ID: 1, Action: "web_search", Parameters: map[string]any{"query": "a"}},
			{ID: 1, Action: "summarize", Parameters: map[string]any{"text": "b"}},
		},
	}
	err := Validate(p, testCatalog(t))
	if err == nil || !strings.Contains(err.Message, "duplicate step ID") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate_UnknownDependency(t *testing.T) {
	p := &plan.Plan{
		Goal:       "ghost dep",
		Complexity: plan.ComplexitySimple,
		Steps: []plan.Step{
			{ID: 1, Action: "web_search", Parameters: map[string]any{"query": "a"}, Dependencies: []int{9}},
		},
	}
	err := Validate(p, testCatalog(t))
	if err == nil || !strings.Contains(err.Message, "unknown step 9") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate_ReferenceToUnknownStep(t *testing.T) {
	p := validPlan()
	p.Steps[1].Parameters["text"] = "$step9.results"
	err := Validate(p, testCatalog(t))
	if err == nil || err.Rule != RuleReference {
		t.Fatalf("err = %v, want reference error", err)
	}
}

func TestValidate_ReferenceWithoutDependency(t *testing.T) {
	p := validPlan()
	// Step 3 reads step 1's output but only declares step 2.
	p.Steps[2].Parameters["body"] = "$step1.count"
	err := Validate(p, testCatalog(t))
	if err == nil || err.Rule != RuleReference {
		t.Fatalf("err = %v, want reference error", err)
	}
	if !strings.Contains(err.Message, "without declaring it as a dependency") {
		t.Errorf("message = %q", err.Message)
	}
	if !reflect.DeepEqual(err.StepIDs, []int{3, 1}) {
		t.Errorf("StepIDs = %v", err.StepIDs)
	}
}

func TestValidate_UnknownOutputField(t *testing.T) {
	p := validPlan()
	p.Steps[1].Parameters["text"] = "$step1.snippets"
	err := Validate(p, testCatalog(t))
	if err == nil || err.Rule != RuleField {
		t.Fatalf("err = %v, want field error", err)
	}
	var uf *UnknownOutputFieldError
	if !errors.As(err, &uf) {
		t.Fatalf("expected UnknownOutputFieldError in chain, got %v", err)
	}
	if uf.Tool != "web_search" || uf.Field != "snippets" {
		t.Errorf("UnknownOutputFieldError = %+v", uf)
	}
	if !reflect.DeepEqual(uf.Valid, []string{"count", "results"}) {
		t.Errorf("Valid = %v", uf.Valid)
	}
}

func TestValidate_IndexIntoScalarField(t *testing.T) {
	p := validPlan()
	p.Steps[1].Parameters["text"] = "$step1.count.0"
	err := Validate(p, testCatalog(t))
	if err == nil || err.Rule != RuleField {
		t.Fatalf("err = %v, want field error", err)
	}
}

func TestValidate_TypeMismatch(t *testing.T) {
	p := validPlan()
	// send_email's body wants a string; step 1's results is a list.
	p.Steps[2].Dependencies = []int{1, 2}
	p.Steps[2].Parameters["body"] = "$step1.results"
	err := Validate(p, testCatalog(t))
	if err == nil || err.Rule != RuleType {
		t.Fatalf("err = %v, want type error", err)
	}
	if !strings.Contains(err.Message, "does not satisfy declared type") {
		t.Errorf("message = %q", err.Message)
	}
}

func TestValidate_LiteralTypeMismatch(t *testing.T) {
	p := validPlan()
	p.Steps[0].Parameters["limit"] = "ten"
	err := Validate(p, testCatalog(t))
	if err == nil || err.Rule != RuleType {
		t.Fatalf("err = %v, want type error", err)
	}
}

func TestValidate_UnknownParameter(t *testing.T) {
	p := validPlan()
	p.Steps[0].Parameters["depth"] = 3
	err := Validate(p, testCatalog(t))
	if err == nil || err.Rule != RuleType {
		t.Fatalf("err = %v, want type error", err)
	}
	if !strings.Contains(err.Message, `declares no parameter "depth"`) {
		t.Errorf("message = %q", err.Message)
	}
}

func TestValidate_MissingRequiredParameter(t *testing.T) {
	p := validPlan()
	delete(p.Steps[0].Parameters, "query")
	err := Validate(p, testCatalog(t))
	if err == nil || err.Rule != RuleType {
		t.Fatalf("err = %v, want type error", err)
	}
	if !strings.Contains(err.Message, `required parameter "query"`) {
		t.Errorf("message = %q", err.Message)
	}
}

func TestValidate_ListElementReferenceIsAny(t *testing.T) {
	// A numeric segment below a list field resolves to any, which binds to
	// a string parameter without error.
	p := validPlan()
	p.Steps[2].Dependencies = []int{1, 2}
	p.Steps[2].Parameters["body"] = "$step1.results.0"
	if err := Validate(p, testCatalog(t)); err != nil {
		t.Fatalf("element reference rejected: %v", err)
	}
}
