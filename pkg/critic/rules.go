package critic

import (
	"context"
	"fmt"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ormasoftchile/pert/pkg/plan"
)

// Rule pairs a boolean expr condition with the verdict to emit when it
// matches. Conditions see the finished run through a read-only environment:
//
//	goal       string
//	status     string ("completed", "partially-completed", "aborted")
//	succeeded  int
//	failed     int
//	skipped    int
//	outputs    map[string]map[string]any keyed by step ID ("1", "2", ...)
//
// Example: `status == "completed" && len(outputs["2"]) > 0`.
type Rule struct {
	When      string
	Decision  plan.Decision
	Rationale string
}

type compiledRule struct {
	rule    Rule
	program *vm.Program
}

// Rules is a critic driven by an ordered rule list: the first matching rule
// wins. When no rule matches, evaluation falls through to the Outcome
// default, so a rule set only needs to cover the cases it wants to override.
type Rules struct {
	compiled []compiledRule
}

// NewRules compiles the rule conditions. Compilation errors are returned up
// front so a bad rule never reaches a live run.
func NewRules(rules []Rule) (*Rules, error) {
	env := ruleEnv("", nil)
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		switch r.Decision {
		case plan.DecisionAccept, plan.DecisionRetry, plan.DecisionReplan:
		default:
			return nil, fmt.Errorf("rule %d: unknown decision %q", i, r.Decision)
		}
		program, err := expr.Compile(r.When, expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("rule %d: compile %q: %w", i, r.When, err)
		}
		compiled = append(compiled, compiledRule{rule: r, program: program})
	}
	return &Rules{compiled: compiled}, nil
}

func (rc *Rules) Evaluate(ctx context.Context, p *plan.Plan, run *plan.ExecutionRun) (plan.Verdict, error) {
	env := ruleEnv(p.Goal, run)
	for _, cr := range rc.compiled {
		out, err := expr.Run(cr.program, env)
		if err != nil {
			return plan.Verdict{}, fmt.Errorf("eval rule %q: %w", cr.rule.When, err)
		}
		if matched, _ := out.(bool); matched {
			v := plan.Verdict{
				Decision:  cr.rule.Decision,
				Rationale: cr.rule.Rationale,
			}
			if v.Decision == plan.DecisionRetry {
				v.StepIDs = run.FailedSteps()
			}
			if v.Rationale == "" {
				v.Rationale = fmt.Sprintf("rule matched: %s", cr.rule.When)
			}
			return v, nil
		}
	}
	return Outcome{}.Evaluate(ctx, p, run)
}

func ruleEnv(goal string, run *plan.ExecutionRun) map[string]any {
	env := map[string]any{
		"goal":      goal,
		"status":    "",
		"succeeded": 0,
		"failed":    0,
		"skipped":   0,
		"outputs":   map[string]map[string]any{},
	}
	if run == nil {
		return env
	}
	succeeded, failed, skipped := run.Counts()
	env["status"] = string(run.Status)
	env["succeeded"] = succeeded
	env["failed"] = failed
	env["skipped"] = skipped

	outputs := make(map[string]map[string]any, len(run.Results))
	for id, res := range run.Results {
		if res.Status == plan.StatusSucceeded {
			outputs[strconv.Itoa(id)] = res.Output
		}
	}
	env["outputs"] = outputs
	return env
}
