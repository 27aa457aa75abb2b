// Package engine executes validated task plans: dependency-ordered
// scheduling with bounded concurrency, per-step retries and timeouts, skip
// propagation past failures, and the critic feedback loop.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ormasoftchile/pert/pkg/critic"
	"github.com/ormasoftchile/pert/pkg/plan"
	"github.com/ormasoftchile/pert/pkg/resolve"
	"github.com/ormasoftchile/pert/pkg/session"
	"github.com/ormasoftchile/pert/pkg/tool"
	"github.com/ormasoftchile/pert/pkg/trace"
	"github.com/ormasoftchile/pert/pkg/validate"
)

// Defaults applied by New when the config leaves a field zero.
const (
	DefaultWorkers      = 4
	DefaultCancelGrace  = 5 * time.Second
	DefaultCriticRounds = 3
)

// Config tunes one engine instance.
type Config struct {
	// Workers bounds how many steps run concurrently.
	Workers int

	// MaxRetries bounds retries per step. Only error kinds the tool
	// declares retryable are ever retried; zero disables retries.
	MaxRetries int

	// CancelGrace is how long an in-flight tool gets to honor a
	// cancellation before its bookkeeping is force-terminated.
	CancelGrace time.Duration

	// Trace receives the JSONL audit trail; nil disables tracing.
	Trace *trace.Writer

	// Logger for structured execution logs; nil disables logging.
	Logger *zerolog.Logger

	// Store carries context across turns. Read once at run start,
	// written once at run end. Nil skips both.
	Store     session.Store
	SessionID string
}

// Engine drives one run at a time over a sealed catalog.
type Engine struct {
	cat *tool.Catalog
	cfg Config
}

// New creates an engine, filling config defaults.
func New(cat *tool.Catalog, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = DefaultCancelGrace
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	return &Engine{cat: cat, cfg: cfg}
}

// Run gates, validates, and executes a plan once. Capability and validation
// errors return synchronously before any tool is invoked, so a rejected plan
// has no partial side effects.
func (e *Engine) Run(ctx context.Context, p *plan.Plan) (*plan.ExecutionRun, error) {
	if err := e.preflight(p); err != nil {
		return nil, err
	}

	sessionCtx, err := e.loadSession(ctx)
	if err != nil {
		return nil, err
	}

	run := e.execute(ctx, p, nil, nil)

	if err := e.saveSession(ctx, sessionCtx, run); err != nil {
		return run, err
	}
	return run, nil
}

// RunWithCritic executes the plan and feeds the finished run to the critic.
// An accept or replan verdict is terminal for this run; retry re-enters the
// executor with the same plan restricted to the named steps and their
// downstream dependents, reusing every other step's published result.
func (e *Engine) RunWithCritic(ctx context.Context, p *plan.Plan, c critic.Critic, maxRounds int) (*plan.ExecutionRun, error) {
	if c == nil {
		c = critic.Outcome{}
	}
	if maxRounds <= 0 {
		maxRounds = DefaultCriticRounds
	}

	if err := e.preflight(p); err != nil {
		return nil, err
	}
	sessionCtx, err := e.loadSession(ctx)
	if err != nil {
		return nil, err
	}

	run := e.execute(ctx, p, nil, nil)
	for round := 1; ; round++ {
		v, verr := c.Evaluate(ctx, p, run)
		if verr != nil {
			return run, fmt.Errorf("critic: %w", verr)
		}
		run.Verdict = &v
		if e.cfg.Trace != nil {
			e.cfg.Trace.EmitCriticVerdict(string(v.Decision), v.StepIDs, v.Rationale)
		}
		e.cfg.Logger.Info().
			Str("verdict", string(v.Decision)).
			Ints("steps", v.StepIDs).
			Msg("critic verdict")

		if v.Decision != plan.DecisionRetry || round >= maxRounds {
			break
		}

		subset := downstreamClosure(p, v.StepIDs)
		seed := make(map[int]*plan.StepResult)
		for id, res := range run.Results {
			if !subset[id] {
				seed[id] = res
			}
		}
		run = e.execute(ctx, p, seed, subset)
	}

	if err := e.saveSession(ctx, sessionCtx, run); err != nil {
		return run, err
	}
	return run, nil
}

// preflight runs the gate and the validator. Both reject before any tool
// runs.
func (e *Engine) preflight(p *plan.Plan) error {
	if _, cerr := validate.Gate(p, e.cat); cerr != nil {
		return cerr
	}
	if verr := validate.Validate(p, e.cat); verr != nil {
		return verr
	}
	if p.Impossible() {
		return fmt.Errorf("impossible plan cannot be executed: %s", p.Reason)
	}
	return nil
}

// execute is one scheduler pass. seed holds published results from a prior
// pass (for critic retries); selected restricts execution to a step subset,
// nil meaning all. The results map is written only here, one terminal result
// per step, each published after it is fully computed, so dependent steps can
// never observe a partial result.
func (e *Engine) execute(ctx context.Context, p *plan.Plan, seed map[int]*plan.StepResult, selected map[int]bool) *plan.ExecutionRun {
	start := time.Now()
	run := &plan.ExecutionRun{
		RunID:   uuid.NewString(),
		Goal:    p.Goal,
		Status:  plan.RunAborted,
		Results: make(map[int]*plan.StepResult, len(p.Steps)),
	}
	for id, res := range seed {
		run.Results[id] = res
	}

	if e.cfg.Trace != nil {
		e.cfg.Trace.EmitRunStart(p.Goal, len(p.Steps))
	}

	g := buildGraph(p, selected)

	// Steps whose external (seeded) dependencies did not succeed can never
	// become schedulable; settle them as skipped up front.
	for id, s := range g.steps {
		for _, dep := range s.Dependencies {
			if _, in := g.steps[dep]; in {
				continue
			}
			if r := run.Results[dep]; r == nil || r.Status != plan.StatusSucceeded {
				e.skipFrom(run, g, id, fmt.Sprintf("dependency %d did not succeed", dep))
				break
			}
		}
	}

	ready := []int{}
	for _, id := range g.ready() {
		if run.Results[id] == nil {
			ready = append(ready, id)
		}
	}

	done := make(chan outcome)
	inflight := 0
	aborted := false

	for {
		for !aborted && len(ready) > 0 && inflight < e.cfg.Workers {
			id := ready[0]
			ready = ready[1:]
			step := g.steps[id]

			params, rerr := resolve.Parameters(step.Parameters, run.Results)
			if rerr != nil {
				// Engine defect, not a user-facing failure: abort the run.
				e.cfg.Logger.Error().
					Int("step", id).
					Err(rerr).
					Msg("resolution invariant violated; aborting run")
				e.publish(run, &plan.StepResult{
					StepID: id,
					Status: plan.StatusFailed,
					Error:  &plan.StepError{Kind: "resolution_invariant", Message: rerr.Error()},
				})
				e.skipDependents(run, g, id, "upstream engine defect")
				aborted = true
				break
			}

			spec, serr := e.cat.Lookup(step.Action)
			if serr != nil {
				// Unreachable after the gate; settle defensively.
				e.publish(run, &plan.StepResult{
					StepID: id,
					Status: plan.StatusFailed,
					Error:  &plan.StepError{Kind: errKindTransport, Message: serr.Error()},
				})
				e.skipDependents(run, g, id, "tool lookup failed")
				continue
			}
			handler, herr := e.cat.Handler(step.Action)
			if herr != nil {
				e.publish(run, &plan.StepResult{
					StepID: id,
					Status: plan.StatusFailed,
					Error:  &plan.StepError{Kind: errKindTransport, Message: herr.Error()},
				})
				e.skipDependents(run, g, id, "no handler wired")
				continue
			}

			if e.cfg.Trace != nil {
				e.cfg.Trace.EmitStepStart(id, step.Action)
			}
			e.cfg.Logger.Debug().
				Int("step", id).
				Str("tool", step.Action).
				Msg("dispatching step")

			go e.invoke(ctx, step, spec, handler, params, done)
			inflight++
		}

		if inflight == 0 {
			break
		}

		oc := <-done
		inflight--
		e.publish(run, oc.res)

		if oc.res.Status == plan.StatusSucceeded {
			for _, dep := range g.dependents[oc.id] {
				g.indeg[dep]--
				if g.indeg[dep] == 0 && run.Results[dep] == nil {
					ready = insertSorted(ready, dep)
				}
			}
		} else {
			e.skipDependents(run, g, oc.id, fmt.Sprintf("dependency %d failed", oc.id))
		}
	}

	// Steps never dispatched (abort path) settle as skipped.
	for id := range g.steps {
		if run.Results[id] == nil {
			e.publish(run, &plan.StepResult{
				StepID: id,
				Status: plan.StatusSkipped,
				Error:  &plan.StepError{Kind: "skipped", Message: "run aborted before step was schedulable"},
			})
		}
	}

	run.Status = deriveStatus(run)
	if aborted {
		run.Status = plan.RunAborted
	}
	if e.cfg.Trace != nil {
		e.cfg.Trace.EmitRunComplete(string(run.Status), time.Since(start))
	}
	e.cfg.Logger.Info().
		Str("run", run.RunID).
		Str("status", string(run.Status)).
		Msg("run finished")
	return run
}

// publish writes a step's terminal result exactly once.
func (e *Engine) publish(run *plan.ExecutionRun, res *plan.StepResult) {
	if prev := run.Results[res.StepID]; prev != nil {
		// Single-writer-per-key discipline; a second write is a bug.
		e.cfg.Logger.Error().Int("step", res.StepID).Msg("duplicate result publish suppressed")
		return
	}
	run.Results[res.StepID] = res

	if e.cfg.Trace != nil {
		var failure *trace.Failure
		if res.Error != nil {
			failure = &trace.Failure{Kind: res.Error.Kind, Message: res.Error.Message}
		}
		e.cfg.Trace.EmitStepComplete(res.StepID, string(res.Status), res.Duration, failure)
	}
}

// skipDependents marks every step transitively depending on id as skipped.
// Steps on no dependency path to id are untouched and continue normally.
func (e *Engine) skipDependents(run *plan.ExecutionRun, g *graph, id int, reason string) {
	for _, dep := range g.dependents[id] {
		e.skipFrom(run, g, dep, reason)
	}
}

func (e *Engine) skipFrom(run *plan.ExecutionRun, g *graph, id int, reason string) {
	if run.Results[id] != nil {
		return
	}
	e.publish(run, &plan.StepResult{
		StepID: id,
		Status: plan.StatusSkipped,
		Error:  &plan.StepError{Kind: "skipped", Message: reason},
	})
	e.cfg.Logger.Debug().Int("step", id).Str("reason", reason).Msg("step skipped")
	for _, dep := range g.dependents[id] {
		e.skipFrom(run, g, dep, reason)
	}
}

func deriveStatus(run *plan.ExecutionRun) plan.RunStatus {
	succeeded, failed, skipped := run.Counts()
	switch {
	case failed == 0 && skipped == 0:
		return plan.RunCompleted
	case succeeded == 0:
		return plan.RunAborted
	default:
		return plan.RunPartiallyCompleted
	}
}

func insertSorted(ids []int, id int) []int {
	i := 0
	for i < len(ids) && ids[i] < id {
		i++
	}
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// loadSession reads the prior turn's context; nil store means no session.
func (e *Engine) loadSession(ctx context.Context) (map[string]any, error) {
	if e.cfg.Store == nil {
		return nil, nil
	}
	values, err := e.cfg.Store.Load(ctx, e.cfg.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", e.cfg.SessionID, err)
	}
	if e.cfg.Trace != nil {
		e.cfg.Trace.Emit(trace.EventSessionLoaded, map[string]any{
			"session_id": e.cfg.SessionID,
			"keys":       len(values),
		})
	}
	return values, nil
}

// saveSession writes the final context once at run end: the loaded values
// plus each succeeded step's output under a "stepN" key.
func (e *Engine) saveSession(ctx context.Context, prior map[string]any, run *plan.ExecutionRun) error {
	if e.cfg.Store == nil {
		return nil
	}
	values := make(map[string]any, len(prior)+len(run.Results))
	for k, v := range prior {
		values[k] = v
	}
	for id, res := range run.Results {
		if res.Status == plan.StatusSucceeded {
			values["step"+strconv.Itoa(id)] = res.Output
		}
	}
	if err := e.cfg.Store.Save(ctx, e.cfg.SessionID, values); err != nil {
		return fmt.Errorf("save session %q: %w", e.cfg.SessionID, err)
	}
	if e.cfg.Trace != nil {
		e.cfg.Trace.Emit(trace.EventSessionSaved, map[string]any{
			"session_id": e.cfg.SessionID,
			"keys":       len(values),
		})
	}
	return nil
}
