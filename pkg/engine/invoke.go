package engine

import (
	"context"
	"errors"
	"time"

	"github.com/ormasoftchile/pert/pkg/plan"
	"github.com/ormasoftchile/pert/pkg/tool"
)

// Engine-synthesized error kinds. Tools declare their own kinds; these cover
// failures the tool never got to report.
const (
	errKindTimeout   = "timeout"
	errKindCancelled = "cancelled"
	errKindTransport = "transport"
)

type outcome struct {
	id  int
	res *plan.StepResult
}

// invoke runs one step to a terminal result, honoring the tool's timeout and
// retrying declared-retryable failures up to the configured bound. It is the
// only writer for its step: the result travels back to the scheduler over
// done and is published there exactly once.
func (e *Engine) invoke(ctx context.Context, step *plan.Step, spec *tool.Spec, h tool.Handler, params map[string]any, done chan<- outcome) {
	timeout := spec.Timeout()
	if step.TimeoutSeconds > 0 {
		timeout = time.Duration(step.TimeoutSeconds) * time.Second
	}

	start := time.Now()
	retries := 0
	for {
		res := e.attempt(ctx, timeout, h, params)
		res.StepID = step.ID
		res.Retries = retries
		res.Duration = time.Since(start)

		if res.Status == plan.StatusSucceeded {
			done <- outcome{id: step.ID, res: res}
			return
		}

		kind := res.Error.Kind
		// A timed-out attempt is treated identically to a tool-reported
		// failure: retryable only if the tool declares the kind so.
		if retries < e.cfg.MaxRetries && spec.Retryable(kind) && ctx.Err() == nil {
			retries++
			if e.cfg.Trace != nil {
				e.cfg.Trace.EmitStepRetry(step.ID, retries, kind)
			}
			e.cfg.Logger.Warn().
				Int("step", step.ID).
				Str("tool", spec.Name).
				Str("kind", kind).
				Int("attempt", retries).
				Msg("retrying step")
			continue
		}

		done <- outcome{id: step.ID, res: res}
		return
	}
}

// attempt performs a single invocation bounded by timeout. If the context
// ends mid-flight, the tool gets the cancellation grace period to return;
// after that the attempt's bookkeeping is force-terminated and the step
// fails as cancelled (or timed out, when the step's own deadline fired).
func (e *Engine) attempt(parent context.Context, timeout time.Duration, h tool.Handler, params map[string]any) *plan.StepResult {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	type reply struct {
		res *tool.Result
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		r, err := h.Invoke(ctx, params)
		ch <- reply{res: r, err: err}
	}()

	select {
	case rp := <-ch:
		return mapReply(rp.res, rp.err)
	case <-ctx.Done():
		select {
		case rp := <-ch:
			if rp.err == nil && rp.res != nil && rp.res.Status == tool.StatusSuccess {
				// The tool beat the grace period with a real result.
				return mapReply(rp.res, nil)
			}
		case <-time.After(e.cfg.CancelGrace):
			// Tool ignored cancellation; abandon it.
		}
		kind := errKindTimeout
		msg := "step exceeded its timeout"
		if parent.Err() != nil {
			kind = errKindCancelled
			msg = "run cancelled while step was in flight"
		}
		return &plan.StepResult{
			Status: plan.StatusFailed,
			Error:  &plan.StepError{Kind: kind, Message: msg},
		}
	}
}

func mapReply(res *tool.Result, err error) *plan.StepResult {
	switch {
	case err != nil:
		kind := errKindTransport
		if errors.Is(err, context.DeadlineExceeded) {
			kind = errKindTimeout
		} else if errors.Is(err, context.Canceled) {
			kind = errKindCancelled
		}
		return &plan.StepResult{
			Status: plan.StatusFailed,
			Error:  &plan.StepError{Kind: kind, Message: err.Error()},
		}
	case res == nil:
		return &plan.StepResult{
			Status: plan.StatusFailed,
			Error:  &plan.StepError{Kind: errKindTransport, Message: "tool returned no envelope"},
		}
	case res.Status == tool.StatusSuccess:
		return &plan.StepResult{
			Status: plan.StatusSucceeded,
			Output: res.Output,
		}
	default:
		se := &plan.StepError{Kind: errKindTransport, Message: "tool reported failure without error detail"}
		if res.Error != nil {
			se = &plan.StepError{Kind: res.Error.Kind, Message: res.Error.Message}
		}
		return &plan.StepResult{
			Status: plan.StatusFailed,
			Error:  se,
		}
	}
}
