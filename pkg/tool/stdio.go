package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// StdioHandler dispatches an invocation to a subprocess: resolved parameters
// are written as JSON on stdin, and the process prints the invocation
// envelope as JSON on stdout. A non-zero exit with no envelope becomes a
// failure of kind "process".
type StdioHandler struct {
	Binary string
	Args   []string
}

// NewStdioHandler builds a handler from a spec's declared transport.
func NewStdioHandler(spec *Spec) (*StdioHandler, error) {
	if spec.Binary == "" {
		return nil, fmt.Errorf("tool %s declares no binary", spec.Name)
	}
	return &StdioHandler{Binary: spec.Binary, Args: spec.Args}, nil
}

func (h *StdioHandler) Invoke(ctx context.Context, params map[string]any) (*Result, error) {
	input, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}

	cmd := exec.CommandContext(ctx, h.Binary, h.Args...) //#nosec G204 -- binary comes from a tool spec authored by the catalog owner
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var res Result
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &res); err == nil && res.Status != "" {
		return &res, nil
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return &Result{
				Status: StatusFailure,
				Error: &Error{
					Kind:    "process",
					Message: fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), firstLine(stderr.String())),
				},
			}, nil
		}
		return nil, fmt.Errorf("exec %q: %w", h.Binary, runErr)
	}

	return nil, fmt.Errorf("tool %q printed no invocation envelope", h.Binary)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
