package tool

import (
	"context"
	"runtime"
	"testing"
)

func skipWithoutSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stdio tests need /bin/sh")
	}
}

func shHandler(script string) *StdioHandler {
	return &StdioHandler{Binary: "/bin/sh", Args: []string{"-c", script}}
}

func TestStdioHandler_SuccessEnvelope(t *testing.T) {
	skipWithoutSh(t)
	h := shHandler(`echo '{"status":"success","output":{"greeting":"hello"}}'`)

	res, err := h.Invoke(context.Background(), map[string]any{"name": "world"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("status = %s", res.Status)
	}
	if res.Output["greeting"] != "hello" {
		t.Errorf("output = %v", res.Output)
	}
}

func TestStdioHandler_FailureEnvelope(t *testing.T) {
	skipWithoutSh(t)
	h := shHandler(`echo '{"status":"failure","error":{"kind":"rate_limited","message":"slow down"}}'`)

	res, err := h.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Status != StatusFailure {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Error == nil || res.Error.Kind != "rate_limited" {
		t.Errorf("error = %+v", res.Error)
	}
}

func TestStdioHandler_ReadsParamsFromStdin(t *testing.T) {
	skipWithoutSh(t)
	h := shHandler(`read line; echo "{\"status\":\"success\",\"output\":{\"got\":$line}}"`)

	res, err := h.Invoke(context.Background(), map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s", res.Status)
	}
	got, ok := res.Output["got"].(map[string]any)
	if !ok || got["k"] != "v" {
		t.Errorf("echoed params = %v", res.Output["got"])
	}
}

func TestStdioHandler_NonZeroExitWithoutEnvelope(t *testing.T) {
	skipWithoutSh(t)
	h := shHandler(`echo "boom" >&2; exit 3`)

	res, err := h.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Status != StatusFailure {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Error.Kind != "process" {
		t.Errorf("kind = %s", res.Error.Kind)
	}
}

func TestStdioHandler_GarbageOutput(t *testing.T) {
	skipWithoutSh(t)
	h := shHandler(`echo "not json"`)

	if _, err := h.Invoke(context.Background(), nil); err == nil {
		t.Fatal("expected error for missing envelope")
	}
}

func TestNewStdioHandler_RequiresBinary(t *testing.T) {
	if _, err := NewStdioHandler(&Spec{Name: "x"}); err == nil {
		t.Fatal("expected error for spec without binary")
	}
}
