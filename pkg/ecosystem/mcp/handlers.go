package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/pert/pkg/engine"
	"github.com/ormasoftchile/pert/pkg/plan"
	"github.com/ormasoftchile/pert/pkg/tool"
	"github.com/ormasoftchile/pert/pkg/validate"
)

// HandleValidate implements the pert/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errorResult(fmt.Sprintf("read plan: %s", err)), nil
	}

	if errs := validate.ValidateDocument(data); len(errs) > 0 {
		return errorResult(formatErrors(errs)), nil
	}

	p, err := plan.Decode(data)
	if err != nil {
		return errorResult(fmt.Sprintf("decode plan: %s", err)), nil
	}

	if toolsDir, _ := args["tools"].(string); toolsDir != "" {
		cat, err := tool.LoadCatalog(toolsDir)
		if err != nil {
			return errorResult(fmt.Sprintf("load tools: %s", err)), nil
		}
		if _, cerr := validate.Gate(p, cat); cerr != nil {
			return errorResult(cerr.Error()), nil
		}
		if verr := validate.Validate(p, cat); verr != nil {
			return errorResult(verr.Error()), nil
		}
	}

	return textResult(fmt.Sprintf("✓ plan is valid (%d steps)", len(p.Steps))), nil
}

// HandleSchema implements the pert/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := plan.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleRun implements the pert/run MCP tool.
func HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	toolsDir, _ := args["tools"].(string)
	if toolsDir == "" {
		return errorResult("tools argument is required"), nil
	}
	mode, _ := args["mode"].(string)
	if mode == "" {
		mode = "dry-run" // safe default for AI agents
	}

	p, err := plan.LoadFile(path)
	if err != nil {
		return errorResult(fmt.Sprintf("load plan: %s", err)), nil
	}
	cat, err := tool.LoadCatalog(toolsDir)
	if err != nil {
		return errorResult(fmt.Sprintf("load tools: %s", err)), nil
	}

	if _, cerr := validate.Gate(p, cat); cerr != nil {
		return errorResult(cerr.Error()), nil
	}
	if verr := validate.Validate(p, cat); verr != nil {
		return errorResult(verr.Error()), nil
	}

	if mode == "dry-run" {
		levels, err := engine.Levels(p)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		response := map[string]any{
			"mode":   mode,
			"goal":   p.Goal,
			"waves":  levels,
			"status": "not-executed",
		}
		data, _ := json.MarshalIndent(response, "", "  ")
		return textResult(string(data)), nil
	}

	eng := engine.New(cat, engine.Config{})
	run, err := eng.Run(ctx, p)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	succeeded, failed, skipped := run.Counts()
	response := map[string]any{
		"run_id":    run.RunID,
		"status":    string(run.Status),
		"succeeded": succeeded,
		"failed":    failed,
		"skipped":   skipped,
	}
	data, _ := json.MarshalIndent(response, "", "  ")

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: run.Status == plan.RunAborted,
	}, nil
}

func formatErrors(errs []*validate.Error) string {
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Rule, e.Message))
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
