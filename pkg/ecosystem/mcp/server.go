package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with pert tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"pert",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("pert/validate",
			mcp.WithDescription("Validate a task plan JSON file against a tool catalog"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the plan JSON file")),
			mcp.WithString("tools", mcp.Description("Directory of *.tool.yaml specs to validate against")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("pert/run",
			mcp.WithDescription("Execute a task plan (defaults to dry-run mode for safety)"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the plan JSON file")),
			mcp.WithString("tools", mcp.Required(), mcp.Description("Directory of *.tool.yaml specs")),
			mcp.WithString("mode", mcp.Description("Execution mode: real or dry-run")),
		),
		HandleRun,
	)

	s.AddTool(
		mcp.NewTool("pert/schema",
			mcp.WithDescription("Export the plan JSON Schema"),
		),
		HandleSchema,
	)

	return s
}
