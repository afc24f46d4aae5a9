// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes the allot operations as Model Context Protocol tools:
// solve_assignment, reassign_agent and respace_rows.
package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/service"
)

// Tool names.
const (
	ToolSolve    = "solve_assignment"
	ToolReassign = "reassign_agent"
	ToolRespace  = "respace_rows"
)

// Server wraps the mcp-go server with the allot tools registered.
type Server struct {
	mcpServer *server.MCPServer
	svc       *service.Service
}

// NewServer creates an MCP server backed by svc.
func NewServer(svc *service.Service, name, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		svc:       svc,
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves the tools on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	integers := map[string]any{"type": "integer"}
	binaryRows := map[string]any{"type": "array", "items": integers}

	s.registerTool(mcp.NewTool(ToolSolve,
		mcp.WithDescription("Assign agents to roles maximizing the squared quality of the chosen pairs. "+
			"Roles and agents follow the order of the reference table."),
		mcp.WithArray("role_demand", mcp.Required(), mcp.Items(integers),
			mcp.Description("Exact number of agents required per role")),
		mcp.WithNumber("max_agents", mcp.Required(),
			mcp.Description("Maximum distinct agents; also the minimum number of assigned pairs")),
		mcp.WithArray("agent_capacity", mcp.Items(integers),
			mcp.Description("Optional per-agent capacity overriding the reference table")),
	), func(ctx context.Context, args json.RawMessage) (any, error) {
		var req service.SolveRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return s.svc.Solve(ctx, req)
	})

	s.registerTool(mcp.NewTool(ToolReassign,
		mcp.WithDescription("Hand every role of an agent to the most similar idle agent."),
		mcp.WithString("agent_name", mcp.Required(), mcp.Description("Agent to relieve")),
		mcp.WithArray("assignment_matrix", mcp.Items(binaryRows),
			mcp.Description("Current 0/1 assignment matrix; omit when session_id is given")),
		mcp.WithString("session_id", mcp.Description("Session returned by solve_assignment")),
	), func(ctx context.Context, args json.RawMessage) (any, error) {
		var req service.ReassignRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return s.svc.Reassign(ctx, req)
	})

	s.registerTool(mcp.NewTool(ToolRespace,
		mcp.WithDescription("Reorder 0/1 rows so that consecutive rows overlap as little as possible."),
		mcp.WithArray("rows", mcp.Required(), mcp.Items(binaryRows), mcp.Description("Rows to reorder")),
		mcp.WithArray("original_indices", mcp.Required(), mcp.Items(integers),
			mcp.Description("Identifier of each row, position for position")),
	), func(ctx context.Context, args json.RawMessage) (any, error) {
		var req service.RespaceRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return s.svc.Respace(ctx, req)
	})
}

// registerTool adds a tool whose result is encoded as JSON text. Operation
// failures become tool errors carrying the allot error as JSON.
func (s *Server) registerTool(tool mcp.Tool, handler func(ctx context.Context, args json.RawMessage) (any, error)) {
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return toolError(errors.New(errors.CodeInvalidInput, "arguments are not valid JSON", err)), nil
		}
		out, err := handler(ctx, args)
		if err != nil {
			return toolError(err), nil
		}
		payload, err := json.Marshal(out)
		if err != nil {
			return toolError(errors.New(errors.CodeInternal, "encode result", err)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	})
}

func decodeArgs(args json.RawMessage, dst any) error {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, dst); err != nil {
		if ae := errors.AsAllotError(err); ae.Code == errors.CodeInvalidInput {
			return ae
		}
		return errors.New(errors.CodeInvalidInput, "arguments do not match the tool schema", err)
	}
	return nil
}

func toolError(err error) *mcp.CallToolResult {
	payload, merr := json.Marshal(errors.AsAllotError(err))
	if merr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(payload))
}
