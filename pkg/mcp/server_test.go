// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/allot/pkg/reference"
	"github.com/jllopis/allot/pkg/service"
	"github.com/jllopis/allot/pkg/session"
	allottest "github.com/jllopis/allot/pkg/testing"
)

func newTestClient(t *testing.T) *client.Client {
	t.Helper()
	svc, err := service.New(service.Options{
		Source:   reference.NewStatic(allottest.ScenarioATable(t)),
		Sessions: session.NewMemoryStore(),
	})
	require.NoError(t, err)

	c, err := client.NewInProcessClient(NewServer(svc, "allot-test", "0.0.0").MCPServer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "allot-test", Version: "0.0.0"}
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)
	return c
}

func callTool(t *testing.T, c *client.Client, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)

	var text string
	switch content := res.Content[0].(type) {
	case mcp.TextContent:
		text = content.Text
	case *mcp.TextContent:
		text = content.Text
	default:
		t.Fatalf("unexpected content %T", res.Content[0])
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	return out, res.IsError
}

func TestListTools(t *testing.T) {
	c := newTestClient(t)

	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})

	require.NoError(t, err)
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{ToolSolve, ToolReassign, ToolRespace}, names)
}

func TestSolveThenReassign(t *testing.T) {
	c := newTestClient(t)

	solved, isErr := callTool(t, c, ToolSolve, map[string]any{"role_demand": []int{1, 1}, "max_agents": 2})
	require.False(t, isErr)
	require.Equal(t, "Optimal", solved["status"])
	require.InDelta(t, 41.0, solved["objective_value"], 1e-9)

	swapped, isErr := callTool(t, c, ToolReassign, map[string]any{
		"session_id": solved["session_id"],
		"agent_name": "a2",
	})
	require.False(t, isErr)
	require.Equal(t, "a1", swapped["replacement_name"])
}

func TestRespaceRows(t *testing.T) {
	c := newTestClient(t)

	out, isErr := callTool(t, c, ToolRespace, map[string]any{
		"rows":             [][]int{{1, 1, 0}, {1, 1, 0}, {1, 1, 0}},
		"original_indices": []int{2, 0, 1},
	})

	require.False(t, isErr)
	require.Equal(t, []any{0.0, 1.0, 2.0}, out["reordered_indices"])
}

func TestFailuresAreToolErrors(t *testing.T) {
	c := newTestClient(t)

	out, isErr := callTool(t, c, ToolSolve, map[string]any{"role_demand": []int{5, 0}, "max_agents": 2})
	require.True(t, isErr)
	require.Equal(t, "INFEASIBLE", out["code"])

	out, isErr = callTool(t, c, ToolReassign, map[string]any{
		"assignment_matrix": [][]int{{1, 0}, {0, 0}, {0, 1}},
		"agent_name":        "nobody",
	})
	require.True(t, isErr)
	require.Equal(t, "INVALID_INPUT", out["code"])

	out, isErr = callTool(t, c, ToolSolve, map[string]any{"role_demand": "one", "max_agents": 2})
	require.True(t, isErr)
	require.Equal(t, "INVALID_INPUT", out["code"])
}
