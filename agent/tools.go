package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// getArgs extracts arguments from a tool call request as a map
func getArgs(request mcp.CallToolRequest) map[string]any {
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

// ToolServer exposes workflow-facing tools to the local-model agent over
// MCP. The tool listing is the session's tool-discovery source; enumerating
// it once per session, not per call, is what keeps per-call latency down.
type ToolServer struct {
	mcpServer *server.MCPServer
	sseServer *server.SSEServer
	tools     []mcp.Tool

	mutex     sync.RWMutex
	variables map[string]any
}

// NewToolServer creates the MCP server and registers the workflow tools.
func NewToolServer() *ToolServer {
	t := &ToolServer{variables: map[string]any{}}

	mcpServer := server.NewMCPServer(
		"flow-agent",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	getVariableTool := mcp.NewTool("get_variable",
		mcp.WithDescription("Get the value of a workflow variable"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The variable name"),
		),
	)
	mcpServer.AddTool(getVariableTool, t.handleGetVariable)
	t.tools = append(t.tools, getVariableTool)

	listVariablesTool := mcp.NewTool("list_variables",
		mcp.WithDescription("List the names of all workflow variables"),
	)
	mcpServer.AddTool(listVariablesTool, t.handleListVariables)
	t.tools = append(t.tools, listVariablesTool)

	t.mcpServer = mcpServer
	return t
}

// Start serves the tools over SSE on the given port.
func (t *ToolServer) Start(port int) error {
	t.sseServer = server.NewSSEServer(t.mcpServer)
	go func() {
		// Serve until Stop; startup errors surface on first client use
		_ = t.sseServer.Start(fmt.Sprintf(":%d", port))
	}()
	return nil
}

// Stop shuts the SSE server down, if one was started.
func (t *ToolServer) Stop() {
	if t.sseServer != nil {
		_ = t.sseServer.Shutdown(context.Background())
	}
}

// Tools returns the registered tool listing for session tool discovery.
func (t *ToolServer) Tools() []mcp.Tool {
	tools := make([]mcp.Tool, len(t.tools))
	copy(tools, t.tools)
	return tools
}

// BindVariables replaces the variable snapshot the tools read from.
func (t *ToolServer) BindVariables(variables map[string]any) {
	snapshot := make(map[string]any, len(variables))
	for k, v := range variables {
		snapshot[k] = v
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.variables = snapshot
}

func (t *ToolServer) handleGetVariable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	name, ok := args["name"].(string)
	if !ok || name == "" {
		return mcp.NewToolResultError("missing 'name' argument"), nil
	}

	t.mutex.RLock()
	value, exists := t.variables[name]
	t.mutex.RUnlock()

	if !exists {
		return mcp.NewToolResultError(fmt.Sprintf("variable %q not found", name)), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("variable %q is not serializable", name)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *ToolServer) handleListVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.mutex.RLock()
	names := make([]string, 0, len(t.variables))
	for name := range t.variables {
		names = append(names, name)
	}
	t.mutex.RUnlock()

	sort.Strings(names)
	data, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
