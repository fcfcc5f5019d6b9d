// Package mcp provides the asynccmd MCP server, registering all tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/asynccmd"
	"github.com/deixis/asynccmd/command"
	"github.com/deixis/asynccmd/internal/config"
	"github.com/deixis/asynccmd/internal/workflow"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu     sync.RWMutex
	engine *workflow.Engine
	root   string // directory containing .asynccmd, or the workspace
}

// NewServer creates an MCP server with all asynccmd tools registered.
// Runs are recorded in engine.Store, which cmd_inspect reads back.
//
// Verbose diagnostics never go to stdout, which may carry the stdio
// transport: when engine.Sink is nil they are logged through engine.Logger.
func NewServer(engine *workflow.Engine, root string) *mcp.Server {
	eng := *engine
	if eng.Sink == nil {
		eng.Sink = command.LoggerSink(eng.Logger)
	}
	if root == "" {
		root = eng.Workspace
	}
	h := &handler{engine: &eng, root: root}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "asynccmd", Version: asynccmd.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "cmd_list",
		Description: "List the workspace and the commands configured in its .asynccmd file.",
	}, h.listHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "cmd_run",
		Description: `Run one executable to completion and classify the outcome.

The run is "error" when the exit code is non-zero or any error phrase appears in the
combined output (stdout, then stderr). Phrases are case-sensitive; the configured global
phrases always apply. Results are stored for drill-down via cmd_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "cmd_batch",
		Description: `Run configured commands concurrently and report each outcome.

Runs every command from .asynccmd, or only the named ones. Commands that already started
always complete; if the request is cancelled, the rest are skipped.`,
	}, h.batchHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "cmd_inspect",
		Description: `Search the log of a stored run from cmd_run or cmd_batch.

Returns the log lines containing pattern with their line numbers, or the whole log
when pattern is empty.`,
	}, h.inspectHandler)

	return s
}

// current returns the engine and config root in effect.
func (h *handler) current() (*workflow.Engine, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine, h.root
}

// updateWorkspaceFromRoots queries the client for MCP roots and switches
// the engine to the first file root, reloading its configuration.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	workspace, ok := rootPath(roots.Roots[0].URI)
	if !ok {
		return
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		engine, _ := h.current()
		engine.Logger.Warn().Err(err).Str("workspace", workspace).Msg("loading config from client root")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	eng := *h.engine
	eng.Config = loaded.Config
	eng.Workspace = workspace
	h.engine = &eng
	h.root = loaded.Root
	eng.Logger.Info().Str("workspace", workspace).Msg("workspace updated from client root")
}

// rootPath returns the local path of a file:// root URI.
func rootPath(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", false
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", false
	}
	return u.Path, true
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
