package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/asynccmd/internal/config"
)

type listParams struct{}

func (h *handler) listHandler(ctx context.Context, req *sdkmcp.CallToolRequest, _ listParams) (*sdkmcp.CallToolResult, any, error) {
	engine, root := h.current()
	return textResult(formatList(engine.Workspace, root, engine.Config))
}

func formatList(workspace, root string, cfg *config.Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Workspace: %s\n", workspace)
	fmt.Fprintf(&b, "Config: %s\n", filepath.Join(root, config.FileName))
	fmt.Fprintf(&b, "Concurrency: %d\n", cfg.Concurrency())
	if len(cfg.ErrorPhrases) > 0 {
		fmt.Fprintf(&b, "Global error phrases: %s\n", quoteAll(cfg.ErrorPhrases))
	}
	fmt.Fprintln(&b)

	if len(cfg.Commands) == 0 {
		fmt.Fprintln(&b, "Commands: none configured")
		return b.String()
	}

	fmt.Fprintf(&b, "Commands (%d):\n", len(cfg.Commands))
	for _, cmd := range cfg.Commands {
		line := strings.Join(append([]string{cmd.Path}, cmd.Args...), " ")
		fmt.Fprintf(&b, "  %s: %s\n", cmd.Name, line)
		if cmd.Dir != "" {
			fmt.Fprintf(&b, "    dir: %s\n", cmd.Dir)
		}
		if len(cmd.ErrorPhrases) > 0 {
			fmt.Fprintf(&b, "    error phrases: %s\n", quoteAll(cmd.ErrorPhrases))
		}
	}
	return b.String()
}

func quoteAll(ss []string) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
