package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/asynccmd/internal/report"
)

type inspectParams struct {
	RunID   string `json:"run_id" jsonschema:"the run ID from a cmd_run or cmd_batch result"`
	Pattern string `json:"pattern,omitempty" jsonschema:"case-sensitive text to search for in the log. Empty returns the whole log."`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	engine, _ := h.current()
	if engine.Store == nil {
		return errorResult("runs are not recorded by this server")
	}

	record, err := engine.Store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	lines := report.Search(record, params.Pattern)
	if len(lines) == 0 {
		if params.Pattern == "" {
			return textResult(fmt.Sprintf("Run %s (%s) produced no output.", record.ID, record.Name))
		}
		return textResult(fmt.Sprintf("No lines matching %q in run %s (%s).", params.Pattern, record.ID, record.Name))
	}

	return textResult(formatInspect(record, params.Pattern, lines))
}

func formatInspect(r *report.Record, pattern string, lines []report.Line) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s (%s, %s, exit %d)\n", r.ID, r.Name, r.Status, r.ExitCode)
	fmt.Fprintf(&b, "Command: %s\n", r.Commandline())
	if pattern != "" {
		fmt.Fprintf(&b, "%d lines matching %q:\n", len(lines), pattern)
	}
	fmt.Fprintln(&b)

	for _, l := range lines {
		fmt.Fprintf(&b, "%5d: %s\n", l.Number, l.Text)
	}
	return b.String()
}
