package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/asynccmd/internal/report"
	"github.com/deixis/asynccmd/internal/workflow"
)

type batchParams struct {
	Names []string `json:"names,omitempty" jsonschema:"names of configured commands to run. Defaults to every configured command."`
}

func (h *handler) batchHandler(ctx context.Context, req *mcp.CallToolRequest, params batchParams) (*mcp.CallToolResult, any, error) {
	engine, _ := h.current()
	result, err := engine.Batch(ctx, params.Names)
	if result == nil {
		return errorResult(fmt.Sprintf("batch failed: %v", err))
	}
	return textResult(formatBatch(result))
}

func formatBatch(result *workflow.BatchResult) string {
	var b strings.Builder

	if result.Failed() {
		fmt.Fprintln(&b, "Status: FAIL")
	} else {
		fmt.Fprintln(&b, "Status: PASS")
	}
	fmt.Fprintf(&b, "Batch: %s\n", result.ID)
	fmt.Fprintf(&b, "Summary: %s\n", report.Summarize(result.Records()))
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Steps:")
	var failed []*report.Record
	for _, s := range result.Steps {
		switch {
		case s.Record == nil:
			fmt.Fprintf(&b, "  %s: %s (%s)\n", s.Name, s.Status, s.Detail)
		default:
			fmt.Fprintf(&b, "  %s: %s (run %s, exit %d)\n", s.Name, s.Status, s.Record.ID, s.Record.ExitCode)
			if s.Record.Failed() {
				failed = append(failed, s.Record)
			}
		}
	}
	fmt.Fprintln(&b)

	if len(failed) == 0 {
		if !result.Failed() {
			fmt.Fprintln(&b, "All commands finished.")
		}
		return b.String()
	}

	fmt.Fprintln(&b, "Failures:")
	for _, r := range failed {
		msg := workflow.FirstLine(r.Log)
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", r.ExitCode)
		}
		fmt.Fprintf(&b, "  %s: %s\n", r.Name, msg)
	}
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Inspect with cmd_inspect(run_id=%q, pattern=\"<text>\").\n", failed[0].ID)

	return b.String()
}
