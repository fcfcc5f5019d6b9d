package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/asynccmd/internal/report"
	"github.com/deixis/asynccmd/internal/workflow"
)

// maxLogLines bounds the log tail included in a cmd_run result.
const maxLogLines = 200

type runParams struct {
	Path         string   `json:"path" jsonschema:"executable to run: absolute path, path relative to the workspace, or a name looked up on PATH"`
	Args         []string `json:"args,omitempty" jsonschema:"arguments passed verbatim, without shell interpretation"`
	Name         string   `json:"name,omitempty" jsonschema:"display name for diagnostics. Defaults to the executable's base name."`
	Dir          string   `json:"dir,omitempty" jsonschema:"working directory as a path or file:// URL. Defaults to the workspace."`
	ErrorPhrases []string `json:"error_phrases,omitempty" jsonschema:"case-sensitive phrases that mark the run as error when found in its output"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if params.Path == "" {
		return errorResult("path is required")
	}

	engine, _ := h.current()
	record, err := engine.Run(ctx, workflow.Spec{
		Name:         params.Name,
		Path:         params.Path,
		Args:         params.Args,
		Dir:          params.Dir,
		ErrorPhrases: params.ErrorPhrases,
	})
	if record == nil {
		return errorResult(fmt.Sprintf("run failed: %v", err))
	}

	text := formatRun(record)
	if err != nil {
		text += fmt.Sprintf("\nWarning: %v\n", err)
	}
	return textResult(text)
}

func formatRun(r *report.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(string(r.Status)))
	fmt.Fprintf(&b, "Run: %s\n", r.ID)
	fmt.Fprintf(&b, "Command: %s\n", r.Commandline())
	fmt.Fprintf(&b, "Exit code: %d\n", r.ExitCode)
	fmt.Fprintf(&b, "Duration: %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintln(&b)

	if r.Log == "" {
		fmt.Fprintln(&b, "Log: (empty)")
		return b.String()
	}

	lines := strings.Split(r.Log, "\n")
	if n := len(lines) - maxLogLines; n > 0 {
		fmt.Fprintf(&b, "Log (last %d of %d lines):\n", maxLogLines, len(lines))
		lines = lines[n:]
	} else {
		fmt.Fprintln(&b, "Log:")
	}
	for _, line := range lines {
		fmt.Fprintf(&b, "    %s\n", line)
	}

	if r.Failed() {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Inspect with cmd_inspect(run_id=%q, pattern=\"<text>\").\n", r.ID)
	}
	return b.String()
}
