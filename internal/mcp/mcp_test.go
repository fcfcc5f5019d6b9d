package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/deixis/asynccmd/internal/config"
	"github.com/deixis/asynccmd/internal/report"
	"github.com/deixis/asynccmd/internal/workflow"
)

// setup creates a full asynccmd MCP server + client over in-memory transports.
func setup(t *testing.T, cfg *config.Config) *mcp.ClientSession {
	t.Helper()
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	return setupClient(t, cfg, client)
}

// setupClient is setup with a caller-prepared client.
func setupClient(t *testing.T, cfg *config.Config, client *mcp.Client) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	if cfg == nil {
		cfg = &config.Config{}
	}
	workspace := t.TempDir()
	engine := &workflow.Engine{
		Config:    cfg,
		Store:     report.NewLRUStore(5, report.NewDiskStoreAt(t.TempDir())),
		Logger:    zerolog.Nop(),
		Workspace: workspace,
	}

	server := NewServer(engine, workspace)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}

	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// runID extracts the value of the first "Run: " line.
func runID(t *testing.T, text string) string {
	t.Helper()
	for line := range strings.SplitSeq(text, "\n") {
		if id, ok := strings.CutPrefix(line, "Run: "); ok {
			return id
		}
	}
	t.Fatalf("no run id in:\n%s", text)
	return ""
}

func batchConfig() *config.Config {
	return &config.Config{
		RawConcurrency: 2,
		ErrorPhrases:   []string{"FATAL"},
		Commands: []config.CommandConfig{
			{Name: "greet", Path: "/bin/sh", Args: []string{"-c", "echo hello"}},
			{Name: "broken", Path: "/bin/sh", Args: []string{"-c", "echo starting; echo FATAL: no disk >&2"}},
		},
	}
}

// --- cmd_list ---

func TestCmdList(t *testing.T) {
	cs := setup(t, batchConfig())
	res := callTool(t, cs, "cmd_list", nil)
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{"Workspace:", "Commands (2):", "greet: /bin/sh -c echo hello", `"FATAL"`} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestCmdList_NoCommands(t *testing.T) {
	cs := setup(t, nil)
	text := resultText(callTool(t, cs, "cmd_list", nil))
	if !strings.Contains(text, "none configured") {
		t.Errorf("expected none configured, got:\n%s", text)
	}
}

// --- cmd_run ---

func TestCmdRun_Finished(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "cmd_run", map[string]any{
		"path": "/bin/sh",
		"args": []string{"-c", "seq 1 3"},
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{"Status: FINISHED", "Exit code: 0", "    1\n    2\n    3\n"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
	if strings.Contains(text, "cmd_inspect") {
		t.Errorf("finished run should not suggest inspection:\n%s", text)
	}
}

func TestCmdRun_ErrorPhrase(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "cmd_run", map[string]any{
		"path":          "/bin/sh",
		"args":          []string{"-c", "seq 1 5"},
		"error_phrases": []string{"3"},
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "Status: ERROR") || !strings.Contains(text, "Exit code: 0") {
		t.Errorf("expected error status with exit 0, got:\n%s", text)
	}
	if !strings.Contains(text, "cmd_inspect(run_id=") {
		t.Errorf("expected inspection hint, got:\n%s", text)
	}
}

func TestCmdRun_SpawnFailure(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "cmd_run", map[string]any{"path": "/nonexistent/binary"})
	text := resultText(res)
	if !strings.Contains(text, "Status: ERROR") || !strings.Contains(text, "Exit code: -1") {
		t.Errorf("expected spawn failure, got:\n%s", text)
	}
}

func TestCmdRun_TruncatesLongLogs(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "cmd_run", map[string]any{
		"path": "/bin/sh",
		"args": []string{"-c", "seq 1 500"},
	})
	text := resultText(res)
	if !strings.Contains(text, "Log (last 200 of 500 lines):") {
		t.Errorf("expected truncated log header, got:\n%s", text[:min(len(text), 400)])
	}
	if strings.Contains(text, "    300\n") || !strings.Contains(text, "    301\n") {
		t.Error("expected the last 200 lines only")
	}
}

func TestCmdRun_MissingPath(t *testing.T) {
	cs := setup(t, nil)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "cmd_run",
		Arguments: map[string]any{"args": []string{"x"}},
	})
	if err != nil {
		return // rejected by input schema validation
	}
	if !res.IsError {
		t.Fatalf("expected error result, got: %s", resultText(res))
	}
}

// --- cmd_batch ---

func TestCmdBatch(t *testing.T) {
	cs := setup(t, batchConfig())
	res := callTool(t, cs, "cmd_batch", nil)
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{
		"Status: FAIL",
		"Summary: 1/2 finished, 1 failed",
		"greet: finished",
		"broken: error",
		"broken: starting",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
	if strings.Index(text, "greet: finished") > strings.Index(text, "broken: error") {
		t.Errorf("steps out of configuration order:\n%s", text)
	}
}

func TestCmdBatch_Named(t *testing.T) {
	cs := setup(t, batchConfig())
	res := callTool(t, cs, "cmd_batch", map[string]any{"names": []string{"greet"}})
	text := resultText(res)
	if !strings.Contains(text, "Status: PASS") || !strings.Contains(text, "All commands finished.") {
		t.Errorf("expected pass, got:\n%s", text)
	}
	if strings.Contains(text, "broken") {
		t.Errorf("unrequested command ran:\n%s", text)
	}
}

func TestCmdBatch_UnknownName(t *testing.T) {
	cs := setup(t, batchConfig())
	res := callTool(t, cs, "cmd_batch", map[string]any{"names": []string{"nope"}})
	if !res.IsError {
		t.Fatalf("expected error, got: %s", resultText(res))
	}
	if !strings.Contains(resultText(res), "unknown commands: nope") {
		t.Errorf("unexpected message: %s", resultText(res))
	}
}

// --- cmd_inspect ---

func TestCmdInspect_MissingRunID(t *testing.T) {
	cs := setup(t, nil)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "cmd_inspect",
		Arguments: map[string]any{"pattern": "x"},
	})
	if err != nil {
		return // rejected by input schema validation
	}
	if !res.IsError {
		t.Fatal("expected error for missing run_id")
	}
}

func TestCmdInspect_InvalidRunID(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "cmd_inspect", map[string]any{"run_id": "does-not-exist"})
	if !res.IsError {
		t.Fatal("expected error for unknown run_id")
	}
}

func TestCmdInspect_AfterRun(t *testing.T) {
	cs := setup(t, nil)
	run := callTool(t, cs, "cmd_run", map[string]any{
		"path": "/bin/sh",
		"args": []string{"-c", "echo alpha; echo beta; echo alphabet >&2"},
	})
	id := runID(t, resultText(run))

	res := callTool(t, cs, "cmd_inspect", map[string]any{"run_id": id, "pattern": "alpha"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "2 lines matching \"alpha\"") {
		t.Errorf("expected 2 matches, got:\n%s", text)
	}
	if !strings.Contains(text, "    1: alpha") || !strings.Contains(text, "    3: alphabet") {
		t.Errorf("expected numbered lines, got:\n%s", text)
	}

	none := resultText(callTool(t, cs, "cmd_inspect", map[string]any{"run_id": id, "pattern": "gamma"}))
	if !strings.Contains(none, "No lines matching") {
		t.Errorf("expected no match message, got:\n%s", none)
	}
}

func TestRootPath(t *testing.T) {
	tests := []struct {
		uri  string
		want string
		ok   bool
	}{
		{"file:///home/user/project", "/home/user/project", true},
		{"file://localhost/srv/app", "/srv/app", true},
		{"file://remote/srv/app", "", false},
		{"https://example.com/x", "", false},
		{"file://", "", false},
	}
	for _, tt := range tests {
		got, ok := rootPath(tt.uri)
		if got != tt.want || ok != tt.ok {
			t.Errorf("rootPath(%q) = %q, %v, want %q, %v", tt.uri, got, ok, tt.want, tt.ok)
		}
	}
}

func TestWorkspaceFollowsClientRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfgData := "commands:\n  - name: where\n    path: /bin/sh\n    args: [\"-c\", \"pwd -P\"]\n"
	if err := os.WriteFile(filepath.Join(root, config.FileName), []byte(cfgData), 0o644); err != nil {
		t.Fatal(err)
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	client.AddRoots(&mcp.Root{URI: "file://" + root, Name: "project"})
	cs := setupClient(t, nil, client)

	// The roots lookup runs after initialization; wait for it to land.
	var list string
	deadline := time.Now().Add(5 * time.Second)
	for {
		list = resultText(callTool(t, cs, "cmd_list", nil))
		if strings.Contains(list, "Workspace: "+root+"\n") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("workspace not switched to %s:\n%s", root, list)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(list, "Commands (1):") || !strings.Contains(list, "where: /bin/sh -c pwd -P") {
		t.Errorf("expected configured command in listing:\n%s", list)
	}

	run := resultText(callTool(t, cs, "cmd_run", map[string]any{
		"path": "/bin/sh",
		"args": []string{"-c", "pwd -P"},
	}))
	if !strings.Contains(run, "    "+realRoot+"\n") {
		t.Errorf("cmd_run did not default to the client root %s:\n%s", realRoot, run)
	}

	sub := resultText(callTool(t, cs, "cmd_run", map[string]any{
		"path": "/bin/sh",
		"args": []string{"-c", "pwd -P"},
		"dir":  "sub",
	}))
	if want := filepath.Join(realRoot, "sub"); !strings.Contains(sub, "    "+want+"\n") {
		t.Errorf("relative dir not resolved against %s:\n%s", realRoot, sub)
	}

	batch := resultText(callTool(t, cs, "cmd_batch", map[string]any{"names": []string{"where"}}))
	if !strings.Contains(batch, "Status: PASS") {
		t.Errorf("expected configured command from the client root to run:\n%s", batch)
	}
}
