package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_FromRoot(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `version: 1
concurrency: 3
drain_grace: 500ms
error_phrases: ["panic:"]
commands:
  - name: count
    path: /bin/sh
    args: ["-c", "echo 1"]
    dir: sub
    error_phrases: ["3", "panic:"]
`)

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != dir {
		t.Errorf("Root = %q, want %q", res.Root, dir)
	}
	cfg := res.Config
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Concurrency() != 3 {
		t.Errorf("Concurrency() = %d, want 3", cfg.Concurrency())
	}
	if cfg.DrainGrace() != 500*time.Millisecond {
		t.Errorf("DrainGrace() = %v, want 500ms", cfg.DrainGrace())
	}

	cmd, ok := cfg.Command("count")
	if !ok {
		t.Fatal("command count not found")
	}
	if cmd.Dir != filepath.Join(dir, "sub") {
		t.Errorf("Dir = %q, want %q", cmd.Dir, filepath.Join(dir, "sub"))
	}
	if got := strings.Join(cfg.PhrasesFor(cmd), ","); got != "panic:,3" {
		t.Errorf("PhrasesFor = %q, want %q", got, "panic:,3")
	}
}

func TestLoad_FromSubdirectory(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "version: 2\n")

	sub := filepath.Join(root, "pkg", "foo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != root {
		t.Errorf("Root = %q, want %q", res.Root, root)
	}
	if res.Config.Version != 2 {
		t.Errorf("Config.Version = %d, want 2", res.Config.Version)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	dir := t.TempDir()

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != dir {
		t.Errorf("Root = %q, want %q (fallback to workspace)", res.Root, dir)
	}
	cfg := res.Config
	if len(cfg.Commands) != 0 {
		t.Errorf("expected no commands, got %d", len(cfg.Commands))
	}
	if cfg.Concurrency() != runtime.NumCPU() {
		t.Errorf("Concurrency() = %d, want %d", cfg.Concurrency(), runtime.NumCPU())
	}
	if cfg.DrainGrace() != DefaultDrainGrace {
		t.Errorf("DrainGrace() = %v, want %v", cfg.DrainGrace(), DefaultDrainGrace)
	}
	if cfg.LogLevel() != "info" || cfg.LogFormat() != "console" {
		t.Errorf("log = %s/%s, want info/console", cfg.LogLevel(), cfg.LogFormat())
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "commands: [\n")

	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_InvalidCommands(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `commands:
  - name: a
    path: /bin/true
  - name: a
    path: /bin/false
  - path: /bin/echo
  - name: nopath
`)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{`duplicate name "a"`, "commands[2]: name is required", "commands[3]: path is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadFile_KeepsAbsoluteAndURLDirs(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `commands:
  - name: abs
    path: /bin/true
    dir: /var/tmp
  - name: url
    path: /bin/true
    dir: file:///var/tmp
`)

	cfg, err := LoadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Commands[0].Dir != "/var/tmp" {
		t.Errorf("abs Dir = %q", cfg.Commands[0].Dir)
	}
	if cfg.Commands[1].Dir != "file:///var/tmp" {
		t.Errorf("url Dir = %q", cfg.Commands[1].Dir)
	}
	if got := strings.Join(cfg.CommandNames(), ","); got != "abs,url" {
		t.Errorf("CommandNames = %q, want abs,url", got)
	}
}

func TestDrainGrace_InvalidFallsBack(t *testing.T) {
	cfg := &Config{RawDrainGrace: "soon"}
	if cfg.DrainGrace() != DefaultDrainGrace {
		t.Errorf("DrainGrace() = %v, want default", cfg.DrainGrace())
	}
}
