// Package workflow runs commands on behalf of the CLI and the MCP server:
// single ad-hoc runs and concurrent batches of configured commands.
// Every run is recorded in a report.Store.
package workflow

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deixis/asynccmd/command"
	"github.com/deixis/asynccmd/internal/config"
	"github.com/deixis/asynccmd/internal/report"
)

// Engine holds shared dependencies for all workflow operations.
type Engine struct {
	Config    *config.Config // required
	Store     report.Store   // nil disables recording
	Logger    zerolog.Logger // the zero value discards
	Sink      command.Sink   // verbose diagnostics; nil prints to stdout
	Workspace string         // default working directory and base for relative paths
}

// Spec describes a single command invocation.
type Spec struct {
	Name         string
	Path         string
	Args         []string
	Dir          string
	ErrorPhrases []string
	Verbose      bool
}

// SpecFromConfig converts a configured command to a Spec.
func SpecFromConfig(cc config.CommandConfig) Spec {
	return Spec{
		Name:         cc.Name,
		Path:         cc.Path,
		Args:         cc.Args,
		Dir:          cc.Dir,
		ErrorPhrases: cc.ErrorPhrases,
		Verbose:      cc.Verbose,
	}
}

// ResolveExecutable returns an absolute path for name:
//
//   - Absolute paths are returned unchanged.
//   - Paths containing a separator are resolved against the workspace.
//   - Bare names are looked up on PATH.
//
// A name that cannot be resolved is returned unchanged; running it then
// fails at spawn time and is reported as an error status.
func (e *Engine) ResolveExecutable(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	if strings.ContainsRune(name, filepath.Separator) {
		if e.Workspace == "" {
			return name
		}
		return filepath.Join(e.Workspace, name)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return name
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// resolveDir defaults the working directory to the workspace and
// resolves relative paths against it. URLs are passed through.
func (e *Engine) resolveDir(dir string) string {
	switch {
	case dir == "":
		return e.Workspace
	case e.Workspace == "", filepath.IsAbs(dir), strings.Contains(dir, "://"):
		return dir
	}
	return filepath.Join(e.Workspace, dir)
}

// Run executes one command, records it and returns the record.
//
// A failed process (spawn failure, non-zero exit, error phrase) is not an
// error: inspect the record's Status. An error is returned if ctx is done
// before the command starts, or if the command's output streams could not
// be released; in the latter case the record is still returned.
func (e *Engine) Run(ctx context.Context, spec Spec) (*report.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := e.ResolveExecutable(spec.Path)
	name := spec.Name
	if name == "" {
		name = filepath.Base(spec.Path)
	}
	dir := e.resolveDir(spec.Dir)

	c := command.New(command.Options{
		Name:         name,
		Path:         path,
		Args:         spec.Args,
		Dir:          dir,
		ErrorPhrases: e.Config.PhrasesFor(config.CommandConfig{ErrorPhrases: spec.ErrorPhrases}),
		Verbose:      spec.Verbose || e.Config.Verbose,
		Sink:         e.Sink,
		DrainGrace:   e.Config.DrainGrace(),
	})

	log := e.Logger.With().Str("command", name).Str("run_id", c.ID()).Logger()
	log.Debug().Str("path", path).Strs("args", spec.Args).Msg("starting command")

	runErr := c.Run()
	record := report.NewRecord(c.Result(), path, spec.Args)

	if e.Store != nil {
		if err := e.Store.Save(record); err != nil {
			log.Warn().Err(err).Msg("saving run record")
		}
	}

	ev := log.Info()
	if record.Failed() {
		ev = log.Warn()
	}
	ev.Str("status", string(record.Status)).
		Int("exit_code", record.ExitCode).
		Dur("duration", record.Duration).
		Msg("command completed")

	if runErr != nil {
		log.Error().Err(runErr).Msg("releasing command output")
		return record, fmt.Errorf("running %s: %w", name, runErr)
	}
	return record, nil
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	for line := range strings.SplitSeq(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
