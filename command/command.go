// Package command runs one external process asynchronously, drains its
// stdout and stderr while it runs, and classifies the outcome from the
// exit code and a set of error phrases.
//
// A Command is configured once with New, run once with Run, then
// inspected with Status, Log and Result. Process outcomes (spawn failure,
// non-zero exit, error phrase in the output) are reported through Status,
// never as errors from Run.
package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDrainGrace bounds how long Run waits, after the process exits,
// for its output streams to reach EOF.
const DefaultDrainGrace = 2 * time.Second

// chunkSize is the read buffer size for each output stream.
const chunkSize = 4096

// ErrAlreadyRun is returned when Run is called more than once.
var ErrAlreadyRun = errors.New("command already run")

// Options configures a Command.
type Options struct {
	// Name identifies the command in diagnostics only.
	Name string

	// Path is the path to the executable. It is not looked up in PATH.
	Path string

	// Args are passed to the process. May be nil.
	Args []string

	// Dir is the working directory, as a path or a file:// URL.
	// If empty or not an existing local directory, the process inherits
	// the caller's working directory.
	Dir string

	// ErrorPhrases are case-sensitive substrings. If any appears in the
	// log, the run is an error regardless of the exit code.
	ErrorPhrases []string

	// Verbose emits lifecycle and output diagnostics to Sink.
	Verbose bool

	// Sink receives diagnostics when Verbose is set.
	// Defaults to WriterSink(os.Stdout).
	Sink Sink

	// Process spawns the executable. Defaults to an os/exec implementation.
	Process Process

	// DrainGrace defaults to DefaultDrainGrace.
	DrainGrace time.Duration
}

// Command is a single run of an external process.
//
// Status, Log, ExitCode and Result are safe to call concurrently with Run;
// they may observe intermediate states while Run is in progress.
type Command struct {
	id           string
	name         string
	path         string
	args         []string
	dir          string
	errorPhrases []string
	verbose      bool
	sink         Sink
	proc         Process
	drainGrace   time.Duration

	mu        sync.RWMutex
	started   bool
	status    Status
	outputLog strings.Builder
	errorLog  strings.Builder
	exitCode  int
	startedAt time.Time
	duration  time.Duration
}

// New creates a Command. Nothing is validated: a missing executable is
// reported when the command is run.
func New(opts Options) *Command {
	c := &Command{
		id:           uuid.New().String(),
		name:         opts.Name,
		path:         opts.Path,
		args:         slices.Clone(opts.Args),
		dir:          opts.Dir,
		errorPhrases: slices.Clone(opts.ErrorPhrases),
		verbose:      opts.Verbose,
		sink:         opts.Sink,
		proc:         opts.Process,
		drainGrace:   opts.DrainGrace,
		status:       StatusReady,
		exitCode:     -1,
	}
	if c.sink == nil {
		c.sink = WriterSink(os.Stdout)
	}
	if c.proc == nil {
		c.proc = &execProcess{}
	}
	if c.drainGrace <= 0 {
		c.drainGrace = DefaultDrainGrace
	}
	return c
}

// Run spawns the process and blocks until it has exited and its output
// has been collected.
//
// Status stays running until the output is collected and the run is
// classified, which can be up to DrainGrace after the process exits. A
// terminal status is only observed once Run is about to return.
//
// Run returns nil for every process outcome; check Status. A non-nil
// error means the output streams could not be closed. Run may only be
// called once; later calls return ErrAlreadyRun.
func (c *Command) Run() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyRun
	}
	c.started = true
	c.startedAt = time.Now()
	c.mu.Unlock()

	c.emit(EventStart, "")
	defer func() {
		c.emit(strings.ToUpper(string(c.Status())), "")
	}()

	stdout, stderr, err := c.proc.Start(c.path, c.args, resolveDir(c.dir))
	if err != nil {
		c.mu.Lock()
		c.errorLog.WriteString(err.Error())
		c.status = StatusError
		c.duration = time.Since(c.startedAt)
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	c.status = StatusRunning
	c.mu.Unlock()

	exited := make(chan struct{})
	var exitCode int
	var waitErr error
	go func() {
		defer close(exited)
		exitCode, waitErr = c.proc.Wait()
	}()

	var readers sync.WaitGroup
	readers.Go(func() { c.drain(stdout, EventStdout, &c.outputLog) })
	readers.Go(func() { c.drain(stderr, EventStderr, &c.errorLog) })

	<-exited

	flushed := make(chan struct{})
	go func() {
		readers.Wait()
		close(flushed)
	}()

	// Readers hit EOF once every holder of the pipes' write ends is gone.
	// A descendant that outlives the process can keep them open, so the
	// wait is bounded and closing the streams unblocks the readers.
	grace := time.NewTimer(c.drainGrace)
	select {
	case <-flushed:
	case <-grace.C:
	}
	grace.Stop()

	closeErr := errors.Join(
		closeStream("stdout", stdout),
		closeStream("stderr", stderr),
	)
	<-flushed

	c.mu.Lock()
	if waitErr != nil {
		// No usable exit code; keep the reason next to the process output.
		if c.errorLog.Len() > 0 {
			c.errorLog.WriteString("\n")
		}
		c.errorLog.WriteString(waitErr.Error())
		if exitCode == 0 {
			exitCode = -1
		}
	}
	c.exitCode = exitCode
	c.duration = time.Since(c.startedAt)
	c.status = StatusFinished
	if exitCode != 0 || containsAny(c.logLocked(), c.errorPhrases) {
		c.status = StatusError
	}
	c.mu.Unlock()

	return closeErr
}

// drain reads r until it fails, appending decodable chunks to dst.
func (c *Command) drain(r io.Reader, event string, dst *strings.Builder) {
	var dec decoder
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if text, ok := dec.decode(buf[:n]); ok && text != "" {
				c.mu.Lock()
				dst.WriteString(text)
				c.mu.Unlock()
				c.emit(event, text)
			}
		}
		if err != nil {
			return
		}
	}
}

func closeStream(name string, rc io.Closer) error {
	if err := rc.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	return nil
}

func (c *Command) emit(event, text string) {
	if !c.verbose {
		return
	}
	c.sink.Emit(strings.ToUpper(c.name), event, text)
}

// ID returns the unique identifier assigned to this run.
func (c *Command) ID() string {
	return c.id
}

// Name returns the configured name.
func (c *Command) Name() string {
	return c.name
}

// Status returns the current lifecycle state.
func (c *Command) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// ExitCode returns the process exit code, or -1 if it is not known.
func (c *Command) ExitCode() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exitCode
}

// Log returns the captured stdout followed by the captured stderr,
// separated by a newline when both are non-empty, with surrounding
// whitespace trimmed.
func (c *Command) Log() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logLocked()
}

func (c *Command) logLocked() string {
	return joinLogs(c.outputLog.String(), c.errorLog.String())
}

// Result returns a snapshot of the command's current state.
func (c *Command) Result() *Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Result{
		ID:        c.id,
		Name:      c.name,
		Status:    c.status,
		ExitCode:  c.exitCode,
		Log:       c.logLocked(),
		StartedAt: c.startedAt,
		Duration:  c.duration,
	}
}

func joinLogs(out, errs string) string {
	var b strings.Builder
	sep := ""
	if out != "" {
		b.WriteString(out)
		sep = "\n"
	}
	if errs != "" {
		b.WriteString(sep)
		b.WriteString(errs)
	}
	return strings.TrimSpace(b.String())
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}
