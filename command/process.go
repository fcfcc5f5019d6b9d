package command

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// Process is the OS process primitive driven by a Command.
//
// Start spawns the executable and returns the read ends of its stdout and
// stderr. Wait blocks until the process exits and reports its exit code.
// Wait is called exactly once, and only after a successful Start. The
// Command closes both returned streams.
type Process interface {
	Start(path string, args []string, dir string) (stdout, stderr io.ReadCloser, err error)
	Wait() (exitCode int, err error)
}

// execProcess runs the executable with os/exec. Output goes through
// os.Pipe rather than exec's pipe helpers so that reading can continue
// independently of Wait.
type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Start(path string, args []string, dir string) (io.ReadCloser, io.ReadCloser, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return nil, nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	// Path is used as given: no PATH lookup.
	p.cmd = &exec.Cmd{
		Path:   path,
		Args:   append([]string{path}, args...),
		Dir:    dir,
		Stdout: outW,
		Stderr: errW,
	}
	err = p.cmd.Start()

	// The child holds its own copies of the write ends. Ours must be closed
	// or the readers never see EOF.
	_ = outW.Close()
	_ = errW.Close()

	if err != nil {
		_ = outR.Close()
		_ = errR.Close()
		return nil, nil, err
	}
	return outR, errR, nil
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// -1 when terminated by a signal.
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// resolveDir turns a working directory reference into a local directory
// path. It accepts a plain path or a file:// URL and returns "" for
// anything that is not an existing local directory, in which case the
// process inherits the caller's working directory.
func resolveDir(ref string) string {
	if ref == "" {
		return ""
	}

	path := ref
	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil || u.Scheme != "file" {
			return ""
		}
		if u.Host != "" && u.Host != "localhost" {
			return ""
		}
		path = u.Path
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return ""
	}
	return path
}
