// Package report persists command run records and lets callers search
// their logs after the fact.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/deixis/asynccmd/command"
)

// Store persists and retrieves run records.
type Store interface {
	Save(record *Record) error
	Load(runID string) (*Record, error)
}

// Record is the stored outcome of one command run.
type Record struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Path      string         `json:"path"`
	Args      []string       `json:"args,omitempty"`
	Status    command.Status `json:"status"`
	ExitCode  int            `json:"exit_code"`
	Log       string         `json:"log,omitempty"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	Duration  time.Duration  `json:"duration"`
}

// NewRecord builds a record from a command result and the invocation that
// produced it.
func NewRecord(res *command.Result, path string, args []string) *Record {
	return &Record{
		ID:        res.ID,
		Name:      res.Name,
		Path:      path,
		Args:      args,
		Status:    res.Status,
		ExitCode:  res.ExitCode,
		Log:       res.Log,
		StartedAt: res.StartedAt,
		Duration:  res.Duration,
	}
}

// Failed reports whether the run ended in an error status.
func (r *Record) Failed() bool {
	return r.Status == command.StatusError
}

// Commandline returns the path and arguments joined for display.
func (r *Record) Commandline() string {
	if len(r.Args) == 0 {
		return r.Path
	}
	return r.Path + " " + strings.Join(r.Args, " ")
}

// Line is a single line of a run log.
type Line struct {
	Number int // 1-based
	Text   string
}

// Search returns the log lines of r containing pattern. An empty pattern
// returns every line.
func Search(r *Record, pattern string) []Line {
	if r.Log == "" {
		return nil
	}
	var out []Line
	for i, text := range strings.Split(r.Log, "\n") {
		if strings.Contains(text, pattern) {
			out = append(out, Line{Number: i + 1, Text: text})
		}
	}
	return out
}

// Tally counts records by status.
type Tally struct {
	Finished int
	Failed   int
	Other    int // not run, or still running
}

// Total returns the number of counted records.
func (t Tally) Total() int {
	return t.Finished + t.Failed + t.Other
}

func (t Tally) String() string {
	return fmt.Sprintf("%d/%d finished, %d failed", t.Finished, t.Total(), t.Failed)
}

// Summarize counts records by status. Nil records count as Other.
func Summarize(records []*Record) Tally {
	var t Tally
	for _, r := range records {
		switch {
		case r == nil:
			t.Other++
		case r.Status == command.StatusFinished:
			t.Finished++
		case r.Status == command.StatusError:
			t.Failed++
		default:
			t.Other++
		}
	}
	return t
}
