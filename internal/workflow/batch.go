package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/deixis/asynccmd/command"
	"github.com/deixis/asynccmd/internal/report"
)

// Step statuses. Finished and error mirror the command status.
const (
	StepFinished = string(command.StatusFinished)
	StepError    = string(command.StatusError)
	StepSkipped  = "skipped"
)

// BatchResult holds the outcome of a batch run.
type BatchResult struct {
	ID    string       `json:"id"`
	Steps []StepResult `json:"steps"` // in configuration order
}

// StepResult holds the outcome of one command in a batch.
type StepResult struct {
	Name   string         `json:"name"`
	Status string         `json:"status"`           // finished, error, skipped
	Record *report.Record `json:"record,omitempty"` // nil when skipped
	Detail string         `json:"detail,omitempty"` // why the step was skipped, or a housekeeping error
}

// Failed reports whether any step did not finish cleanly.
func (r *BatchResult) Failed() bool {
	for _, s := range r.Steps {
		if s.Status != StepFinished {
			return true
		}
	}
	return false
}

// Records returns the records of the steps that ran.
func (r *BatchResult) Records() []*report.Record {
	var out []*report.Record
	for _, s := range r.Steps {
		if s.Record != nil {
			out = append(out, s.Record)
		}
	}
	return out
}

// Batch runs configured commands concurrently, at most
// Config.Concurrency() at a time. With no names, every configured command
// runs. Unknown names fail the batch before anything starts.
//
// Commands are never interrupted: once ctx is done, commands that have not
// started yet are skipped and running ones complete. The returned error is
// the first output-release failure, if any; the result is always complete.
func (e *Engine) Batch(ctx context.Context, names []string) (*BatchResult, error) {
	specs, err := e.batchSpecs(names)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		ID:    uuid.New().String(),
		Steps: make([]StepResult, len(specs)),
	}
	log := e.Logger.With().Str("batch_id", result.ID).Logger()
	log.Info().Int("commands", len(specs)).Int("concurrency", e.Config.Concurrency()).Msg("starting batch")

	var g errgroup.Group
	g.SetLimit(e.Config.Concurrency())
	for i, spec := range specs {
		g.Go(func() error {
			step := &result.Steps[i]
			step.Name = spec.Name
			if err := ctx.Err(); err != nil {
				step.Status = StepSkipped
				step.Detail = err.Error()
				return nil
			}

			record, err := e.Run(ctx, spec)
			if record == nil {
				step.Status = StepSkipped
				step.Detail = err.Error()
				return nil
			}
			step.Record = record
			step.Status = string(record.Status)
			if err != nil {
				step.Detail = err.Error()
			}
			return err
		})
	}
	err = g.Wait()

	log.Info().Stringer("summary", report.Summarize(result.Records())).Msg("batch completed")
	return result, err
}

// batchSpecs returns the requested commands in configuration order.
func (e *Engine) batchSpecs(names []string) ([]Spec, error) {
	all := e.Config.CommandNames()
	if len(all) == 0 {
		return nil, fmt.Errorf("no commands configured")
	}
	if len(names) == 0 {
		names = all
	}

	want := make(map[string]bool, len(names))
	var unknown []string
	for _, name := range names {
		if _, ok := e.Config.Command(name); !ok {
			unknown = append(unknown, name)
			continue
		}
		want[name] = true
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, fmt.Errorf("unknown commands: %s", strings.Join(slices.Compact(unknown), ", "))
	}

	var specs []Spec
	for _, name := range all {
		if want[name] {
			cc, _ := e.Config.Command(name)
			specs = append(specs, SpecFromConfig(cc))
		}
	}
	return specs, nil
}
