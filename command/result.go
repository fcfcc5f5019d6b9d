package command

import "time"

// Result is an immutable snapshot of a Command.
type Result struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	ExitCode  int           `json:"exit_code"` // -1 if unknown (not run, spawn failure, killed)
	Log       string        `json:"log"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Duration  time.Duration `json:"duration"`
}

// Failed reports whether the run ended in StatusError.
func (r *Result) Failed() bool {
	return r.Status == StatusError
}
