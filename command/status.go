package command

// Status is the lifecycle state of a Command.
type Status string

const (
	// StatusReady is the state of a Command that has not been run.
	StatusReady Status = "ready"
	// StatusRunning means the process has been spawned and has not exited.
	StatusRunning Status = "running"
	// StatusFinished means the process exited zero and no error phrase matched.
	StatusFinished Status = "finished"
	// StatusError means the process failed to spawn, exited non-zero,
	// or produced output containing an error phrase.
	StatusError Status = "error"
)

// Terminal reports whether no further transitions can occur from s.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError
}
