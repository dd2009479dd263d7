package gb

import "time"

// RunStatus is the outcome of a device run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Run records one device's backup within an operation.
type Run struct {
	ID          string
	OperationID string
	Device      string
	Generation  string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      RunStatus
	Copied      int64
	Skipped     int64
	Ignored     int64
	BytesCopied int64
	Error       string
}

// RunStore persists run records.
type RunStore interface {
	// CreateRun inserts a new run in the running state.
	CreateRun(run *Run) error

	// FinishRun stores the final status, counters and finish time of a run.
	FinishRun(run *Run) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*Run, error)

	// Close closes the underlying storage.
	Close() error
}

// Summary reports what a device run did.
type Summary struct {
	Device      string
	Generation  string
	Copied      int64
	Skipped     int64
	Ignored     int64
	BytesCopied int64

	// TotalFiles and TotalBytes count what is physically present in the new
	// generation after the copy phase.
	TotalFiles int64
	TotalBytes int64
}
