package app

import "time"

// operationIDLayout formats operation IDs from their start time.
const operationIDLayout = "20060102T150405Z"

// BackupOperation tracks one CLI invocation. Its ID tags every log line and
// every run recorded while it is active.
type BackupOperation struct {
	ID         string
	Operation  string
	Parameters string
	StartedAt  time.Time
	Status     string // "success" or "error"
}

// NewBackupOperation creates a new operation started at now.
func NewBackupOperation(operation, parameters string, now time.Time) *BackupOperation {
	return &BackupOperation{
		ID:         now.UTC().Format(operationIDLayout),
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  now,
		Status:     "success",
	}
}

// Fail marks the operation as failed.
func (op *BackupOperation) Fail() {
	op.Status = "error"
}

// Failed reports whether Fail was called.
func (op *BackupOperation) Failed() bool {
	return op.Status == "error"
}
