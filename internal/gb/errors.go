package gb

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

var (
	ErrSourceMissing     = errors.New("source does not exist")
	ErrDeviceMissing     = errors.New("device path not found")
	ErrInsufficientSpace = errors.New("free space threshold exceeded")
	ErrGenerationExists  = errors.New("target generation already exists")
)

// PreflightCheck names one of the checks run before a device is copied.
type PreflightCheck string

const (
	CheckSources    PreflightCheck = "sources"
	CheckDevice     PreflightCheck = "device"
	CheckFreeSpace  PreflightCheck = "free_space"
	CheckGeneration PreflightCheck = "generation"
)

// PreflightError reports a failed preflight check. Any PreflightError aborts
// the whole run.
type PreflightError struct {
	Check PreflightCheck
	Path  string
	Err   error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight %s check failed for %s: %v", e.Check, e.Path, e.Err)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// CopyError reports an I/O failure while deciding or copying one entry.
type CopyError struct {
	Path string
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copying %s: %v", e.Path, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// isNotExist also accepts ENOTDIR, returned when a path component is a file.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
