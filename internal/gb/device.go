package gb

import (
	"fmt"
	"path/filepath"
)

// DeviceKind selects how a device is handled during a run.
type DeviceKind string

const (
	// DeviceLocal is a mounted filesystem the engine copies into.
	DeviceLocal DeviceKind = "local"
	// DeviceManual is a destination the engine cannot write to; the run only
	// reports which sources need a manual copy.
	DeviceManual DeviceKind = "manual"
)

// ParseDeviceKind converts a config value into a DeviceKind.
// An empty value means DeviceLocal.
func ParseDeviceKind(s string) (DeviceKind, error) {
	switch DeviceKind(s) {
	case "", DeviceLocal:
		return DeviceLocal, nil
	case DeviceManual:
		return DeviceManual, nil
	default:
		return "", fmt.Errorf("unknown device type: %s", s)
	}
}

// Source is one tree or single file to back up.
type Source struct {
	Path   string
	Ignore []string
}

// Device is a backup destination. Ignore applies to every source of the
// device in addition to each source's own list.
type Device struct {
	Name               string
	Root               string
	WorkingFolderName  string
	FreeSpaceThreshold float64 // GiB
	Kind               DeviceKind
	Ignore             []string
	Sources            []Source
}

// WorkingFolder returns the folder holding the device's generations and logs.
func (d Device) WorkingFolder() string {
	return filepath.Join(d.Root, d.WorkingFolderName)
}

// LogFolder returns the folder receiving per-run log files for the device.
func (d Device) LogFolder() string {
	return filepath.Join(d.WorkingFolder(), LogFolderName)
}
