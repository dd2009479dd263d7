package gb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Preflight validates a device before its copy phase starts.
type Preflight struct {
	fsys   Filesystem
	logger Logger
}

// NewPreflight creates a Preflight using fsys for disk usage.
func NewPreflight(fsys Filesystem, logger Logger) *Preflight {
	return &Preflight{fsys: fsys, logger: logger}
}

// Check runs, in order: every source exists, the device root exists, free
// space exceeds the threshold, and the generation folder is not there yet.
// The first failure is returned as a *PreflightError.
func (p *Preflight) Check(device Device, generation string) error {
	p.logger.Info("checking sources", "device", device.Name, "count", len(device.Sources))
	for _, src := range device.Sources {
		if _, err := os.Stat(src.Path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				err = ErrSourceMissing
			}
			return &PreflightError{Check: CheckSources, Path: src.Path, Err: err}
		}
		p.logger.Debug("source ok", "path", src.Path)
	}

	p.logger.Info("preparing target device", "path", device.Root)
	info, err := os.Stat(device.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrDeviceMissing
		}
		return &PreflightError{Check: CheckDevice, Path: device.Root, Err: err}
	}
	if !info.IsDir() {
		return &PreflightError{Check: CheckDevice, Path: device.Root, Err: fmt.Errorf("%w: not a directory", ErrDeviceMissing)}
	}

	usage, err := p.fsys.Usage(device.Root)
	if err != nil {
		return &PreflightError{Check: CheckFreeSpace, Path: device.Root, Err: err}
	}
	free := BytesToGiB(usage.Free)
	if free <= device.FreeSpaceThreshold {
		return &PreflightError{
			Check: CheckFreeSpace,
			Path:  device.Root,
			Err:   fmt.Errorf("%w: %.2f GiB free, threshold %.2f GiB", ErrInsufficientSpace, free, device.FreeSpaceThreshold),
		}
	}
	p.logger.Info("free space ok",
		"total", fmt.Sprintf("%.2f GiB", BytesToGiB(usage.Total)),
		"used", fmt.Sprintf("%.2f GiB", BytesToGiB(usage.Used)),
		"free", fmt.Sprintf("%.2f GiB", free),
	)

	target := filepath.Join(device.WorkingFolder(), generation)
	if _, err := os.Lstat(target); err == nil {
		return &PreflightError{Check: CheckGeneration, Path: target, Err: ErrGenerationExists}
	} else if !isNotExist(err) {
		return &PreflightError{Check: CheckGeneration, Path: target, Err: err}
	}
	p.logger.Info("target generation available", "path", target)

	return nil
}
