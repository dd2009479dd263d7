package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gb-go/internal/config"
	"gb-go/internal/database"
	"gb-go/internal/fs"
	"gb-go/internal/gb"
)

// GBApp is the application layer between the CLI and the backup Service.
// It constructs all dependencies from config, converts configured devices and
// manages the catalog and log lifecycle on Close.
type GBApp struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	service *gb.Service
	devices []gb.Device
	op      *BackupOperation
	clock   gb.Clock
	level   slog.Level
	logOut  io.Writer
	logger  *slog.Logger
	logFile *os.File
}

// NewGBApp creates a fully wired GBApp from the given config.
// operation identifies the CLI command being run (e.g. "Backup", "History").
// verbose enables debug lines such as ignored entries.
// The caller must call Close when done.
func NewGBApp(cfg *config.Config, operation string, verbose bool) (*GBApp, error) {
	return newGBApp(cfg, operation, verbose, gb.RealClock{}, os.Stderr)
}

func newGBApp(cfg *config.Config, operation string, verbose bool, clock gb.Clock, stderr io.Writer) (*GBApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	devices, err := devicesFromConfig(cfg.Devices)
	if err != nil {
		return nil, err
	}
	policy, err := gb.ParseSymlinkPolicy(cfg.Copy.Symlinks)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	op := NewBackupOperation(operation, "", clock.Now())
	logFile, err := openAppLog(cfg.LogDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logOut := io.MultiWriter(logFile, stderr)
	logger := newLogger(logOut, op.ID, level)

	fsys := fs.NewOSFilesystem()
	opts := gb.CopyOptions{Workers: cfg.Copy.Workers, Symlinks: policy}
	svc := gb.NewService(fsys, db, &slogAdapter{l: logger}, clock, gb.UUIDGenerator{}, opts, cfg.Ignore)

	return &GBApp{
		cfg:     cfg,
		db:      db,
		service: svc,
		devices: devices,
		op:      op,
		clock:   clock,
		level:   level,
		logOut:  logOut,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// devicesFromConfig converts the configured devices into engine devices.
func devicesFromConfig(cfgs []config.DeviceConfig) ([]gb.Device, error) {
	devices := make([]gb.Device, 0, len(cfgs))
	for _, c := range cfgs {
		kind, err := gb.ParseDeviceKind(c.Type)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", c.Name, err)
		}
		sources := make([]gb.Source, 0, len(c.Sources))
		for _, s := range c.Sources {
			sources = append(sources, gb.Source{Path: s.Path, Ignore: s.Ignore})
		}
		devices = append(devices, gb.Device{
			Name:               c.Name,
			Root:               c.Path,
			WorkingFolderName:  c.WorkingFolder,
			FreeSpaceThreshold: c.FreeSpaceThresholdGB,
			Kind:               kind,
			Ignore:             c.Ignore,
			Sources:            sources,
		})
	}
	return devices, nil
}

// Devices returns the configured devices in config order.
func (a *GBApp) Devices() []gb.Device {
	return a.devices
}

// Notifications returns the reminders shown before a backup starts.
func (a *GBApp) Notifications() []string {
	return a.cfg.Notifications
}

// selectDevices returns every device, or only the named one.
func (a *GBApp) selectDevices(name string) ([]gb.Device, error) {
	if name == "" {
		return a.devices, nil
	}
	for _, d := range a.devices {
		if d.Name == name {
			return []gb.Device{d}, nil
		}
	}
	return nil, fmt.Errorf("unknown device: %s", name)
}

// Backup runs every selected device in config order. The first failing
// device aborts the backup; summaries of the devices run so far are returned
// with the error.
func (a *GBApp) Backup(ctx context.Context, deviceName string) ([]*gb.Summary, error) {
	a.op.Parameters = deviceName
	devices, err := a.selectDevices(deviceName)
	if err != nil {
		a.op.Fail()
		return nil, err
	}

	a.logger.Info("backup started", "devices", len(devices))
	var summaries []*gb.Summary
	for _, d := range devices {
		sum, err := a.runDevice(ctx, d)
		if sum != nil {
			summaries = append(summaries, sum)
		}
		if err != nil {
			a.op.Fail()
			return summaries, fmt.Errorf("device %s: %w", d.Name, err)
		}
	}
	return summaries, nil
}

// runDevice runs one device, also logging to a file inside the device's
// working folder when the device is mounted.
func (a *GBApp) runDevice(ctx context.Context, d gb.Device) (*gb.Summary, error) {
	svc := a.service
	if d.Kind == gb.DeviceLocal && isDir(d.Root) {
		f, err := openDeviceLog(d.LogFolder(), a.clock.Now().Format(deviceLogLayout))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		logger := newLogger(io.MultiWriter(a.logOut, f), a.op.ID, a.level)
		svc = svc.WithLogger(&slogAdapter{l: logger})
	}
	return svc.RunDevice(ctx, d, a.op.ID)
}

// DeviceGenerations lists the generations of one device, newest first.
type DeviceGenerations struct {
	Device        string
	WorkingFolder string
	Generations   []string
}

// Generations lists the generation chain of every selected device.
func (a *GBApp) Generations(deviceName string) ([]DeviceGenerations, error) {
	devices, err := a.selectDevices(deviceName)
	if err != nil {
		return nil, err
	}
	out := make([]DeviceGenerations, 0, len(devices))
	for _, d := range devices {
		chain, err := gb.NewChain(d)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.Name, err)
		}
		out = append(out, DeviceGenerations{
			Device:        d.Name,
			WorkingFolder: chain.WorkingFolder,
			Generations:   chain.Generations,
		})
	}
	return out, nil
}

// History returns the most recent device runs.
func (a *GBApp) History(limit int) ([]*gb.Run, error) {
	return a.db.ListRuns(limit)
}

// Close finalizes the operation and closes all resources.
func (a *GBApp) Close() error {
	var firstErr error

	attrs := []any{
		"operation", a.op.Operation,
		"parameters", a.op.Parameters,
		"duration", a.clock.Now().Sub(a.op.StartedAt).Round(time.Millisecond),
	}
	if a.op.Failed() {
		a.logger.Error("operation failed", attrs...)
	} else {
		a.logger.Info("operation finished", attrs...)
	}

	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
