package gb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Service runs the incremental backup of one device at a time.
type Service struct {
	fsys   Filesystem
	runs   RunStore
	logger Logger
	clock  Clock
	idgen  IDGenerator
	opts   CopyOptions
	ignore []string
}

// NewService creates a Service. ignore holds the patterns applied to every
// source of every device.
func NewService(fsys Filesystem, runs RunStore, logger Logger, clock Clock, idgen IDGenerator, opts CopyOptions, ignore []string) *Service {
	return &Service{
		fsys:   fsys,
		runs:   runs,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
		opts:   opts,
		ignore: ignore,
	}
}

// WithLogger returns a copy of the service that logs to logger.
func (s *Service) WithLogger(logger Logger) *Service {
	c := *s
	c.logger = logger
	return &c
}

// RunDevice backs up every source of device into a new generation named after
// the current date. operationID groups the runs of one invocation.
//
// Any error aborts the device and must abort the whole backup. A generation
// left behind by a failed copy is incomplete and has to be removed by hand;
// the next run refuses to start while it exists.
func (s *Service) RunDevice(ctx context.Context, device Device, operationID string) (*Summary, error) {
	if device.Kind == DeviceManual {
		s.logger.Info("manual copy required", "device", device.Name, "path", device.WorkingFolder())
		for _, src := range device.Sources {
			s.logger.Info("manual source", "path", src.Path)
		}
		return &Summary{Device: device.Name}, nil
	}

	generation := GenerationName(s.clock.Now())
	run := &Run{
		ID:          s.idgen.New(),
		OperationID: operationID,
		Device:      device.Name,
		Generation:  generation,
		StartedAt:   s.clock.Now(),
		Status:      RunRunning,
	}
	if err := s.runs.CreateRun(run); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}

	summary, err := s.runDevice(ctx, device, generation)
	if summary != nil {
		run.Copied = summary.Copied
		run.Skipped = summary.Skipped
		run.Ignored = summary.Ignored
		run.BytesCopied = summary.BytesCopied
	}
	run.Status = RunSuccess
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		s.logger.Error("backup aborted", "device", device.Name, "error", err)
	}
	finished := s.clock.Now()
	run.FinishedAt = &finished

	if ferr := s.runs.FinishRun(run); ferr != nil {
		if err == nil {
			return summary, fmt.Errorf("recording run result: %w", ferr)
		}
		s.logger.Warn("recording run result failed", "error", ferr)
	}
	return summary, err
}

func (s *Service) runDevice(ctx context.Context, device Device, generation string) (*Summary, error) {
	chain, err := NewChain(device)
	if err != nil {
		return nil, err
	}

	if err := NewPreflight(s.fsys, s.logger).Check(device, generation); err != nil {
		return nil, err
	}

	if len(chain.Generations) > 0 {
		s.logger.Info("previous generations found", "count", len(chain.Generations), "latest", strings.Join(head(chain.Generations, 3), ","))
	} else {
		s.logger.Info("initial (full) backup")
	}

	target, err := createGeneration(chain, generation)
	if err != nil {
		return nil, err
	}
	s.logger.Info("generation created", "path", target)

	copier := NewTreeCopier(chain, target, s.fsys, nil, s.opts, s.logger)
	s.logger.Info("copying data", "sources", len(device.Sources))
	for _, src := range device.Sources {
		if err := ctx.Err(); err != nil {
			sum := copier.Summary()
			return &sum, err
		}
		copier.matcher = s.fsys.Matcher(s.ignore, device.Ignore, src.Ignore)
		if err := copier.CopyTree(ctx, src.Path); err != nil {
			sum := copier.Summary()
			return &sum, err
		}
	}

	summary := copier.Summary()
	s.logger.Info("postprocessing", "path", target)
	if err := measureGeneration(target, &summary); err != nil {
		return &summary, err
	}
	s.logger.Info("backup finished",
		"device", device.Name,
		"copied", summary.Copied,
		"skipped", summary.Skipped,
		"ignored", summary.Ignored,
		"files", summary.TotalFiles,
		"size", fmt.Sprintf("%.2f GiB", BytesToGiB(uint64(summary.TotalBytes))),
	)
	return &summary, nil
}

// createGeneration creates the generation folder exclusively.
func createGeneration(chain *Chain, generation string) (string, error) {
	if err := os.MkdirAll(chain.WorkingFolder, 0o755); err != nil {
		return "", fmt.Errorf("creating working folder: %w", err)
	}
	target := chain.Path(generation)
	if err := os.Mkdir(target, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", &PreflightError{Check: CheckGeneration, Path: target, Err: ErrGenerationExists}
		}
		return "", fmt.Errorf("creating generation: %w", err)
	}
	return target, nil
}

// measureGeneration counts the files physically written to the generation.
func measureGeneration(target string, summary *Summary) error {
	return filepath.WalkDir(target, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		summary.TotalFiles++
		summary.TotalBytes += info.Size()
		return nil
	})
}

func head(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
