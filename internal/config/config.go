package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"gb-go/internal/fs"
	"gb-go/internal/gb"
)

// Config represents the main configuration for gb.
type Config struct {
	BaseDir       string         `toml:"base_dir"`
	LogDir        string         `toml:"log_dir"`
	Ignore        []string       `toml:"ignore"`
	Notifications []string       `toml:"notifications"`
	Copy          CopyConfig     `toml:"copy"`
	Database      DatabaseConfig `toml:"database"`
	Devices       []DeviceConfig `toml:"devices"`
}

// CopyConfig tunes the copy phase.
type CopyConfig struct {
	Workers  int    `toml:"workers"`  // concurrent file workers, 1 = sequential
	Symlinks string `toml:"symlinks"` // "follow" (default), "preserve" or "skip"
}

// DatabaseConfig represents configuration for the run catalog.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// DeviceConfig describes one backup destination.
type DeviceConfig struct {
	Name                 string         `toml:"name"`
	Path                 string         `toml:"path"`
	WorkingFolder        string         `toml:"working_folder"`
	FreeSpaceThresholdGB float64        `toml:"free_space_threshold_gb"`
	Type                 string         `toml:"type,omitempty"` // "local" (default) or "manual"
	Ignore               []string       `toml:"ignore,omitempty"`
	Sources              []SourceConfig `toml:"sources"`
}

// SourceConfig is one tree or file to back up.
type SourceConfig struct {
	Path   string   `toml:"path"`
	Ignore []string `toml:"ignore,omitempty"`
}

// NewConfig creates a new Config rooted at baseDir with default settings and
// no devices.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Copy: CopyConfig{
			Workers:  1,
			Symlinks: string(gb.SymlinkFollow),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
}

// Validate checks the config for values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Copy.Workers < 1 {
		errs = append(errs, fmt.Errorf("copy.workers must be at least 1, got %d", c.Copy.Workers))
	}
	if _, err := gb.ParseSymlinkPolicy(c.Copy.Symlinks); err != nil {
		errs = append(errs, fmt.Errorf("copy.symlinks: %w", err))
	}
	if err := fs.ValidatePatterns(c.Ignore); err != nil {
		errs = append(errs, err)
	}
	if c.LogDir == "" {
		errs = append(errs, errors.New("log_dir is required"))
	}
	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			errs = append(errs, errors.New("database.data_dir is required for sqlite"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("database.type must be \"sqlite\" or \"memory\", got %q", c.Database.Type))
	}
	if len(c.Devices) == 0 {
		errs = append(errs, errors.New("no devices configured"))
	}

	names := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		label := fmt.Sprintf("devices[%d]", i)
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", label))
		} else {
			label = fmt.Sprintf("device %q", d.Name)
			if names[d.Name] {
				errs = append(errs, fmt.Errorf("%s: duplicate name", label))
			}
			names[d.Name] = true
		}
		if d.Path == "" {
			errs = append(errs, fmt.Errorf("%s: path is required", label))
		}
		if d.WorkingFolder == "" {
			errs = append(errs, fmt.Errorf("%s: working_folder is required", label))
		} else if gb.IsGenerationName(d.WorkingFolder) || d.WorkingFolder == gb.LogFolderName {
			errs = append(errs, fmt.Errorf("%s: working_folder %q is reserved", label, d.WorkingFolder))
		}
		if d.FreeSpaceThresholdGB < 0 {
			errs = append(errs, fmt.Errorf("%s: free_space_threshold_gb must not be negative", label))
		}
		if _, err := gb.ParseDeviceKind(d.Type); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		}
		if err := fs.ValidatePatterns(d.Ignore); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		}
		for _, s := range d.Sources {
			if !filepath.IsAbs(s.Path) {
				errs = append(errs, fmt.Errorf("%s: source path must be absolute: %q", label, s.Path))
			}
			if err := fs.ValidatePatterns(s.Ignore); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", label, err))
			}
		}
	}

	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. An omitted log_dir or
// database section falls back to the NewConfig layout under base_dir.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := &Config{Copy: CopyConfig{Workers: 1}}
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.BaseDir != "" {
		defaults := NewConfig(cfg.BaseDir)
		if cfg.LogDir == "" {
			cfg.LogDir = defaults.LogDir
		}
		if cfg.Database.Type == "" {
			cfg.Database = defaults.Database
		}
	}
	return cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. An existing file is never
// overwritten.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
