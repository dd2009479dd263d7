package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gb-go/internal/app"
	"gb-go/internal/config"
	"gb-go/internal/gb"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// configPath returns the -c flag value or the default config location.
func configPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p, nil
	}
	defaults, err := app.GetDefaults()
	if err != nil {
		return "", fmt.Errorf("getting defaults: %w", err)
	}
	return defaults["config_path"], nil
}

// newApp reads the config and creates a GBApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Backup", "History").
func newApp(cmd *cobra.Command, operation string) (*app.GBApp, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewGBApp(cfg, operation, verbose)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var errCanceled = errors.New("backup canceled")

// confirm asks every notification as a yes/no question. Any answer not
// starting with "y" cancels the backup.
func confirm(questions []string, in io.Reader, out io.Writer) error {
	r := bufio.NewReader(in)
	for _, q := range questions {
		fmt.Fprintf(out, "%s [y/N] ", q)
		answer, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading answer: %w", err)
		}
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			return errCanceled
		}
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "gb",
	Short:        "Incremental generation backups to local devices",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get application defaults
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		path, err := configPath(cmd)
		if err != nil {
			return err
		}

		// Create config with defaults
		cfg := config.NewConfig(defaults["base_dir"])

		// Initialize config file
		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Println("Add at least one [[devices]] entry before running a backup.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath(cmd)
		if err != nil {
			return err
		}

		// Read config
		cfg, err := config.ReadFromFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		// Display config
		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Workers:  %d\n", cfg.Copy.Workers)
		fmt.Printf("Symlinks: %s\n", cfg.Copy.Symlinks)
		if len(cfg.Ignore) > 0 {
			fmt.Printf("Ignore:   %s\n", strings.Join(cfg.Ignore, ", "))
		}
		for _, d := range cfg.Devices {
			kind := d.Type
			if kind == "" {
				kind = string(gb.DeviceLocal)
			}
			fmt.Printf("\nDevice %s (%s)\n", d.Name, kind)
			fmt.Printf("  Path:       %s\n", d.Path)
			fmt.Printf("  Working:    %s\n", d.WorkingFolder)
			fmt.Printf("  Free space: > %.2f GiB\n", d.FreeSpaceThresholdGB)
			for _, s := range d.Sources {
				fmt.Printf("  Source:     %s\n", s.Path)
			}
		}
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nConfiguration is invalid:\n%v\n", err)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up every configured device into a new generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		device, _ := cmd.Flags().GetString("device")

		a, err := newApp(cmd, "Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		if questions := a.Notifications(); len(questions) > 0 && !yes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New("notifications need an interactive terminal; rerun with --yes")
			}
			if err := confirm(questions, os.Stdin, os.Stdout); err != nil {
				return err
			}
		}

		summaries, err := a.Backup(cmd.Context(), device)
		for _, s := range summaries {
			if s.Generation == "" {
				continue
			}
			fmt.Printf("%s  %s  copied %d  skipped %d  ignored %d  %d file(s) %.2f GiB\n",
				s.Device, s.Generation, s.Copied, s.Skipped, s.Ignored,
				s.TotalFiles, gb.BytesToGiB(uint64(s.TotalBytes)))
		}
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		return nil
	},
}

// generations command
var generationsCmd = &cobra.Command{
	Use:   "generations",
	Short: "List the generations of each device",
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")

		a, err := newApp(cmd, "Generations")
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Generations(device)
		if err != nil {
			return err
		}

		for _, d := range list {
			fmt.Printf("%s  %s\n", d.Device, d.WorkingFolder)
			if len(d.Generations) == 0 {
				fmt.Println("  no generations")
				continue
			}
			for _, g := range d.Generations {
				fmt.Printf("  %s\n", g)
			}
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded device runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				d := r.FinishedAt.Sub(r.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %-10s  %s  %s  %-8s  copied %d  skipped %d  %s\n",
				r.OperationID,
				r.Device,
				r.Generation,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				r.Copied,
				r.Skipped,
				duration,
			)
			if r.Error != "" {
				fmt.Printf("    %s\n", r.Error)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default $GB_CONFIG_PATH or ~/.config/gb.toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log ignored entries and other debug events")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().BoolP("yes", "y", false, "Answer yes to every notification")
	backupCmd.Flags().StringP("device", "d", "", "Only back up the named device")
	rootCmd.AddCommand(generationsCmd)
	generationsCmd.Flags().StringP("device", "d", "", "Only list the named device")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
}
