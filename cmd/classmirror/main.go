package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"classmirror/internal/app"
	"classmirror/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a MirrorApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Sync", "History").
func newApp(cmd *cobra.Command, operation, parameters string) (*app.MirrorApp, *config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewMirrorApp(cmd.Context(), cfg, operation, parameters)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, cfg, nil
}

// resolveToken picks the API token: environment first, then the config
// file, then an interactive prompt when stdin is a terminal.
func resolveToken(cfg *config.Config) (string, error) {
	if token := os.Getenv(config.EnvGitHubToken); token != "" {
		return token, nil
	}
	if cfg.GitHub.Token != "" {
		return cfg.GitHub.Token, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", nil
	}

	fmt.Fprint(os.Stderr, "API token: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

var rootCmd = &cobra.Command{
	Use:   "classmirror",
	Short: "Mirror a classroom source repository and its forks into a local database",
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
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		cfg.LogDir = defaults["log_dir"]

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Printf("Database: %s\n", cfg.Database.Path)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Database: %s (%s)\n", cfg.Database.Path, cfg.Database.Type)
		fmt.Printf("Archive:  %s\n", cfg.Archive.Type)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync OWNER/NAME",
	Short: "Run one synchronization pass against a source repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]

		a, cfg, err := newApp(cmd, "Sync", source)
		if err != nil {
			return err
		}
		defer a.Close()

		token, err := resolveToken(cfg)
		if err != nil {
			return err
		}

		if err := a.Sync(cmd.Context(), source, token); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("Synchronized %s\n", source)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, _, err := newApp(cmd, "History", "")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.GetHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt != nil {
				d := run.FinishedAt.Sub(run.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-10s  %-25s  %s  %-8s  %s\n",
				run.ID,
				run.Operation,
				run.Parameters,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Status,
				duration,
			)
		}
		return nil
	},
}

// assignments command
var assignmentsCmd = &cobra.Command{
	Use:   "assignments OWNER/NAME",
	Short: "List assignments derived from a source repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd, "Assignments", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		assignments, err := a.GetAssignments(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(assignments) == 0 {
			fmt.Println("No assignments recorded.")
			return nil
		}

		for _, as := range assignments {
			fmt.Printf("%-30s  %s\n", as.Name, as.Path)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(assignmentsCmd)
}
