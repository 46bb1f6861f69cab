// Package cli implements the streamhouse command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/streamhouse/streamhouse/internal/app"
	"github.com/streamhouse/streamhouse/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

type globalFlags struct {
	configFile string
	dataDir    string
	stage      string
	dev        bool
	output     string
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "streamhouse",
		Short:         "Hourly partition registration for streaming warehouse tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOutputFormat(flags.output)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "Base directory for local data files")
	pf.StringVar(&flags.stage, "stage", "", "Deployment stage")
	pf.BoolVar(&flags.dev, "dev", false, "Use the development schedule")
	pf.StringVarP(&flags.output, "output", "o", "table", "Output format: table, json")

	rootCmd.AddCommand(
		newRunCmd(flags),
		newTickCmd(flags),
		newRenderCmd(flags),
		newTablesCmd(flags),
		newPartitionsCmd(flags),
		newDriftCmd(flags),
		newGenerateCmd(flags),
		newVersionCmd(flags),
	)
	return rootCmd
}

func validateOutputFormat(output string) error {
	if output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

// loadConfig loads configuration from file, environment, and command line
// flags, in increasing priority.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if flags.configFile != "" {
		cfg, err = config.LoadFromFile(flags.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	pf := cmd.Root().PersistentFlags()
	if pf.Changed("data-dir") {
		cfg.DataDir = flags.dataDir
	}
	if pf.Changed("stage") {
		cfg.Stage = flags.stage
	}
	if pf.Changed("dev") {
		cfg.Dev = flags.dev
	}
	return cfg, nil
}

// openApp builds the application without starting it. The caller must Stop it.
func openApp(cmd *cobra.Command, flags *globalFlags) (*app.App, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg)
}

func withApp(cmd *cobra.Command, flags *globalFlags, fn func(a *app.App) error) error {
	a, err := openApp(cmd, flags)
	if err != nil {
		return err
	}
	defer a.Stop(context.Background())
	return fn(a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "streamhouse version %s (commit: %s)\n", version, commit)
			return err
		},
	}
}
