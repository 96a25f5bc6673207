// Package main is the entry point for the sysrev CLI, which runs,
// resumes, and inspects systematic literature review workflows.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reviewkit/reviewkit/internal/config"
	"github.com/reviewkit/reviewkit/internal/observability"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sysrev",
	Short: "Automated systematic literature reviews",
	Long: `sysrev runs a systematic literature review end to end: database search,
deduplication, two-stage screening, data extraction, quality assessment,
and manuscript writing, with per-phase checkpoints so interrupted runs
can resume.

Configuration comes from a YAML file plus SYSREV_-prefixed environment
variables. LLM API keys are read exclusively from SYSREV_LLM_OPENAI_API_KEY
and SYSREV_LLM_ANTHROPIC_API_KEY.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./config.yaml, ./config/config.yaml, /etc/sysrev/config.yaml)")
}

// loadConfig loads configuration honoring the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newObserver builds the per-run logger, metrics registry, and cost
// tracker from configuration.
func newObserver(cfg *config.Config) *observability.Observer {
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return observability.NewObserver(logger, cfg.Metrics.Namespace)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
