package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reviewkit/reviewkit/internal/config"
	"github.com/reviewkit/reviewkit/internal/observability"
	"github.com/reviewkit/reviewkit/internal/pipeline"
	httpserver "github.com/reviewkit/reviewkit/internal/server/http"
	"github.com/reviewkit/reviewkit/internal/workflow"
)

// quickMaxResults caps per-database results in --quick mode.
const quickMaxResults = 25

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full review workflow",
	Long: `Run executes every workflow phase for the configured topic in a fresh
checkpoint directory. Use --dry-run to print the execution plan without
calling any external service, and --quick for a reduced-size trial run.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
			printPlan(cfg)
			return nil
		}

		if quick, _ := cmd.Flags().GetBool("quick"); quick && cfg.Workflow.MaxResults > quickMaxResults {
			cfg.Workflow.MaxResults = quickMaxResults
		}

		obs := newObserver(cfg)
		obs.Logger.Info().
			Str("topic", cfg.Topic.Name).
			Strs("databases", cfg.Workflow.Databases).
			Int("max_results", cfg.Workflow.MaxResults).
			Msg("starting review workflow")

		p, err := pipeline.New(cfg, obs)
		if err != nil {
			return fmt.Errorf("build pipeline: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownServer := maybeStartServer(ctx, cfg, obs)
		defer shutdownServer()

		if err := p.Run(ctx); err != nil {
			obs.Logger.Error().Err(err).Msg("workflow failed")
			return err
		}
		return nil
	},
}

// printPlan writes the phase execution plan without running anything.
func printPlan(cfg *config.Config) {
	registry := workflow.DefaultRegistry()
	configs := workflow.DefaultPhaseConfigs()

	fmt.Printf("Topic:      %s\n", cfg.Topic.Name)
	fmt.Printf("Databases:  %v\n", cfg.Workflow.Databases)
	fmt.Printf("Output:     %s\n", cfg.Output.Directory)
	fmt.Println("Execution plan:")
	for i, name := range registry.ExecutionOrder() {
		pc := configs[name]
		line := fmt.Sprintf("  %2d. %-26s %s", i+1, name, pc.Criticality)
		if group := registry.Group(name); group != "" {
			line += fmt.Sprintf(" (parallel group %q)", group)
		}
		fmt.Println(line)
	}
}

// maybeStartServer starts the inspection server alongside the run when
// enabled, and returns its shutdown function.
func maybeStartServer(ctx context.Context, cfg *config.Config, obs *observability.Observer) func() {
	if !cfg.Server.Enabled {
		return func() {}
	}

	srv := httpserver.New(httpserver.Config{
		Address:         cfg.Server.Address(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, cfg.Workflow.CheckpointDir, obs)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Logger.Error().Err(err).Msg("inspection server error")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			obs.Logger.Error().Err(err).Msg("inspection server shutdown error")
		}
	}
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "print the execution plan and exit")
	runCmd.Flags().Bool("quick", false, fmt.Sprintf("trial run capped at %d results per database", quickMaxResults))

	rootCmd.AddCommand(runCmd)
}
