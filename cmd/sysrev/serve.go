package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpserver "github.com/reviewkit/reviewkit/internal/server/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve workflow state over HTTP",
	Long: `Serve starts the inspection HTTP server over the checkpoint root. It
exposes workflow listings, per-workflow phase state and PRISMA counts, the
adjudication queue, and Prometheus metrics. The server is read-only.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		obs := newObserver(cfg)
		srv := httpserver.New(httpserver.Config{
			Address:         cfg.Server.Address(),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, cfg.Workflow.CheckpointDir, obs)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			obs.Logger.Info().Msg("received shutdown signal")
		case err := <-errCh:
			return fmt.Errorf("inspection server: %w", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
