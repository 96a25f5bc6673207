package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reviewkit/reviewkit/internal/pipeline"
	"github.com/reviewkit/reviewkit/internal/workflow"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted review workflow",
	Long: `Resume restores state from an existing checkpoint directory and continues
from the first incomplete phase. The workflow is selected by --workflow, by
--topic, or by the configured topic when neither is given. Use --from to
force re-execution from a named phase even when later checkpoints exist.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		workflowDir, _ := cmd.Flags().GetString("workflow")
		topic, _ := cmd.Flags().GetString("topic")
		fromPhase, _ := cmd.Flags().GetString("from")

		if fromPhase != "" && !knownPhase(fromPhase) {
			return fmt.Errorf("unknown phase %q; valid phases: %v", fromPhase, workflow.DefaultRegistry().ExecutionOrder())
		}

		obs := newObserver(cfg)
		p, err := pipeline.New(cfg, obs)
		if err != nil {
			return fmt.Errorf("build pipeline: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownServer := maybeStartServer(ctx, cfg, obs)
		defer shutdownServer()

		err = p.Resume(ctx, pipeline.ResumeOptions{
			WorkflowDir: workflowDir,
			Topic:       topic,
			FromPhase:   fromPhase,
		})
		if err != nil {
			obs.Logger.Error().Err(err).Msg("resume failed")
			return err
		}
		return nil
	},
}

func knownPhase(name string) bool {
	for _, phase := range workflow.DefaultRegistry().ExecutionOrder() {
		if phase == name {
			return true
		}
	}
	return false
}

func init() {
	resumeCmd.Flags().String("workflow", "", "checkpoint directory name (workflow_<slug>_<timestamp>)")
	resumeCmd.Flags().String("topic", "", "resume the most recent workflow for this topic")
	resumeCmd.Flags().String("from", "", "re-run from this phase onward")

	rootCmd.AddCommand(resumeCmd)
}
