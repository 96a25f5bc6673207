package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/reviewkit/reviewkit/internal/checkpoint"
	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/screening"
	"github.com/reviewkit/reviewkit/internal/workflow"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the state of a checkpointed workflow",
	Long: `Inspect prints a workflow's completed phases, PRISMA funnel counts, and
pending adjudication items from its checkpoint directory. Without
--workflow it lists every workflow under the checkpoint root.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		root := cfg.Workflow.CheckpointDir

		dir, _ := cmd.Flags().GetString("workflow")
		if dir == "" {
			return listCheckpointDirs(root)
		}
		return inspectWorkflow(root, dir)
	},
}

func listCheckpointDirs(root string) error {
	dirs := checkpoint.ListWorkflows(root)
	if len(dirs) == 0 {
		fmt.Printf("no workflows under %s\n", root)
		return nil
	}
	for _, dir := range dirs {
		fmt.Println(dir)
	}
	return nil
}

func inspectWorkflow(root, dir string) error {
	m, err := checkpoint.Open(root, dir, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("open workflow %s: %w", dir, err)
	}

	order := workflow.DefaultRegistry().ExecutionOrder()
	completed := m.CompletedPhases()
	var latest *checkpoint.Record

	fmt.Printf("Workflow:  %s\n", m.WorkflowID())

	status := m.Status(order)
	if status.IsTerminal() {
		fmt.Printf("Status:    %s\n", status)
	} else {
		fmt.Printf("Status:    %s (resumable with: sysrev resume --workflow %s)\n", status, dir)
	}

	fmt.Println("Phases:")
	for _, phase := range order {
		if !completed[phase] {
			fmt.Printf("  [ ] %s\n", phase)
			continue
		}
		rec, loadErr := m.LoadPhase(phase)
		if loadErr != nil {
			fmt.Printf("  [?] %-26s (unreadable checkpoint)\n", phase)
			continue
		}
		marker := "x"
		if rec.Skipped() {
			marker = "~"
		}
		fmt.Printf("  [%s] %-26s %s\n", marker, phase, rec.Timestamp.Format("2006-01-02 15:04:05"))
		if latest == nil || rec.Timestamp.After(latest.Timestamp) {
			latest = rec
		}
	}

	if latest != nil {
		if latest.TopicContext != nil {
			fmt.Printf("Topic:     %s\n", latest.TopicContext.Topic)
		}
		printPrisma(latest.PRISMACounts)
	}

	return printAdjudication(filepath.Join(m.Dir(), screening.AdjudicationFilename))
}

func printPrisma(counts *domain.PRISMACounts) {
	if counts == nil {
		return
	}
	fmt.Println("PRISMA:")
	for _, stage := range []string{
		domain.PRISMAFound,
		domain.PRISMADuplicatesRemoved,
		domain.PRISMANoDupes,
		domain.PRISMAScreened,
		domain.PRISMAFullTextAssessed,
		domain.PRISMAIncluded,
	} {
		if n := counts.Get(stage); n >= 0 {
			fmt.Printf("  %-22s %d\n", stage, n)
		}
	}
}

func printAdjudication(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read adjudication queue: %w", err)
	}

	var export screening.AdjudicationExport
	if err := json.Unmarshal(data, &export); err != nil {
		return fmt.Errorf("parse adjudication queue: %w", err)
	}

	fmt.Printf("Adjudication: %d papers awaiting human review\n", export.Summary.TotalUncertain)
	for stage, items := range export.Stages {
		fmt.Printf("  %-22s %d\n", stage, len(items))
	}
	return nil
}

func init() {
	inspectCmd.Flags().String("workflow", "", "checkpoint directory name to inspect")

	rootCmd.AddCommand(inspectCmd)
}
