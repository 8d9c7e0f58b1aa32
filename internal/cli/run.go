package cli

import (
	"context"
	"fmt"

	"github.com/aravindh-murugesan/autobackup-go/internal/report"
	"github.com/aravindh-murugesan/autobackup-go/internal/workflow"
	"github.com/spf13/cobra"
)

var runCommand = &cobra.Command{
	Use:     "run",
	GroupID: "autobackup",
	Short:   "Execute the full backup and retention workflow",
	Long:    `Snapshots every volume of the selected instances in each region, then deletes the managed snapshots that fall outside the retention window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhases(cmd.Context(), "AutoBackup - Backup & Retention", workflow.AllPhases)
	},
}

var createSnapshotCommand = &cobra.Command{
	Use:     "create-snapshots",
	GroupID: "autobackup",
	Short:   "Execute the snapshot creation workflow only",
	Long:    `Finds the instances selected for backup in each region and creates one tagged snapshot per attached volume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhases(cmd.Context(), "AutoBackup - Creation Workflow", workflow.Phases{Backup: true})
	},
}

var expireSnapshotCommand = &cobra.Command{
	Use:     "expire-snapshots",
	GroupID: "autobackup",
	Short:   "Execute the snapshot expiry workflow only",
	Long:    `Scans every snapshot tagged AutoBackup=true, compares its CreatedOn date with the retention cutoff, and permanently deletes those on or before it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhases(cmd.Context(), "AutoBackup - Expiry Workflow", workflow.Phases{Reclaim: true})
	},
}

func runPhases(ctx context.Context, title string, phases workflow.Phases) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Println(headerStyle.Render(title))

	summary, err := workflow.RunAutoBackupWorkflow(ctx, cfg, phases)
	if summary.Date != "" {
		fmt.Println(report.Render(summary))
	}
	return err
}

func init() {
	rootCommand.AddCommand(runCommand)
	rootCommand.AddCommand(createSnapshotCommand)
	rootCommand.AddCommand(expireSnapshotCommand)
}
