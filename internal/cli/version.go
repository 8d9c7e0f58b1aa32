package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	AutoBackupVersion, AutoBackupCommit, AutoBackupDate string
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Display version, commit hash, build date, and other build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("AutoBackup version: %s\n", AutoBackupVersion)
		fmt.Printf("Commit: %s\n", AutoBackupCommit)
		fmt.Printf("Built: %s\n", AutoBackupDate)
	},
}

func init() {
	rootCommand.AddCommand(versionCommand)
}
