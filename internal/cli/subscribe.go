package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/aravindh-murugesan/autobackup-go/internal/workflow"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the subscribe command
var (
	instanceID     string
	instanceRegion string
	enableBackup   bool
)

var subscribeCommand = &cobra.Command{
	Use:     "subscribe",
	Short:   "Mark an instance for (or exclude it from) backup",
	Long:    `Writes the instance marker tag on one instance so that the next run snapshots its volumes. With --enabled=false the tag is set to "false" and the instance is skipped.`,
	GroupID: "autobackup",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A single --region is enough here; it stands in for the region list.
		if instanceRegion != "" && len(viper.GetStringSlice("regions")) == 0 {
			viper.Set("regions", []string{instanceRegion})
		}
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(headerStyle.Render("AutoBackup - Instance Subscription"))

		region := instanceRegion
		if region == "" {
			if len(cfg.Regions) == 0 {
				return errors.New("required flag \"region\" not set")
			}
			region = cfg.Regions[0]
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return workflow.SubscribeInstance(ctx, cfg, region, instanceID, enableBackup)
	},
}

func init() {
	subscribeCommand.Flags().StringVar(&instanceID, "instance-id", "", "ID of the instance (required)")
	subscribeCommand.Flags().StringVar(&instanceRegion, "region", "", "Region of the instance (defaults to the first configured region)")
	subscribeCommand.Flags().BoolVar(&enableBackup, "enabled", true, "Enable or disable backups for this instance")

	_ = subscribeCommand.MarkFlagRequired("instance-id")

	rootCommand.AddCommand(subscribeCommand)
}
