package cli

import (
	"time"

	"github.com/aravindh-murugesan/autobackup-go/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string

	// cfg is loaded once per invocation by PersistentPreRunE.
	cfg config.Config
)

var rootCommand = &cobra.Command{
	Use:     "autobackup-go",
	Aliases: []string{"autobackup"},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 'version' and 'help' run without any configuration.
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return loadConfig()
	},
	SilenceUsage: true,
	Short:        "AutoBackup: scheduled volume snapshots with rolling retention",
	Long: `AutoBackup snapshots every volume attached to instances tagged AutoBackup=true
and deletes its own snapshots once they are older than the retention window
(3 days, plus 2 more on Tuesdays). Snapshots are recognised by the tags written
at creation time, so no state is kept between runs.

Supports OpenStack (clouds.yaml profiles) and AWS EC2.

Author: Aravindh Murugesan`,
}

func Execute() error {
	return rootCommand.Execute()
}

func loadConfig() error {
	loaded, err := config.Load(viper.GetViper(), configFile)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func init() {
	rootCommand.AddGroup(&cobra.Group{ID: "autobackup", Title: "AutoBackup"})

	flags := rootCommand.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a YAML configuration file")

	// Global persistent flags; every one is also readable from AUTOBACKUP_* env vars.
	flags.String("provider", config.ProviderOpenStack, "Cloud provider (openstack, ec2)")
	flags.String("cloud", "", "Name of the cloud profile as in clouds.yaml (required for openstack)")
	flags.StringSlice("regions", nil, "Regions to process, comma separated")
	flags.Bool("discover-regions", false, "Process every region the provider reports")
	flags.String("selection-mode", "tag", "Instance selection mode (tag, state)")
	flags.String("instance-tag-key", "AutoBackup", "Tag key that marks an instance for backup")
	flags.String("instance-tag-value", "true", "Tag value that marks an instance for backup")
	flags.StringSlice("instance-states", []string{"running", "stopped"}, "Instance states listed in state selection mode")
	flags.Int("retention-days", 3, "Base retention window in days (Tuesdays add 2)")
	flags.String("run-date", "", "Override today's date (YYYY-MM-DD)")
	flags.Int("workers", 4, "Number of concurrent snapshot operations per region")
	flags.Duration("item-timeout", 5*time.Minute, "Timeout for a single snapshot create or delete")
	flags.Int("timeout", 0, "Global execution timeout in seconds (0 = run indefinitely)")
	flags.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flags.String("webhook-url", "", "Webhook URL for alerting")
	flags.String("webhook-username", "", "Webhook username for alerting")
	flags.String("webhook-password", "", "Webhook password for alerting")

	_ = viper.BindPFlags(flags)
}
