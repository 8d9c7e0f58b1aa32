package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aravindh-murugesan/autobackup-go/internal/cloud/ec2"
	"github.com/aravindh-murugesan/autobackup-go/internal/cloud/openstack"
	"github.com/aravindh-murugesan/autobackup-go/internal/config"
	"github.com/aravindh-murugesan/autobackup-go/internal/notifications"
	"github.com/aravindh-murugesan/autobackup-go/internal/policy"
	"github.com/aravindh-murugesan/autobackup-go/internal/report"
	"github.com/google/uuid"
	"github.com/juju/clock"
)

// NewClientFactory returns a factory for the configured provider. Provider
// logs, including retry warnings, go to logger scoped to the region.
func NewClientFactory(cfg config.Config, retry cloud.RetryConfig, logger *slog.Logger) ClientFactory {
	withRegion := func(region string) cloud.RetryConfig {
		r := retry
		if logger != nil {
			r.Logger = logger.With("region", region)
		}
		return r
	}

	switch cfg.Provider {
	case config.ProviderEC2:
		return func(ctx context.Context, region string) (cloud.ResourceClient, error) {
			c := &ec2.Client{Region: region, RetryConfig: withRegion(region)}
			if err := c.NewClient(ctx); err != nil {
				return nil, err
			}
			return c, nil
		}
	default:
		return func(ctx context.Context, region string) (cloud.ResourceClient, error) {
			c := &openstack.Client{ProfileName: cfg.Cloud, Region: region, RetryConfig: withRegion(region)}
			if err := c.NewClient(ctx); err != nil {
				return nil, err
			}
			return c, nil
		}
	}
}

// NewRunner builds a Runner from the configuration.
func NewRunner(cfg config.Config, phases Phases, logger *slog.Logger) (*Runner, error) {
	runDate, err := cfg.Today()
	if err != nil {
		return nil, err
	}

	selection := cfg.Selection()
	if err := selection.Normalize(); err != nil {
		return nil, err
	}
	retention := cfg.Retention()
	if err := retention.Normalize(); err != nil {
		return nil, err
	}

	runID := fmt.Sprintf("req-%s", uuid.New().String())
	runner := &Runner{
		NewClient:       NewClientFactory(cfg, cloud.DefaultRetryConfig(), logger.With("run_id", runID)),
		Regions:         cfg.Regions,
		DiscoverRegions: cfg.DiscoverRegions,
		Selection:       selection,
		Retention:       retention,
		RunDate:         runDate,
		Clock:           clock.WallClock,
		Workers:         cfg.Workers,
		ItemTimeout:     cfg.ItemTimeout,
		Phases:          phases,
		Logger:          logger,
		RunID:           runID,
	}

	webhook := &notifications.Webhook{
		URL:      cfg.WebhookURL,
		Username: cfg.WebhookUsername,
		Password: cfg.WebhookPassword,
	}
	if webhook.Enabled() {
		runner.Notifier = webhook
	}
	return runner, nil
}

// RunAutoBackupWorkflow orchestrates one invocation for the configured cloud.
//
// Responsibilities:
//  1. Logging: a run-scoped logger carrying the provider and run ID.
//  2. Safety: a global timeout context prevents hung processes.
//  3. Execution: every region is processed, backup first, then reclamation.
func RunAutoBackupWorkflow(ctx context.Context, cfg config.Config, phases Phases) (report.Summary, error) {
	logger := SetupLogger(cfg.LogLevel, cfg.Provider)

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Timeout)*time.Second)
		defer cancel()
		logger.Debug("Global workflow timeout configured", "timeout_seconds", cfg.Timeout)
	}

	runner, err := NewRunner(cfg, phases, logger)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		return report.Summary{}, err
	}

	return runner.Run(ctx)
}

// SubscribeInstance writes the instance marker tag so that the instance is
// (or is no longer) selected for backup.
func SubscribeInstance(ctx context.Context, cfg config.Config, region, instanceID string, enabled bool) error {
	logger := SetupLogger(cfg.LogLevel, cfg.Provider).With("workflow", "subscribe", "instance_id", instanceID, "region", region)

	retry := cloud.RetryConfig{
		MaxRetries:       1,
		BaseDelay:        1 * time.Second,
		MaxDelay:         2 * time.Second,
		OperationTimeout: 10 * time.Second,
	}
	client, err := NewClientFactory(cfg, retry, logger)(ctx, region)
	if err != nil {
		logger.Error("Client initialization failed", "error", err)
		return fmt.Errorf("failed to connect to cloud: %w", err)
	}

	selection := cfg.Selection()
	if err := selection.Normalize(); err != nil {
		return err
	}
	return tagInstance(ctx, client, selection, instanceID, enabled, logger)
}

func tagInstance(ctx context.Context, client cloud.ResourceClient, selection policy.Selection, instanceID string, enabled bool, logger *slog.Logger) error {
	value := selection.TagValue
	if !enabled {
		value = "false"
	}

	logger.Info("Applying backup marker to instance", "tag", selection.TagKey, "value", value)
	if err := client.TagResource(ctx, cloud.KindInstance, instanceID, cloud.Tags{selection.TagKey: value}); err != nil {
		logger.Error("Failed to update instance tags", "error", err)
		return err
	}

	logger.Info("Instance subscription applied successfully")
	return nil
}
