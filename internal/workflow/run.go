package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aravindh-murugesan/autobackup-go/internal/notifications"
	"github.com/aravindh-murugesan/autobackup-go/internal/policy"
	"github.com/aravindh-murugesan/autobackup-go/internal/report"
	"github.com/juju/clock"
)

// ErrNoRegionReachable is returned when no configured region could be connected to.
var ErrNoRegionReachable = errors.New("no region could be reached")

// ClientFactory connects to the provider in one region. An empty region
// means the provider's default, which is used for region discovery.
type ClientFactory func(ctx context.Context, region string) (cloud.ResourceClient, error)

// Phases selects which halves of the job run.
type Phases struct {
	Backup  bool
	Reclaim bool
}

// AllPhases runs backup followed by reclamation.
var AllPhases = Phases{Backup: true, Reclaim: true}

// Runner executes one invocation over every region.
type Runner struct {
	NewClient ClientFactory

	Regions         []string
	DiscoverRegions bool

	Selection policy.Selection
	Retention policy.RetentionPolicy

	// RunDate overrides "today" when set; otherwise Clock is used.
	RunDate time.Time
	Clock   clock.Clock

	Workers     int
	ItemTimeout time.Duration
	Phases      Phases

	Notifier Notifier
	Logger   *slog.Logger
	RunID    string
}

// Today returns the calendar date of the run.
func (r *Runner) Today() time.Time {
	if !r.RunDate.IsZero() {
		return policy.Today(r.RunDate)
	}
	c := r.Clock
	if c == nil {
		c = clock.WallClock
	}
	return policy.Today(c.Now())
}

// Run processes every region in turn: backup, then reclamation.
//
// Item and region failures are recorded in the summary and do not stop the
// run. An error is returned only when no progress was possible: region
// discovery failed or no region could be connected to. The summary is valid
// in every case.
func (r *Runner) Run(ctx context.Context) (report.Summary, error) {
	today := r.Today()
	summary := report.Summary{RunID: r.RunID, Date: policy.FormatDate(today)}

	logger := r.Logger.With("run_date", summary.Date)
	if r.RunID != "" {
		logger = logger.With("run_id", r.RunID)
	}

	regions, err := r.resolveRegions(ctx)
	if err != nil {
		logger.Error("Region discovery failed", "error", err)
		return summary, err
	}
	if len(regions) == 0 {
		return summary, errors.New("region list is empty")
	}

	effective := r.Retention.EffectiveDays(today)
	cutoff := policy.CutoffDate(today, effective)
	logger.Info("Initializing backup run",
		"regions", regions,
		"retention_days", effective,
		"cutoff", policy.FormatDate(cutoff),
		"selection_mode", r.Selection.Mode)

	reached := 0
	for i, region := range regions {
		if ctx.Err() != nil {
			logger.Warn("Run halted due to timeout or cancellation")
			summary.AddRegionError(region, ctx.Err())
			continue
		}

		regionLog := logger.With("region", region, "progress", progress(i, len(regions)))

		client, err := r.NewClient(ctx, region)
		if err != nil {
			regionLog.Error("Client initialization failed", "error", err)
			summary.AddRegionError(region, err)
			continue
		}
		reached++
		regionLog.Info("Connection established", "provider", client.GetCloudProviderName())

		counters := &report.RunCounters{}
		r.runRegion(ctx, client, today, cutoff, counters, regionLog)
		summary.AddRegion(region, counters)
	}

	logger.Info("Run summary", "summary", summary)

	if summary.HasFailures() {
		r.notifySummary(ctx, summary, logger)
	}

	if reached == 0 {
		return summary, ErrNoRegionReachable
	}
	return summary, nil
}

func (r *Runner) runRegion(ctx context.Context, client cloud.ResourceClient, today, cutoff time.Time, counters *report.RunCounters, logger *slog.Logger) {
	if r.Phases.Backup {
		backup := &Backup{
			Client:      client,
			Logger:      logger,
			Today:       today,
			Workers:     r.Workers,
			ItemTimeout: r.ItemTimeout,
			Notifier:    r.Notifier,
			RunID:       r.RunID,
		}

		instances, err := r.selectInstances(ctx, client, logger)
		if err != nil {
			logger.Error("Instance discovery failed", "error", err)
			counters.AddFailure()
		} else {
			logger.Info("Instance discovery completed", "instance_count", len(instances))
			backup.CreateSnapshots(ctx, instances, counters)
		}
	}

	if r.Phases.Reclaim {
		reclaimer := &Reclaimer{
			Client:      client,
			Logger:      logger,
			Workers:     r.Workers,
			ItemTimeout: r.ItemTimeout,
		}
		if err := reclaimer.DeleteExpiredSnapshots(ctx, cutoff, counters); err != nil {
			logger.Error("Snapshot discovery failed", "error", err)
			counters.AddFailure()
		}
	}
}

// selectInstances lists candidates with the provider-side filter and applies
// the marker test locally. Ambiguous instances are logged and dropped.
func (r *Runner) selectInstances(ctx context.Context, client cloud.ResourceClient, logger *slog.Logger) ([]cloud.Instance, error) {
	listCtx, cancel := withItemTimeout(ctx, r.ItemTimeout)
	defer cancel()

	listed, err := client.ListInstances(listCtx, r.Selection.Filter())
	if err != nil {
		return nil, err
	}

	selected, err := r.Selection.Select(listed)
	if err != nil {
		logger.Warn("Instances skipped because of duplicate marker tags", "error", err)
	}
	logger.Debug("Selection applied", "listed", len(listed), "selected", len(selected))
	return selected, nil
}

func (r *Runner) resolveRegions(ctx context.Context) ([]string, error) {
	if !r.DiscoverRegions {
		return r.Regions, nil
	}

	bootstrap := ""
	if len(r.Regions) > 0 {
		bootstrap = r.Regions[0]
	}

	client, err := r.NewClient(ctx, bootstrap)
	if err != nil {
		return nil, fmt.Errorf("connecting for region discovery: %w", err)
	}

	listCtx, cancel := withItemTimeout(ctx, r.ItemTimeout)
	defer cancel()
	return client.ListRegions(listCtx)
}

func (r *Runner) notifySummary(ctx context.Context, summary report.Summary, logger *slog.Logger) {
	if r.Notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := r.Notifier.Notify(notifyCtx, notifications.RunSummary{
		Service: notifications.ServiceName,
		Event:   notifications.EventRunSummary,
		Summary: summary,
		Totals:  summary.Total(),
	})
	if err != nil {
		logger.Warn("Summary notification failed", "error", err)
	}
}

// withItemTimeout bounds a single work item; zero means no item deadline.
func withItemTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func progress(i, n int) string {
	return fmt.Sprintf("%d/%d", i+1, n)
}
