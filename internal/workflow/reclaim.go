package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aravindh-murugesan/autobackup-go/internal/policy"
	"github.com/aravindh-murugesan/autobackup-go/internal/report"
	"golang.org/x/sync/errgroup"
)

// Reclaimer deletes managed snapshots that are past retention.
type Reclaimer struct {
	Client cloud.ResourceClient
	Logger *slog.Logger

	Workers     int
	ItemTimeout time.Duration
}

// DeleteExpiredSnapshots executes the retention enforcement process.
//
// Responsibilities:
//  1. Discovery: retrieves every snapshot carrying AutoBackup=true. It is a sweep,
//     independent of the source volumes, which might have been deleted.
//  2. Evaluation: snapshots created on or before cutoff are eligible. A missing or
//     corrupt CreatedOn tag means "not eligible".
//  3. Cleanup: eligible snapshots are deleted on a bounded pool. A refused delete
//     is logged and never blocks the others.
//
// The only error returned is a failed listing.
func (r *Reclaimer) DeleteExpiredSnapshots(ctx context.Context, cutoff time.Time, counters *report.RunCounters) error {
	logger := r.Logger.With("phase", "reclaim", "cutoff", policy.FormatDate(cutoff))

	listCtx, cancel := withItemTimeout(ctx, r.ItemTimeout)
	managed, err := r.Client.ListSnapshots(listCtx, cloud.SnapshotFilter{
		TagKey:   policy.MarkerTag,
		TagValue: policy.MarkerValue,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("listing managed snapshots failed: %w", err)
	}
	logger.Info("Found managed snapshots", "count", len(managed))

	g := new(errgroup.Group)
	g.SetLimit(max(r.Workers, 1))

	for _, snap := range managed {
		if ctx.Err() != nil {
			logger.Warn("Reclamation halted due to timeout or cancellation")
			break
		}

		snapLog := logger.With("snapshot_id", snap.ID, "volume_id", snap.VolumeID)

		tags, err := policy.ParseSnapshotTags(snap.Tags)
		if err != nil {
			snapLog.Warn("Skipping snapshot: invalid CreatedOn tag", "error", err)
			counters.AddSkipped()
			continue
		}

		if !policy.IsExpired(tags, cutoff) {
			snapLog.Debug("Snapshot is in active retention period", "created_on", policy.FormatDate(tags.CreatedOn))
			continue
		}

		g.Go(func() error {
			r.deleteSnapshot(ctx, snap, counters, snapLog.With("name", tags.Name, "created_on", policy.FormatDate(tags.CreatedOn)))
			return nil
		})
	}

	_ = g.Wait()
	return nil
}

func (r *Reclaimer) deleteSnapshot(ctx context.Context, snap cloud.Snapshot, counters *report.RunCounters, logger *slog.Logger) {
	itemCtx, cancel := withItemTimeout(ctx, r.ItemTimeout)
	defer cancel()

	logger.Info("Snapshot is past retention; deleting")

	err := r.Client.DeleteSnapshot(itemCtx, snap)
	switch {
	case err == nil:
		counters.AddDeleted(snap.SizeGiB)
		logger.Info("Snapshot deleted successfully", "size_gib", snap.SizeGiB)
	case errors.Is(err, cloud.ErrNotFound):
		logger.Debug("Snapshot already gone", "error", err)
	case errors.Is(err, cloud.ErrResourceInUse):
		logger.Warn("Snapshot is still in use; keeping it", "error", err)
		counters.AddFailure()
	default:
		logger.Error("Failed to delete snapshot", "error", err)
		counters.AddFailure()
	}
}
