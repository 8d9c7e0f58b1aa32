package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aravindh-murugesan/autobackup-go/internal/notifications"
	"github.com/aravindh-murugesan/autobackup-go/internal/policy"
	"github.com/aravindh-murugesan/autobackup-go/internal/report"
	"golang.org/x/sync/errgroup"
)

// cleanupTimeout bounds the calls made after a work item's own deadline:
// tagging a fresh snapshot and deleting an orphan.
const cleanupTimeout = time.Minute

// Notifier delivers alerts. *notifications.Webhook implements it.
type Notifier interface {
	Notify(ctx context.Context, notification any) error
}

// Backup snapshots every volume of the selected instances.
type Backup struct {
	Client cloud.ResourceClient
	Logger *slog.Logger

	// Today is the run date written into descriptions and tags.
	Today time.Time

	Workers     int
	ItemTimeout time.Duration

	// Notifier is optional; it is told about untagged snapshots.
	Notifier Notifier
	RunID    string
}

// CreateSnapshots walks the instances and snapshots each attached volume.
//
// Responsibilities:
//  1. Discovery: volumes are listed per instance. A failed listing skips only that instance.
//  2. Execution: each (instance, volume) pair is an independent work item on a bounded pool.
//  3. Tagging: every new snapshot gets the four management tags immediately.
//  4. Accounting: only fully tagged snapshots are counted as created.
//
// The caller must pass only selected instances.
func (b *Backup) CreateSnapshots(ctx context.Context, instances []cloud.Instance, counters *report.RunCounters) {
	logger := b.Logger.With("phase", "backup")

	g := new(errgroup.Group)
	g.SetLimit(max(b.Workers, 1))

	for i, inst := range instances {
		if ctx.Err() != nil {
			logger.Warn("Backup halted due to timeout or cancellation")
			break
		}

		name := displayName(inst)
		instLogger := logger.With(
			"instance_id", inst.ID,
			"instance_name", name,
			"state", inst.State,
			"progress", progress(i, len(instances)),
		)

		vols, err := b.listVolumes(ctx, inst)
		if err != nil {
			instLogger.Error("Volume discovery failed; skipping instance", "error", err)
			counters.AddFailure()
			continue
		}
		if len(vols) == 0 {
			instLogger.Debug("Instance has no attached volumes")
			continue
		}
		instLogger.Info("Found tagged instance", "volume_count", len(vols))

		for _, vol := range vols {
			g.Go(func() error {
				b.backupVolume(ctx, inst, name, vol, counters, instLogger.With("volume_id", vol.ID, "size_gib", vol.SizeGiB))
				return nil
			})
		}
	}

	_ = g.Wait()
}

func (b *Backup) listVolumes(ctx context.Context, inst cloud.Instance) ([]cloud.Volume, error) {
	itemCtx, cancel := withItemTimeout(ctx, b.ItemTimeout)
	defer cancel()
	return b.Client.ListVolumesForInstance(itemCtx, inst)
}

// backupVolume creates and tags one snapshot.
func (b *Backup) backupVolume(ctx context.Context, inst cloud.Instance, name string, vol cloud.Volume, counters *report.RunCounters, logger *slog.Logger) {
	itemCtx, cancel := withItemTimeout(ctx, b.ItemTimeout)
	defer cancel()

	description := policy.SnapshotDescription(name, vol.ID, b.Today)
	tags := policy.NewSnapshotTags(name, vol.ID, b.Today).ToTags()
	logger.Debug("Sending create request", "description", description)

	snap, err := b.Client.CreateSnapshot(itemCtx, vol, description, tags)
	switch {
	case err == nil:
	case snap.ID == "":
		logger.Error("Snapshot creation failed", "error", err)
		counters.AddFailure()
		return
	case errors.Is(err, cloud.ErrSnapshotFailed):
		logger.Error("Snapshot creation failed", "error", err)
		counters.AddFailure()

		// SAFETY CHECK: the provider left an unusable snapshot behind.
		b.cleanupOrphan(ctx, snap, logger)
		return
	default:
		// Still being created when the item deadline passed. It is kept and
		// tagged like any other backup; the provider finishes it in the background.
		logger.Warn("Snapshot not yet available; keeping it", "snapshot_id", snap.ID, "error", err)
	}

	snapLogger := logger.With("snapshot_id", snap.ID)

	// Tags were requested at creation; this confirms them under its own
	// deadline, since an untagged snapshot is never reclaimed.
	tagCtx, tagCancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer tagCancel()

	if err := b.Client.TagResource(tagCtx, cloud.KindSnapshot, snap.ID, tags); err != nil {
		snapLogger.Error("Snapshot created but tagging failed; it will not be managed and must be tagged or deleted manually",
			"error", err,
			"leak_risk", true)
		counters.AddLeaked()
		b.notifyLeak(tagCtx, inst, vol, snap, err, snapLogger)
		return
	}

	size := snap.SizeGiB
	if size == 0 {
		size = vol.SizeGiB
	}
	counters.AddCreated(size)
	snapLogger.Info("Snapshot completed", "name", tags[policy.NameTag], "size_gib", size)
}

func (b *Backup) cleanupOrphan(ctx context.Context, snap cloud.Snapshot, logger *slog.Logger) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	logger = logger.With("snapshot_id", snap.ID)
	logger.Debug("Orphaned resource detected; initiating cleanup")

	if err := b.Client.DeleteSnapshot(cleanupCtx, snap); err != nil {
		logger.Error("Orphaned snapshot cleanup failed; manual intervention required", "error", err, "leak_risk", true)
		return
	}
	logger.Info("Orphaned snapshot successfully cleaned up")
}

func (b *Backup) notifyLeak(ctx context.Context, inst cloud.Instance, vol cloud.Volume, snap cloud.Snapshot, cause error, logger *slog.Logger) {
	if b.Notifier == nil {
		return
	}
	err := b.Notifier.Notify(ctx, notifications.SnapshotTagFailure{
		Service:    notifications.ServiceName,
		Event:      notifications.EventSnapshotTagFail,
		RunID:      b.RunID,
		Region:     inst.Region,
		InstanceID: inst.ID,
		VolumeID:   vol.ID,
		SnapshotID: snap.ID,
		Message:    cause.Error(),
	})
	if err != nil {
		logger.Warn("Leak notification failed", "error", err)
	}
}

// displayName resolves the instance's Name tag. A missing or empty name falls
// back to the instance ID so that the backup still happens.
func displayName(inst cloud.Instance) string {
	if name, ok := policy.FindTagValue(inst.Tags, policy.NameTag); ok && name != "" {
		return name
	}
	return inst.ID
}
