package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aravindh-murugesan/autobackup-go/internal/cloud/cloudtest"
	"github.com/aravindh-murugesan/autobackup-go/internal/policy"
	"github.com/aravindh-murugesan/autobackup-go/internal/report"
)

func newReclaimer(client cloud.ResourceClient) *Reclaimer {
	return &Reclaimer{Client: client, Logger: discardLogger(), Workers: 4}
}

func TestDeleteExpiredSnapshots_TuesdayCutoff(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddSnapshot(managedSnapshot("snap-old", "vol-a", "2024/01/04", 10))
	client.AddSnapshot(managedSnapshot("snap-new", "vol-a", "2024/01/05", 10))

	// Tuesday 2024-01-09: 3 + 2 days.
	today := date(t, "2024-01-09")
	cutoff := policy.CutoffDate(today, policy.EffectiveRetentionDays(today, policy.DefaultRetentionDays))

	counters := &report.RunCounters{}
	if err := newReclaimer(client).DeleteExpiredSnapshots(context.Background(), cutoff, counters); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Equal(client.Deleted, []string{"snap-old"}) {
		t.Errorf("deleted = %v, want [snap-old]", client.Deleted)
	}
	if got := counters.Snapshot(); got.SnapshotsDeleted != 1 || got.DeletedSizeGiB != 10 {
		t.Errorf("totals = %+v", got)
	}
}

func TestDeleteExpiredSnapshots_IgnoresUnmanaged(t *testing.T) {
	client := cloudtest.NewClient("r1")

	unmanaged := managedSnapshot("snap-manual", "vol-a", "2020/01/01", 1)
	unmanaged.Tags[policy.MarkerTag] = "True"
	client.AddSnapshot(unmanaged)

	noTags := cloud.Snapshot{ID: "snap-untagged", VolumeID: "vol-a", Tags: cloud.Tags{}}
	client.AddSnapshot(noTags)

	counters := &report.RunCounters{}
	if err := newReclaimer(client).DeleteExpiredSnapshots(context.Background(), date(t, "2024-01-01"), counters); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.Deleted) != 0 {
		t.Errorf("deleted = %v, want none", client.Deleted)
	}
}

func TestDeleteExpiredSnapshots_BadCreatedOnSkipped(t *testing.T) {
	client := cloudtest.NewClient("r1")

	missing := managedSnapshot("snap-missing", "vol-a", "", 1)
	delete(missing.Tags, policy.CreatedOnTag)
	client.AddSnapshot(missing)
	client.AddSnapshot(managedSnapshot("snap-malformed", "vol-a", "2024-01-01", 1))
	client.AddSnapshot(managedSnapshot("snap-old", "vol-a", "2023/12/01", 1))

	counters := &report.RunCounters{}
	if err := newReclaimer(client).DeleteExpiredSnapshots(context.Background(), date(t, "2024-01-04"), counters); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Equal(client.Deleted, []string{"snap-old"}) {
		t.Errorf("deleted = %v, want [snap-old]", client.Deleted)
	}
	if got := counters.Snapshot(); got.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", got.Skipped)
	}
}

func TestDeleteExpiredSnapshots_FailuresDoNotStopLoop(t *testing.T) {
	client := cloudtest.NewClient("r1")
	for i := 1; i <= 4; i++ {
		client.AddSnapshot(managedSnapshot(fmt.Sprintf("snap-%d", i), "vol-a", "2023/12/01", 1))
	}
	client.DeleteErr = map[string]error{
		"snap-1": fmt.Errorf("snapshot snap-1: %w", cloud.ErrResourceInUse),
		"snap-2": fmt.Errorf("snapshot snap-2: %w", cloud.ErrNotFound),
		"snap-3": errors.New("internal error"),
	}

	counters := &report.RunCounters{}
	if err := newReclaimer(client).DeleteExpiredSnapshots(context.Background(), date(t, "2024-01-04"), counters); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Equal(client.Deleted, []string{"snap-4"}) {
		t.Errorf("deleted = %v, want [snap-4]", client.Deleted)
	}
	got := counters.Snapshot()
	// In use and generic errors are failures; an already deleted snapshot is not.
	if got.SnapshotsDeleted != 1 || got.Failures != 2 {
		t.Errorf("totals = %+v", got)
	}
}

func TestDeleteExpiredSnapshots_SecondRunIsNoop(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddSnapshot(managedSnapshot("snap-old", "vol-a", "2023/12/01", 3))

	cutoff := date(t, "2024-01-04")
	r := newReclaimer(client)

	first := &report.RunCounters{}
	if err := r.DeleteExpiredSnapshots(context.Background(), cutoff, first); err != nil {
		t.Fatal(err)
	}
	second := &report.RunCounters{}
	if err := r.DeleteExpiredSnapshots(context.Background(), cutoff, second); err != nil {
		t.Fatal(err)
	}

	if first.Snapshot().SnapshotsDeleted != 1 {
		t.Errorf("first run deleted %d, want 1", first.Snapshot().SnapshotsDeleted)
	}
	if got := second.Snapshot(); got != (report.Totals{}) {
		t.Errorf("second run totals = %+v, want zero", got)
	}
}
