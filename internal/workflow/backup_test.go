package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aravindh-murugesan/autobackup-go/internal/cloud/cloudtest"
	"github.com/aravindh-murugesan/autobackup-go/internal/notifications"
	"github.com/aravindh-murugesan/autobackup-go/internal/policy"
	"github.com/aravindh-murugesan/autobackup-go/internal/report"
)

func newBackup(t *testing.T, client cloud.ResourceClient) *Backup {
	t.Helper()
	return &Backup{
		Client:  client,
		Logger:  discardLogger(),
		Today:   date(t, "2024-01-09"),
		Workers: 4,
	}
}

func TestCreateSnapshots_TwoVolumes(t *testing.T) {
	client := cloudtest.NewClient("us-east-1")
	client.AddInstance(taggedInstance("i-1", "web"),
		cloud.Volume{ID: "vol-a", SizeGiB: 8},
		cloud.Volume{ID: "vol-b", SizeGiB: 100},
	)

	counters := &report.RunCounters{}
	newBackup(t, client).CreateSnapshots(context.Background(), client.Instances, counters)

	got := counters.Snapshot()
	if got.SnapshotsCreated != 2 || got.CreatedSizeGiB != 108 {
		t.Fatalf("created = %d (%d GiB), want 2 (108 GiB)", got.SnapshotsCreated, got.CreatedSizeGiB)
	}
	if got.Failures != 0 {
		t.Errorf("failures = %d, want 0", got.Failures)
	}

	for _, id := range client.SnapshotIDs() {
		snap, _ := client.Snapshot(id)
		want := cloud.Tags{
			policy.MarkerTag:    "true",
			policy.VolumeTag:    snap.VolumeID,
			policy.CreatedOnTag: "2024/01/09",
			policy.NameTag:      "web-AutoBackup-2024/01/09",
		}
		if len(snap.Tags) != len(want) {
			t.Errorf("snapshot %s tags = %v, want %v", id, snap.Tags, want)
			continue
		}
		for k, v := range want {
			if snap.Tags[k] != v {
				t.Errorf("snapshot %s tag %s = %q, want %q", id, k, snap.Tags[k], v)
			}
		}
	}
}

func TestCreateSnapshots_MissingNameUsesInstanceID(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddInstance(cloud.Instance{ID: "i-9", Tags: cloud.Tags{policy.MarkerTag: "true"}},
		cloud.Volume{ID: "vol-a", SizeGiB: 1})

	counters := &report.RunCounters{}
	newBackup(t, client).CreateSnapshots(context.Background(), client.Instances, counters)

	snap, ok := client.Snapshot("snap-0001")
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if got := snap.Tags[policy.NameTag]; got != "i-9-AutoBackup-2024/01/09" {
		t.Errorf("Name = %q", got)
	}
}

func TestCreateSnapshots_VolumeListingFailureSkipsInstance(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddInstance(taggedInstance("i-1", "a"), cloud.Volume{ID: "vol-a", SizeGiB: 1})
	client.AddInstance(taggedInstance("i-2", "b"), cloud.Volume{ID: "vol-b", SizeGiB: 2})
	client.ListVolumesErr = map[string]error{"i-1": errors.New("boom")}

	counters := &report.RunCounters{}
	newBackup(t, client).CreateSnapshots(context.Background(), client.Instances, counters)

	got := counters.Snapshot()
	if got.SnapshotsCreated != 1 || got.Failures != 1 {
		t.Errorf("created=%d failures=%d, want 1 and 1", got.SnapshotsCreated, got.Failures)
	}
}

func TestCreateSnapshots_CreateFailureContinues(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddInstance(taggedInstance("i-1", "web"),
		cloud.Volume{ID: "vol-a", SizeGiB: 5},
		cloud.Volume{ID: "vol-b", SizeGiB: 7},
	)
	client.CreateErr = map[string]error{"vol-a": errors.New("quota exceeded")}

	counters := &report.RunCounters{}
	newBackup(t, client).CreateSnapshots(context.Background(), client.Instances, counters)

	got := counters.Snapshot()
	if got.SnapshotsCreated != 1 || got.CreatedSizeGiB != 7 || got.Failures != 1 {
		t.Errorf("totals = %+v", got)
	}
}

func TestCreateSnapshots_OrphanCleanedUp(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddInstance(taggedInstance("i-1", "web"), cloud.Volume{ID: "vol-a", SizeGiB: 5})
	client.CreateErr = map[string]error{"vol-a": fmt.Errorf("snapshot snap-0001: %w", cloud.ErrSnapshotFailed)}
	client.LeaveOrphanOnCreateErr = true

	counters := &report.RunCounters{}
	newBackup(t, client).CreateSnapshots(context.Background(), client.Instances, counters)

	if ids := client.SnapshotIDs(); len(ids) != 0 {
		t.Errorf("orphan not cleaned up: %v", ids)
	}
	if len(client.Deleted) != 1 {
		t.Errorf("deleted = %v, want one orphan", client.Deleted)
	}
	if got := counters.Snapshot(); got.Failures != 1 || got.SnapshotsCreated != 0 {
		t.Errorf("totals = %+v", got)
	}
}

func TestCreateSnapshots_SlowSnapshotIsKept(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddInstance(taggedInstance("i-1", "web"), cloud.Volume{ID: "vol-a", SizeGiB: 5})
	client.CreateErr = map[string]error{"vol-a": fmt.Errorf("waiting for snapshot snap-0001: %w", context.DeadlineExceeded)}
	client.LeaveOrphanOnCreateErr = true

	counters := &report.RunCounters{}
	newBackup(t, client).CreateSnapshots(context.Background(), client.Instances, counters)

	if len(client.Deleted) != 0 {
		t.Fatalf("slow snapshot was deleted: %v", client.Deleted)
	}
	snap, ok := client.Snapshot("snap-0001")
	if !ok || snap.Tags[policy.MarkerTag] != policy.MarkerValue || snap.Tags[policy.CreatedOnTag] != "2024/01/09" {
		t.Fatalf("snapshot = %+v, want it kept and tagged", snap)
	}
	if got := counters.Snapshot(); got.SnapshotsCreated != 1 || got.CreatedSizeGiB != 5 || got.Failures != 0 {
		t.Errorf("totals = %+v", got)
	}
}

func TestCreateSnapshots_TagFailureIsLeak(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddInstance(taggedInstance("i-1", "web"), cloud.Volume{ID: "vol-a", SizeGiB: 5})
	client.TagErr = map[string]error{"vol-a": errors.New("tag limit")}

	notifier := &recordingNotifier{}
	b := newBackup(t, client)
	b.Notifier = notifier
	b.RunID = "req-test"

	counters := &report.RunCounters{}
	b.CreateSnapshots(context.Background(), client.Instances, counters)

	got := counters.Snapshot()
	if got.SnapshotsCreated != 0 || got.Leaked != 1 || got.Failures != 1 {
		t.Errorf("totals = %+v", got)
	}
	// The snapshot exists but is not managed.
	if ids := client.SnapshotIDs(); len(ids) != 1 {
		t.Fatalf("snapshots = %v, want 1", ids)
	}
	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifier.count())
	}
	msg, ok := notifier.sent[0].(notifications.SnapshotTagFailure)
	if !ok {
		t.Fatalf("notification type = %T", notifier.sent[0])
	}
	if msg.SnapshotID != "snap-0001" || msg.VolumeID != "vol-a" || msg.RunID != "req-test" {
		t.Errorf("notification = %+v", msg)
	}
}

func TestCreateSnapshots_CancelledContext(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddInstance(taggedInstance("i-1", "web"), cloud.Volume{ID: "vol-a", SizeGiB: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	counters := &report.RunCounters{}
	newBackup(t, client).CreateSnapshots(ctx, client.Instances, counters)

	if ids := client.SnapshotIDs(); len(ids) != 0 {
		t.Errorf("snapshots created after cancellation: %v", ids)
	}
}
