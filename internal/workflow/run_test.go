package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aravindh-murugesan/autobackup-go/internal/cloud/cloudtest"
	"github.com/aravindh-murugesan/autobackup-go/internal/notifications"
	"github.com/aravindh-murugesan/autobackup-go/internal/policy"
	"github.com/juju/clock/testclock"
)

// regionFactory serves the in-memory clients by region; unknown regions fail.
func regionFactory(clients map[string]*cloudtest.Client) ClientFactory {
	return func(_ context.Context, region string) (cloud.ResourceClient, error) {
		c, ok := clients[region]
		if !ok {
			return nil, fmt.Errorf("region %q unreachable", region)
		}
		return c, nil
	}
}

func newRunner(t *testing.T, clients map[string]*cloudtest.Client, regions ...string) *Runner {
	t.Helper()
	selection := policy.Selection{}
	if err := selection.Normalize(); err != nil {
		t.Fatal(err)
	}
	return &Runner{
		NewClient: regionFactory(clients),
		Regions:   regions,
		Selection: selection,
		Retention: policy.RetentionPolicy{BaseDays: policy.DefaultRetentionDays},
		Clock:     testclock.NewClock(time.Date(2024, 1, 9, 1, 0, 0, 0, time.UTC)),
		Workers:   2,
		Phases:    AllPhases,
		Logger:    discardLogger(),
		RunID:     "req-test",
	}
}

func TestRun_BackupThenReclaim(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddInstance(taggedInstance("i-1", "web"),
		cloud.Volume{ID: "vol-a", SizeGiB: 8},
		cloud.Volume{ID: "vol-b", SizeGiB: 100},
	)
	client.AddInstance(cloud.Instance{ID: "i-2", State: cloud.InstanceRunning, Tags: cloud.Tags{"Name": "db"}},
		cloud.Volume{ID: "vol-c", SizeGiB: 50},
	)
	client.AddSnapshot(managedSnapshot("snap-old", "vol-a", "2024/01/04", 8))
	client.AddSnapshot(managedSnapshot("snap-keep", "vol-a", "2024/01/05", 8))

	summary, err := newRunner(t, map[string]*cloudtest.Client{"r1": client}, "r1").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Date != "2024/01/09" || summary.RunID != "req-test" {
		t.Errorf("summary header = %q %q", summary.Date, summary.RunID)
	}
	total := summary.Total()
	if total.SnapshotsCreated != 2 || total.CreatedSizeGiB != 108 {
		t.Errorf("created = %d (%d GiB), want 2 (108 GiB)", total.SnapshotsCreated, total.CreatedSizeGiB)
	}
	if total.SnapshotsDeleted != 1 || !slices.Equal(client.Deleted, []string{"snap-old"}) {
		t.Errorf("deleted = %v", client.Deleted)
	}

	for _, id := range client.SnapshotIDs() {
		snap, _ := client.Snapshot(id)
		if snap.VolumeID == "vol-c" {
			t.Errorf("untagged instance was snapshotted: %s", id)
		}
	}
	if !client.LastInstanceFilter.ByTag() {
		t.Errorf("expected a tag filter, got %+v", client.LastInstanceFilter)
	}
}

func TestRun_FreshSnapshotsSurviveReclamation(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddInstance(taggedInstance("i-1", "web"), cloud.Volume{ID: "vol-a", SizeGiB: 1})

	runner := newRunner(t, map[string]*cloudtest.Client{"r1": client}, "r1")
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(client.Deleted) != 0 {
		t.Errorf("deleted = %v, want none", client.Deleted)
	}
	if ids := client.SnapshotIDs(); len(ids) != 2 {
		t.Errorf("snapshots = %v, want one per run", ids)
	}
}

func TestRun_RunDateOverridesClock(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddSnapshot(managedSnapshot("snap-1", "vol-a", "2024/01/05", 1))

	runner := newRunner(t, map[string]*cloudtest.Client{"r1": client}, "r1")
	runner.RunDate = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC) // Monday, cutoff 2024/01/05

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Date != "2024/01/08" {
		t.Errorf("date = %s", summary.Date)
	}
	if !slices.Equal(client.Deleted, []string{"snap-1"}) {
		t.Errorf("deleted = %v, want [snap-1]", client.Deleted)
	}
}

func TestRun_UnreachableRegionIsRecorded(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddInstance(taggedInstance("i-1", "web"), cloud.Volume{ID: "vol-a", SizeGiB: 1})

	notifier := &recordingNotifier{}
	runner := newRunner(t, map[string]*cloudtest.Client{"r1": client}, "r1", "r2")
	runner.Notifier = notifier

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(summary.Regions) != 2 || summary.Regions[1].Error == "" {
		t.Errorf("regions = %+v", summary.Regions)
	}
	if summary.Total().SnapshotsCreated != 1 {
		t.Errorf("reachable region not processed")
	}
	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifier.count())
	}
	if _, ok := notifier.sent[0].(notifications.RunSummary); !ok {
		t.Errorf("notification type = %T", notifier.sent[0])
	}
}

func TestRun_NoRegionReachable(t *testing.T) {
	runner := newRunner(t, map[string]*cloudtest.Client{}, "r1", "r2")

	summary, err := runner.Run(context.Background())
	if !errors.Is(err, ErrNoRegionReachable) {
		t.Fatalf("Run() error = %v, want ErrNoRegionReachable", err)
	}
	if len(summary.Regions) != 2 {
		t.Errorf("regions = %+v", summary.Regions)
	}
}

func TestRun_DiscoverRegions(t *testing.T) {
	bootstrap := cloudtest.NewClient("")
	bootstrap.Regions = []string{"r1", "r2"}
	r1 := cloudtest.NewClient("r1")
	r1.AddInstance(taggedInstance("i-1", "a"), cloud.Volume{ID: "vol-a", SizeGiB: 1})
	r2 := cloudtest.NewClient("r2")
	r2.AddInstance(taggedInstance("i-2", "b"), cloud.Volume{ID: "vol-b", SizeGiB: 2})

	runner := newRunner(t, map[string]*cloudtest.Client{"": bootstrap, "r1": r1, "r2": r2})
	runner.DiscoverRegions = true

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range summary.Regions {
		got = append(got, r.Region)
	}
	if !slices.Equal(got, []string{"r1", "r2"}) {
		t.Errorf("regions = %v", got)
	}
	if total := summary.Total(); total.SnapshotsCreated != 2 || total.CreatedSizeGiB != 3 {
		t.Errorf("totals = %+v", total)
	}
}

func TestRun_StateSelection(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.AddInstance(taggedInstance("i-run", "a"), cloud.Volume{ID: "vol-a", SizeGiB: 1})
	stopped := taggedInstance("i-stop", "b")
	stopped.State = cloud.InstanceStopped
	client.AddInstance(stopped, cloud.Volume{ID: "vol-b", SizeGiB: 1})
	client.AddInstance(cloud.Instance{ID: "i-untagged", State: cloud.InstanceRunning, Tags: cloud.Tags{}},
		cloud.Volume{ID: "vol-c", SizeGiB: 1})

	runner := newRunner(t, map[string]*cloudtest.Client{"r1": client}, "r1")
	runner.Selection = policy.Selection{Mode: policy.SelectByState, States: []cloud.InstanceState{cloud.InstanceRunning}}
	if err := runner.Selection.Normalize(); err != nil {
		t.Fatal(err)
	}
	runner.Phases = Phases{Backup: true}

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := summary.Total().SnapshotsCreated; got != 1 {
		t.Errorf("created = %d, want 1", got)
	}
	if client.LastInstanceFilter.ByTag() {
		t.Errorf("state mode sent a tag filter: %+v", client.LastInstanceFilter)
	}
}

func TestRun_ListInstancesFailureStillReclaims(t *testing.T) {
	client := cloudtest.NewClient("r1")
	client.ListInstancesErr = errors.New("api down")
	client.AddSnapshot(managedSnapshot("snap-old", "vol-a", "2023/12/01", 1))

	summary, err := newRunner(t, map[string]*cloudtest.Client{"r1": client}, "r1").Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	total := summary.Total()
	if total.Failures != 1 || total.SnapshotsDeleted != 1 {
		t.Errorf("totals = %+v", total)
	}
}

func TestRunner_Today(t *testing.T) {
	r := &Runner{Clock: testclock.NewClock(time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC))}
	if got := policy.FormatDate(r.Today()); got != "2024/03/05" {
		t.Errorf("Today() = %s", got)
	}
}
