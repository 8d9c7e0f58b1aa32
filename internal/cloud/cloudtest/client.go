// Package cloudtest provides an in-memory cloud.ResourceClient for tests.
package cloudtest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
)

// Client keeps instances, volumes and snapshots in memory. Failures can be
// injected per resource ID. It is safe for concurrent use.
type Client struct {
	mu sync.Mutex

	Region    string
	Regions   []string
	Instances []cloud.Instance
	Volumes   map[string][]cloud.Volume // keyed by instance ID
	Snapshots map[string]cloud.Snapshot // keyed by snapshot ID
	Now       time.Time

	// Injected failures.
	ListInstancesErr error
	ListVolumesErr   map[string]error // keyed by instance ID
	CreateErr        map[string]error // keyed by volume ID
	TagErr           map[string]error // keyed by volume ID of the snapshot
	DeleteErr        map[string]error // keyed by snapshot ID

	// LeaveOrphanOnCreateErr makes a failed create leave a snapshot behind
	// and return it with the error.
	LeaveOrphanOnCreateErr bool

	// Observations.
	LastInstanceFilter cloud.InstanceFilter
	Deleted            []string
	Tagged             map[string]cloud.Tags

	nextID int
}

var _ cloud.ResourceClient = (*Client)(nil)

// NewClient returns an empty client for the region.
func NewClient(region string) *Client {
	return &Client{
		Region:    region,
		Volumes:   map[string][]cloud.Volume{},
		Snapshots: map[string]cloud.Snapshot{},
		Tagged:    map[string]cloud.Tags{},
	}
}

func (c *Client) GetCloudProviderName() string { return "memory" }

// AddInstance registers an instance and its volumes.
func (c *Client) AddInstance(inst cloud.Instance, vols ...cloud.Volume) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst.Region == "" {
		inst.Region = c.Region
	}
	c.Instances = append(c.Instances, inst)
	for i := range vols {
		vols[i].InstanceID = inst.ID
	}
	c.Volumes[inst.ID] = append(c.Volumes[inst.ID], vols...)
}

// AddSnapshot registers an existing snapshot.
func (c *Client) AddSnapshot(snap cloud.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Snapshots[snap.ID] = snap
}

// Snapshot returns a stored snapshot by ID.
func (c *Client) Snapshot(id string) (cloud.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.Snapshots[id]
	return s, ok
}

// SnapshotIDs returns the stored snapshot IDs in sorted order.
func (c *Client) SnapshotIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.Snapshots))
}

func (c *Client) ListInstances(_ context.Context, filter cloud.InstanceFilter) ([]cloud.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastInstanceFilter = filter
	if c.ListInstancesErr != nil {
		return nil, c.ListInstancesErr
	}
	var out []cloud.Instance
	for _, inst := range c.Instances {
		if filter.Matches(inst) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (c *Client) ListVolumesForInstance(_ context.Context, inst cloud.Instance) ([]cloud.Volume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ListVolumesErr[inst.ID]; err != nil {
		return nil, err
	}
	return slices.Clone(c.Volumes[inst.ID]), nil
}

// CreateSnapshot applies the tags at creation unless TagErr is set for the
// volume, in which case the snapshot is left untagged.
func (c *Client) CreateSnapshot(_ context.Context, vol cloud.Volume, description string, tags cloud.Tags) (cloud.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	snap := cloud.Snapshot{
		ID:        fmt.Sprintf("snap-%04d", c.nextID),
		VolumeID:  vol.ID,
		SizeGiB:   vol.SizeGiB,
		CreatedAt: c.Now,
		Tags:      cloud.Tags{},
	}
	if c.TagErr[vol.ID] == nil {
		maps.Copy(snap.Tags, tags)
	}

	if err := c.CreateErr[vol.ID]; err != nil {
		if c.LeaveOrphanOnCreateErr {
			c.Snapshots[snap.ID] = snap
			return snap, err
		}
		return cloud.Snapshot{}, err
	}

	c.Snapshots[snap.ID] = snap
	return snap, nil
}

func (c *Client) TagResource(_ context.Context, kind cloud.ResourceKind, resourceID string, tags cloud.Tags) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch kind {
	case cloud.KindSnapshot:
		snap, ok := c.Snapshots[resourceID]
		if !ok {
			return fmt.Errorf("snapshot %s: %w", resourceID, cloud.ErrNotFound)
		}
		if err := c.TagErr[snap.VolumeID]; err != nil {
			return err
		}
		if snap.Tags == nil {
			snap.Tags = cloud.Tags{}
		}
		maps.Copy(snap.Tags, tags)
		c.Snapshots[resourceID] = snap
	case cloud.KindInstance:
		idx := slices.IndexFunc(c.Instances, func(i cloud.Instance) bool { return i.ID == resourceID })
		if idx < 0 {
			return fmt.Errorf("instance %s: %w", resourceID, cloud.ErrNotFound)
		}
		if c.Instances[idx].Tags == nil {
			c.Instances[idx].Tags = cloud.Tags{}
		}
		maps.Copy(c.Instances[idx].Tags, tags)
	default:
		return fmt.Errorf("unsupported resource kind %q", kind)
	}

	c.Tagged[resourceID] = maps.Clone(tags)
	return nil
}

func (c *Client) ListSnapshots(_ context.Context, filter cloud.SnapshotFilter) ([]cloud.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []cloud.Snapshot
	for _, id := range slices.Sorted(maps.Keys(c.Snapshots)) {
		snap := c.Snapshots[id]
		if filter.Matches(snap) {
			snap.Tags = maps.Clone(snap.Tags)
			out = append(out, snap)
		}
	}
	return out, nil
}

func (c *Client) DeleteSnapshot(_ context.Context, snap cloud.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.DeleteErr[snap.ID]; err != nil {
		return err
	}
	if _, ok := c.Snapshots[snap.ID]; !ok {
		return fmt.Errorf("snapshot %s: %w", snap.ID, cloud.ErrNotFound)
	}
	delete(c.Snapshots, snap.ID)
	c.Deleted = append(c.Deleted, snap.ID)
	return nil
}

func (c *Client) ListRegions(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.Regions), nil
}
