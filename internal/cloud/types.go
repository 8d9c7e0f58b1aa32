package cloud

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors that providers wrap so the orchestrators can tell
// recoverable per-item conditions apart without knowing the provider.
var (
	// ErrResourceInUse is returned when a snapshot cannot be deleted because
	// something (an image, a volume) still references it.
	ErrResourceInUse = errors.New("resource is in use")

	// ErrNotFound is returned when the resource no longer exists.
	ErrNotFound = errors.New("resource not found")

	// ErrSnapshotFailed is returned when the provider reports the new
	// snapshot in an error state. The snapshot is unusable.
	ErrSnapshotFailed = errors.New("snapshot entered error state")
)

// Tags is the key/value label set of a compute resource.
type Tags map[string]string

// InstanceState is a provider-neutral lifecycle state.
type InstanceState string

const (
	InstanceRunning    InstanceState = "running"
	InstanceStopped    InstanceState = "stopped"
	InstancePending    InstanceState = "pending"
	InstanceTerminated InstanceState = "terminated"
	InstanceUnknown    InstanceState = "unknown"
)

// ResourceKind tells TagResource which API owns the resource.
type ResourceKind string

const (
	KindInstance ResourceKind = "instance"
	KindSnapshot ResourceKind = "snapshot"
)

// Instance is a virtual machine as seen by the backup job. It is read-only.
type Instance struct {
	ID     string
	Region string
	State  InstanceState
	Tags   Tags

	// DuplicateTagKeys lists keys the provider returned more than once.
	// Tags holds the last value seen for them.
	DuplicateTagKeys []string
}

// Volume is a block-storage volume attached to an Instance.
type Volume struct {
	ID         string
	InstanceID string
	SizeGiB    int
}

// Snapshot is a point-in-time copy of a Volume.
type Snapshot struct {
	ID        string
	VolumeID  string
	SizeGiB   int
	CreatedAt time.Time
	Tags      Tags
}

// InstanceFilter narrows ListInstances. Either the tag pair or States is set.
type InstanceFilter struct {
	TagKey   string
	TagValue string
	States   []InstanceState
}

// ByTag reports whether the filter is a tag-equality predicate.
func (f InstanceFilter) ByTag() bool {
	return f.TagKey != ""
}

// Matches applies the filter to an already listed instance. Providers that
// cannot filter server side use it after listing.
func (f InstanceFilter) Matches(inst Instance) bool {
	if f.ByTag() {
		v, ok := inst.Tags[f.TagKey]
		if !ok || v != f.TagValue {
			return false
		}
	}
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if inst.State == s {
			return true
		}
	}
	return false
}

// SnapshotFilter is a tag-equality predicate for ListSnapshots.
type SnapshotFilter struct {
	TagKey   string
	TagValue string
}

// Matches reports whether the snapshot carries the filter's tag.
func (f SnapshotFilter) Matches(snap Snapshot) bool {
	if f.TagKey == "" {
		return true
	}
	v, ok := snap.Tags[f.TagKey]
	return ok && v == f.TagValue
}

// ResourceClient is the inventory and snapshot surface of a cloud provider,
// scoped to one region. Implementations must be safe for concurrent use.
type ResourceClient interface {
	// GetCloudProviderName returns the identifier for this provider.
	GetCloudProviderName() string

	ListInstances(ctx context.Context, filter InstanceFilter) ([]Instance, error)
	ListVolumesForInstance(ctx context.Context, inst Instance) ([]Volume, error)

	// CreateSnapshot starts a snapshot of the volume with tags applied at
	// creation. On failure the returned Snapshot may still carry an ID if the
	// provider left a resource behind; the error wraps ErrSnapshotFailed only
	// when that resource is unusable. Any other error with an ID means the
	// snapshot exists but was not confirmed ready before ctx expired.
	CreateSnapshot(ctx context.Context, vol Volume, description string, tags Tags) (Snapshot, error)

	TagResource(ctx context.Context, kind ResourceKind, resourceID string, tags Tags) error
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]Snapshot, error)

	// DeleteSnapshot returns nil only when the provider accepted the delete.
	// It wraps ErrResourceInUse or ErrNotFound where applicable.
	DeleteSnapshot(ctx context.Context, snap Snapshot) error

	ListRegions(ctx context.Context) ([]string, error)
}
