package openstack

import (
	"context"
	"errors"
	"fmt"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/blockstorage/v3/snapshots"
)

// CreateSnapshot triggers the creation of a new snapshot and waits for it to become available.
//
// Behavior:
//   - Force Creation: Uses the `Force: true` flag, allowing snapshots to be taken even if the
//     volume is currently attached ("in-use") by an instance.
//   - Tagged at Birth: The tags are sent as snapshot metadata in the create request.
//   - Single Create: Only a request Cinder explicitly rejected (429/503) is sent again, so a
//     lost response never produces a second, unreturned snapshot.
//   - Synchronous Wait: Blocks under ctx until the snapshot is "available". Reaching "error"
//     yields cloud.ErrSnapshotFailed; running out of time yields the context error and the
//     still-creating snapshot.
func (c *Client) CreateSnapshot(ctx context.Context, vol cloud.Volume, description string, tags cloud.Tags) (cloud.Snapshot, error) {
	var requestID string
	var created *snapshots.Snapshot

	createOperation := func(innerCtx context.Context) error {
		opts := snapshots.CreateOpts{
			VolumeID:    vol.ID,
			Force:       true,
			Description: description,
			Metadata:    map[string]string(tags),
		}

		result := snapshots.Create(innerCtx, c.BlockStorageClient, opts)
		requestID = result.Header.Get("X-Openstack-Request-Id")

		snap, err := result.Extract()
		if err != nil {
			return err
		}
		created = snap
		return nil
	}

	if err := cloud.ExecuteAction(ctx, c.RetryConfig, isRejected, "CreateVolumeSnapshot", createOperation); err != nil {
		return cloud.Snapshot{}, fmt.Errorf("creating snapshot of %s failed: %w", vol.ID, err)
	}

	c.RetryConfig.LoggerOrDefault().Debug("Snapshot accepted", "snapshot_id", created.ID, "volume_id", vol.ID, "request_id", requestID)

	current, err := c.waitForSnapshot(ctx, created.ID)
	if current != nil {
		created = current
	}

	snap := snapshotToCloud(*created)
	if snap.SizeGiB == 0 {
		snap.SizeGiB = vol.SizeGiB
	}
	if err != nil {
		return snap, fmt.Errorf("waiting for snapshot %s to become available: %w", created.ID, err)
	}
	return snap, nil
}

// waitForSnapshot polls until the snapshot is available or in error. Transient
// polling errors are tolerated until ctx expires. The last observed snapshot
// is returned in every case.
func (c *Client) waitForSnapshot(ctx context.Context, id string) (*snapshots.Snapshot, error) {
	var last *snapshots.Snapshot

	err := gophercloud.WaitFor(ctx, func(innerCtx context.Context) (bool, error) {
		current, err := snapshots.Get(innerCtx, c.BlockStorageClient, id).Extract()
		if err != nil {
			if isRetryable(err) && innerCtx.Err() == nil {
				c.RetryConfig.LoggerOrDefault().Debug("Transient error polling snapshot status", "snapshot_id", id, "error", err)
				return false, nil
			}
			return false, err
		}
		last = current

		switch current.Status {
		case "available":
			return true, nil
		case "error":
			return false, cloud.ErrSnapshotFailed
		default:
			return false, nil
		}
	})
	return last, err
}

// ListSnapshots returns the project's Cinder snapshots that carry the filter tag.
// Cinder's metadata filter is not available on every deployment, so the
// predicate is applied after listing.
func (c *Client) ListSnapshots(ctx context.Context, filter cloud.SnapshotFilter) ([]cloud.Snapshot, error) {
	var all []snapshots.Snapshot

	listOperation := func(innerCtx context.Context) error {
		pages, err := snapshots.List(c.BlockStorageClient, snapshots.ListOpts{}).AllPages(innerCtx)
		if err != nil {
			return err
		}
		all, err = snapshots.ExtractSnapshots(pages)
		return err
	}

	if err := c.executeWithRetry(ctx, "ListSnapshots", listOperation); err != nil {
		return nil, fmt.Errorf("listing snapshots failed: %w", err)
	}

	result := make([]cloud.Snapshot, 0, len(all))
	for _, s := range all {
		snap := snapshotToCloud(s)
		if filter.Matches(snap) {
			result = append(result, snap)
		}
	}
	return result, nil
}

// DeleteSnapshot removes a snapshot from the backend storage.
//
// Behavior:
//   - Regular Delete: Cinder is allowed to refuse the request while the snapshot is
//     still referenced. The refusal is returned wrapped in cloud.ErrResourceInUse.
//   - Lost Responses: A 404 on a retry means an earlier attempt was accepted, so it
//     counts as a successful delete.
//   - Asynchronous: The method returns once the delete request is accepted by the API.
func (c *Client) DeleteSnapshot(ctx context.Context, snap cloud.Snapshot) error {
	var requestID string
	attempts := 0
	deleteOperation := func(innerCtx context.Context) error {
		attempts++
		result := snapshots.Delete(innerCtx, c.BlockStorageClient, snap.ID)
		requestID = result.Header.Get("X-Openstack-Request-Id")
		return result.Err
	}

	if err := c.executeWithRetry(ctx, "DeleteVolumeSnapshot", deleteOperation); err != nil {
		err = translateDeleteError(snap.ID, err)
		if attempts > 1 && errors.Is(err, cloud.ErrNotFound) {
			c.RetryConfig.LoggerOrDefault().Debug("Snapshot gone after retried delete", "snapshot_id", snap.ID)
			return nil
		}
		return err
	}

	c.RetryConfig.LoggerOrDefault().Debug("Snapshot delete accepted", "snapshot_id", snap.ID, "request_id", requestID)
	return nil
}
