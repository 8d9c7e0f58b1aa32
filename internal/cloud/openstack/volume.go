package openstack

import (
	"context"
	"fmt"
	"maps"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/gophercloud/gophercloud/v2/openstack/blockstorage/v3/snapshots"
	"github.com/gophercloud/gophercloud/v2/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
)

// ListVolumesForInstance returns the Cinder volumes attached to the server.
// Each attachment is fetched from Cinder to learn the volume size.
func (c *Client) ListVolumesForInstance(ctx context.Context, inst cloud.Instance) ([]cloud.Volume, error) {
	var srv *servers.Server
	getOperation := func(innerCtx context.Context) error {
		s, err := servers.Get(innerCtx, c.ComputeClient, inst.ID).Extract()
		if err != nil {
			return err
		}
		srv = s
		return nil
	}
	if err := c.executeWithRetry(ctx, "GetServer", getOperation); err != nil {
		return nil, fmt.Errorf("fetching server %s failed: %w", inst.ID, err)
	}

	vols := make([]cloud.Volume, 0, len(srv.AttachedVolumes))
	for _, attached := range srv.AttachedVolumes {
		var vol *volumes.Volume
		volOperation := func(innerCtx context.Context) error {
			v, err := volumes.Get(innerCtx, c.BlockStorageClient, attached.ID).Extract()
			if err != nil {
				return err
			}
			vol = v
			return nil
		}
		if err := c.executeWithRetry(ctx, "GetVolume", volOperation); err != nil {
			return nil, fmt.Errorf("fetching volume %s failed: %w", attached.ID, err)
		}
		vols = append(vols, cloud.Volume{
			ID:         vol.ID,
			InstanceID: inst.ID,
			SizeGiB:    vol.Size,
		})
	}
	return vols, nil
}

// TagResource merges the tags into the metadata of a server or a snapshot.
//
// Server metadata is merged by Nova itself. Snapshot metadata follows a
// "Read-Modify-Write" strategy so that unrelated keys are preserved and
// incoming keys overwrite existing ones.
func (c *Client) TagResource(ctx context.Context, kind cloud.ResourceKind, resourceID string, tags cloud.Tags) error {
	switch kind {
	case cloud.KindInstance:
		return c.executeWithRetry(ctx, "UpdateServerMetadata", func(innerCtx context.Context) error {
			_, err := servers.UpdateMetadata(innerCtx, c.ComputeClient, resourceID, servers.MetadataOpts(tags)).Extract()
			return err
		})
	case cloud.KindSnapshot:
		return c.executeWithRetry(ctx, "UpdateSnapshotMetadata", func(innerCtx context.Context) error {
			snap, err := snapshots.Get(innerCtx, c.BlockStorageClient, resourceID).Extract()
			if err != nil {
				return err
			}

			merged := make(map[string]any, len(snap.Metadata)+len(tags))
			for k, v := range snap.Metadata {
				merged[k] = v
			}
			for k, v := range tags {
				merged[k] = v
			}

			return snapshots.UpdateMetadata(innerCtx, c.BlockStorageClient, resourceID, snapshots.UpdateMetadataOpts{
				Metadata: merged,
			}).Err
		})
	default:
		return fmt.Errorf("unsupported resource kind %q", kind)
	}
}

// snapshotToCloud converts a Cinder snapshot into the neutral form.
func snapshotToCloud(snap snapshots.Snapshot) cloud.Snapshot {
	return cloud.Snapshot{
		ID:        snap.ID,
		VolumeID:  snap.VolumeID,
		SizeGiB:   snap.Size,
		CreatedAt: snap.CreatedAt,
		Tags:      maps.Clone(cloud.Tags(snap.Metadata)),
	}
}
