package ec2

import (
	"context"
	"errors"
	"fmt"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// CreateSnapshot starts an EBS snapshot with the tags applied atomically
// through TagSpecifications. EC2 returns as soon as the snapshot is pending;
// the copy completes in the background.
//
// CreateSnapshot is not idempotent, so only a throttled request is sent again.
// A lost response is reported as an error instead of risking a second snapshot.
func (c *Client) CreateSnapshot(ctx context.Context, vol cloud.Volume, description string, tags cloud.Tags) (cloud.Snapshot, error) {
	input := &ec2.CreateSnapshotInput{
		VolumeId:    aws.String(vol.ID),
		Description: aws.String(description),
	}
	if len(tags) > 0 {
		input.TagSpecifications = []types.TagSpecification{{
			ResourceType: types.ResourceTypeSnapshot,
			Tags:         tagsToEC2(tags),
		}}
	}

	var out *ec2.CreateSnapshotOutput
	err := cloud.ExecuteAction(ctx, c.RetryConfig, isThrottled, "CreateSnapshot", func(innerCtx context.Context) error {
		var err error
		out, err = c.API.CreateSnapshot(innerCtx, input)
		return err
	})
	if err != nil {
		return cloud.Snapshot{}, fmt.Errorf("creating snapshot of %s failed: %w", vol.ID, err)
	}

	tags, _ = tagsFromEC2(out.Tags)
	snap := cloud.Snapshot{
		ID:        aws.ToString(out.SnapshotId),
		VolumeID:  aws.ToString(out.VolumeId),
		SizeGiB:   int(aws.ToInt32(out.VolumeSize)),
		CreatedAt: aws.ToTime(out.StartTime),
		Tags:      tags,
	}
	if snap.SizeGiB == 0 {
		snap.SizeGiB = vol.SizeGiB
	}
	return snap, nil
}

// TagResource adds the tags to any EC2 resource. CreateTags works across
// resource kinds, so kind is ignored.
func (c *Client) TagResource(ctx context.Context, _ cloud.ResourceKind, resourceID string, tags cloud.Tags) error {
	return c.executeWithRetry(ctx, "CreateTags", func(innerCtx context.Context) error {
		_, err := c.API.CreateTags(innerCtx, &ec2.CreateTagsInput{
			Resources: []string{resourceID},
			Tags:      tagsToEC2(tags),
		})
		return err
	})
}

// ListSnapshots pages through the account's own snapshots carrying the filter tag.
func (c *Client) ListSnapshots(ctx context.Context, filter cloud.SnapshotFilter) ([]cloud.Snapshot, error) {
	input := &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	}
	if filter.TagKey != "" {
		input.Filters = []types.Filter{{
			Name:   aws.String("tag:" + filter.TagKey),
			Values: []string{filter.TagValue},
		}}
	}

	var snaps []cloud.Snapshot
	listOperation := func(innerCtx context.Context) error {
		snaps = snaps[:0]
		paginator := ec2.NewDescribeSnapshotsPaginator(c.API, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(innerCtx)
			if err != nil {
				return err
			}
			for _, s := range page.Snapshots {
				snaps = append(snaps, snapshotFromEC2(s))
			}
		}
		return nil
	}

	if err := c.executeWithRetry(ctx, "DescribeSnapshots", listOperation); err != nil {
		return nil, fmt.Errorf("listing snapshots failed: %w", err)
	}
	return snaps, nil
}

// DeleteSnapshot deletes the snapshot. A snapshot backing a registered AMI is
// refused with InvalidSnapshot.InUse.
//
// A NotFound answer to a retry means an earlier attempt went through with its
// response lost, so it counts as a successful delete.
func (c *Client) DeleteSnapshot(ctx context.Context, snap cloud.Snapshot) error {
	attempts := 0
	err := c.executeWithRetry(ctx, "DeleteSnapshot", func(innerCtx context.Context) error {
		attempts++
		_, err := c.API.DeleteSnapshot(innerCtx, &ec2.DeleteSnapshotInput{
			SnapshotId: aws.String(snap.ID),
		})
		return err
	})
	if err != nil {
		err = translateDeleteError(snap.ID, err)
		if attempts > 1 && errors.Is(err, cloud.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}
