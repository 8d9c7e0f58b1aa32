package ec2

import (
	"context"
	"fmt"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// ListInstances pages through DescribeInstances with the filter applied server side.
func (c *Client) ListInstances(ctx context.Context, filter cloud.InstanceFilter) ([]cloud.Instance, error) {
	input := &ec2.DescribeInstancesInput{}
	if filter.ByTag() {
		input.Filters = append(input.Filters, types.Filter{
			Name:   aws.String("tag:" + filter.TagKey),
			Values: []string{filter.TagValue},
		})
	}
	if len(filter.States) > 0 {
		names := stateNames(filter.States)
		if len(names) == 0 {
			return nil, nil
		}
		input.Filters = append(input.Filters, types.Filter{
			Name:   aws.String("instance-state-name"),
			Values: names,
		})
	}

	var instances []cloud.Instance
	listOperation := func(innerCtx context.Context) error {
		instances = instances[:0]
		paginator := ec2.NewDescribeInstancesPaginator(c.API, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(innerCtx)
			if err != nil {
				return err
			}
			for _, res := range page.Reservations {
				for _, inst := range res.Instances {
					tags, duplicates := tagsFromEC2(inst.Tags)
					instances = append(instances, cloud.Instance{
						ID:               aws.ToString(inst.InstanceId),
						Region:           c.Region,
						State:            mapInstanceState(inst.State),
						Tags:             tags,
						DuplicateTagKeys: duplicates,
					})
				}
			}
		}
		return nil
	}

	if err := c.executeWithRetry(ctx, "DescribeInstances", listOperation); err != nil {
		return nil, fmt.Errorf("listing instances failed: %w", err)
	}
	return instances, nil
}

// ListVolumesForInstance returns the EBS volumes attached to the instance.
func (c *Client) ListVolumesForInstance(ctx context.Context, inst cloud.Instance) ([]cloud.Volume, error) {
	input := &ec2.DescribeVolumesInput{
		Filters: []types.Filter{{
			Name:   aws.String("attachment.instance-id"),
			Values: []string{inst.ID},
		}},
	}

	var vols []cloud.Volume
	listOperation := func(innerCtx context.Context) error {
		vols = vols[:0]
		paginator := ec2.NewDescribeVolumesPaginator(c.API, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(innerCtx)
			if err != nil {
				return err
			}
			for _, v := range page.Volumes {
				vols = append(vols, cloud.Volume{
					ID:         aws.ToString(v.VolumeId),
					InstanceID: inst.ID,
					SizeGiB:    int(aws.ToInt32(v.Size)),
				})
			}
		}
		return nil
	}

	if err := c.executeWithRetry(ctx, "DescribeVolumes", listOperation); err != nil {
		return nil, fmt.Errorf("listing volumes for %s failed: %w", inst.ID, err)
	}
	return vols, nil
}

// ListRegions returns the regions enabled for the account.
func (c *Client) ListRegions(ctx context.Context) ([]string, error) {
	var out *ec2.DescribeRegionsOutput
	err := c.executeWithRetry(ctx, "DescribeRegions", func(innerCtx context.Context) error {
		var err error
		out, err = c.API.DescribeRegions(innerCtx, &ec2.DescribeRegionsInput{})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing regions failed: %w", err)
	}

	names := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		names = append(names, aws.ToString(r.RegionName))
	}
	return names, nil
}
