// Package ec2 implements the resource client on top of Amazon EC2 and EBS.
package ec2

import (
	"context"
	"fmt"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// API is the subset of the EC2 client used by this package.
type API interface {
	ec2.DescribeInstancesAPIClient
	ec2.DescribeVolumesAPIClient
	ec2.DescribeSnapshotsAPIClient

	CreateSnapshot(ctx context.Context, in *ec2.CreateSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error)
	CreateTags(ctx context.Context, in *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DeleteSnapshot(ctx context.Context, in *ec2.DeleteSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
	DescribeRegions(ctx context.Context, in *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// Client talks to EC2 in a single region.
type Client struct {
	Region      string
	RetryConfig cloud.RetryConfig

	// API is populated by NewClient, or set directly in tests.
	API API
}

var _ cloud.ResourceClient = (*Client)(nil)

// GetCloudProviderName returns the identifier for this provider.
func (c *Client) GetCloudProviderName() string {
	return "ec2"
}

func (c *Client) executeWithRetry(ctx context.Context, opName string, operation func(ctx context.Context) error) error {
	return cloud.ExecuteAction(ctx, c.RetryConfig, isRetryable, opName, operation)
}

// NewClient loads the default AWS configuration chain for the region and
// verifies that the credentials are accepted.
//
// The SDK's own retryer is limited to one attempt; retries are handled by
// cloud.ExecuteAction so that every provider backs off the same way.
func (c *Client) NewClient(ctx context.Context) error {
	c.RetryConfig.LoggerOrDefault().Debug("Initializing EC2 client", "region", c.Region)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(c.Region),
		config.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return fmt.Errorf("loading AWS configuration failed: %w", err)
	}

	c.API = ec2.NewFromConfig(cfg)

	probe := func(innerCtx context.Context) error {
		_, err := c.API.DescribeRegions(innerCtx, &ec2.DescribeRegionsInput{
			RegionNames: []string{c.Region},
		})
		return err
	}
	if err := c.executeWithRetry(ctx, "EC2 Authentication", probe); err != nil {
		return fmt.Errorf("connecting to EC2 in %s failed: %w", c.Region, err)
	}
	return nil
}
