package openstack

import (
	"context"
	"fmt"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/utils/v2/openstack/clientconfig"
)

// Client manages the connection and service clients for OpenStack interactions.
// It wraps standard gophercloud clients with retry logic and profile management.
type Client struct {
	// ProfileName corresponds to the entry in clouds.yaml
	ProfileName string
	// Region overrides region_name from the profile when set.
	Region string
	// RetryConfig defines the behavior for transient error handling
	RetryConfig cloud.RetryConfig

	// Internal service clients
	ComputeClient      *gophercloud.ServiceClient
	BlockStorageClient *gophercloud.ServiceClient
	IdentityClient     *gophercloud.ServiceClient
}

var _ cloud.ResourceClient = (*Client)(nil)

// executeWithRetry is a helper to run any operation using the client's retry configuration.
func (c *Client) executeWithRetry(ctx context.Context, opName string, operation func(ctx context.Context) error) error {
	return cloud.ExecuteAction(ctx, c.RetryConfig, isRetryable, opName, operation)
}

// GetCloudProviderName returns the identifier for this provider.
func (c *Client) GetCloudProviderName() string {
	return "openstack"
}

// NewClient initializes the OpenStack provider and specific service clients (Cinder, Nova, Keystone).
// It attempts to authenticate using the configured ProfileName with retry logic.
func (c *Client) NewClient(ctx context.Context) error {
	c.RetryConfig.LoggerOrDefault().Debug("Initializing OpenStack client", "profile", c.ProfileName, "region", c.Region)

	opts := &clientconfig.ClientOpts{
		Cloud:      c.ProfileName,
		RegionName: c.Region,
	}

	var provider *gophercloud.ProviderClient

	// 1. Establish Connection & Authentication
	err := c.executeWithRetry(ctx, "OpenStack Authentication", func(ctx context.Context) error {
		p, err := clientconfig.AuthenticatedClient(ctx, opts)
		if err != nil {
			return err
		}
		provider = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("authentication failed for profile '%s': %w", c.ProfileName, err)
	}

	cloudConfig, err := clientconfig.GetCloudFromYAML(opts)
	if err != nil {
		return fmt.Errorf("failed to parse cloud config: %w", err)
	}

	var availability gophercloud.Availability
	switch cloudConfig.EndpointType {
	case "internal":
		availability = gophercloud.AvailabilityInternal
	case "admin":
		availability = gophercloud.AvailabilityAdmin
	default:
		availability = gophercloud.AvailabilityPublic
	}

	region := c.Region
	if region == "" {
		region = cloudConfig.RegionName
	}

	endpointOpts := gophercloud.EndpointOpts{
		Availability: availability,
		Region:       region,
	}

	// 2. Block Storage (Cinder)
	blockStorage, err := openstack.NewBlockStorageV3(provider, endpointOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize Block Storage v3 client: %w", err)
	}

	// 3. Compute (Nova)
	compute, err := openstack.NewComputeV2(provider, endpointOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize Compute v2 client: %w", err)
	}

	// 4. Identity (Keystone), used for region discovery
	identity, err := openstack.NewIdentityV3(provider, endpointOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize Identity V3 client: %w", err)
	}

	c.BlockStorageClient = blockStorage
	c.ComputeClient = compute
	c.IdentityClient = identity
	c.Region = region

	return nil
}
