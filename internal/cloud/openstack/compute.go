package openstack

import (
	"context"
	"fmt"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/regions"
)

// ListInstances returns the Nova servers of the project that match the filter.
//
// Nova cannot filter on metadata server side, so the tag predicate is applied
// after listing. Server metadata is exposed as instance tags and the server
// name is used as the "Name" tag when the metadata carries none.
func (c *Client) ListInstances(ctx context.Context, filter cloud.InstanceFilter) ([]cloud.Instance, error) {
	var all []servers.Server

	listOperation := func(innerCtx context.Context) error {
		pages, err := servers.List(c.ComputeClient, servers.ListOpts{}).AllPages(innerCtx)
		if err != nil {
			return err
		}
		all, err = servers.ExtractServers(pages)
		return err
	}

	if err := c.executeWithRetry(ctx, "ListServers", listOperation); err != nil {
		return nil, fmt.Errorf("listing servers failed: %w", err)
	}

	instances := make([]cloud.Instance, 0, len(all))
	for _, srv := range all {
		inst := serverToInstance(srv, c.Region)
		if filter.Matches(inst) {
			instances = append(instances, inst)
		}
	}
	return instances, nil
}

func serverToInstance(srv servers.Server, region string) cloud.Instance {
	tags := metadataToTags(srv.Metadata)
	if _, ok := tags["Name"]; !ok && srv.Name != "" {
		tags["Name"] = srv.Name
	}
	return cloud.Instance{
		ID:     srv.ID,
		Region: region,
		State:  mapServerStatus(srv.Status),
		Tags:   tags,
	}
}

// ListRegions returns the region identifiers known to Keystone.
func (c *Client) ListRegions(ctx context.Context) ([]string, error) {
	var names []string

	listOperation := func(innerCtx context.Context) error {
		pages, err := regions.List(c.IdentityClient, regions.ListOpts{}).AllPages(innerCtx)
		if err != nil {
			return err
		}
		all, err := regions.ExtractRegions(pages)
		if err != nil {
			return err
		}
		names = names[:0]
		for _, r := range all {
			names = append(names, r.ID)
		}
		return nil
	}

	if err := c.executeWithRetry(ctx, "ListRegions", listOperation); err != nil {
		return nil, fmt.Errorf("listing regions failed: %w", err)
	}
	return names, nil
}
