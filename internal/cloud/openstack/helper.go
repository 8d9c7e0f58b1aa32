package openstack

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/gophercloud/gophercloud/v2"
)

// isRetryable determines if an error is transient and warrants a retry.
// It specifically checks for standard HTTP 429/5xx codes from Gophercloud
// and assumes other unknown network errors are also retryable.
func isRetryable(err error) bool {
	var gopherErrors gophercloud.ErrUnexpectedResponseCode

	if errors.As(err, &gopherErrors) {
		switch gopherErrors.Actual {
		case http.StatusTooManyRequests,
			http.StatusRequestTimeout,
			http.StatusInternalServerError,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			// Client errors (400, 401, 404, 409 etc.) mean the request itself is invalid.
			return false
		}
	}
	// DNS failure, connection reset and friends.
	return true
}

// isRejected reports whether Cinder refused a request before acting on it.
// Non-idempotent calls are retried only on these codes.
func isRejected(err error) bool {
	return gophercloud.ResponseCodeIs(err, http.StatusTooManyRequests) ||
		gophercloud.ResponseCodeIs(err, http.StatusServiceUnavailable)
}

// translateDeleteError maps Cinder's refusal codes onto the provider-neutral sentinels.
// Cinder answers 400 when the snapshot status forbids deletion and 409 when
// dependent resources exist.
func translateDeleteError(snapshotID string, err error) error {
	switch {
	case gophercloud.ResponseCodeIs(err, http.StatusNotFound):
		return fmt.Errorf("snapshot %s: %w", snapshotID, cloud.ErrNotFound)
	case gophercloud.ResponseCodeIs(err, http.StatusConflict),
		gophercloud.ResponseCodeIs(err, http.StatusBadRequest):
		return fmt.Errorf("snapshot %s: %w: %v", snapshotID, cloud.ErrResourceInUse, err)
	default:
		return err
	}
}

// mapServerStatus converts a Nova server status into the neutral lifecycle state.
func mapServerStatus(status string) cloud.InstanceState {
	switch status {
	case "ACTIVE":
		return cloud.InstanceRunning
	case "SHUTOFF", "STOPPED", "SUSPENDED", "PAUSED", "SHELVED", "SHELVED_OFFLOADED":
		return cloud.InstanceStopped
	case "BUILD", "REBUILD", "REBOOT", "HARD_REBOOT", "RESIZE", "MIGRATING":
		return cloud.InstancePending
	case "DELETED", "SOFT_DELETED":
		return cloud.InstanceTerminated
	default:
		return cloud.InstanceUnknown
	}
}

// metadataToTags copies Cinder/Nova metadata into a Tags map.
func metadataToTags(metadata map[string]string) cloud.Tags {
	tags := make(cloud.Tags, len(metadata))
	for k, v := range metadata {
		tags[k] = v
	}
	return tags
}
