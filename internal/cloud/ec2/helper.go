package ec2

import (
	"errors"
	"fmt"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// EC2 error codes that carry meaning for the workflows.
const (
	codeSnapshotInUse    = "InvalidSnapshot.InUse"
	codeSnapshotNotFound = "InvalidSnapshot.NotFound"
)

// isRetryable reports whether an EC2 error is transient.
// API errors are retried only for throttling and server side faults;
// anything that is not an API error (DNS, connection reset) is retried.
func isRetryable(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "RequestLimitExceeded", "Throttling", "ThrottlingException",
			"InternalError", "InternalFailure", "ServiceUnavailable", "Unavailable":
			return true
		default:
			return false
		}
	}
	return true
}

// isThrottled reports whether EC2 rejected the request before processing it.
func isThrottled(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "RequestLimitExceeded", "Throttling", "ThrottlingException":
		return true
	default:
		return false
	}
}

func translateDeleteError(snapshotID string, err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case codeSnapshotNotFound:
		return fmt.Errorf("snapshot %s: %w", snapshotID, cloud.ErrNotFound)
	case codeSnapshotInUse:
		return fmt.Errorf("snapshot %s: %w: %s", snapshotID, cloud.ErrResourceInUse, apiErr.ErrorMessage())
	default:
		return err
	}
}

// tagsFromEC2 converts a tag list and reports keys that appear more than once.
// The last value wins in the returned map.
func tagsFromEC2(in []types.Tag) (cloud.Tags, []string) {
	tags := make(cloud.Tags, len(in))
	var duplicates []string
	for _, t := range in {
		key := aws.ToString(t.Key)
		if _, seen := tags[key]; seen {
			duplicates = append(duplicates, key)
		}
		tags[key] = aws.ToString(t.Value)
	}
	return tags, duplicates
}

func tagsToEC2(tags cloud.Tags) []types.Tag {
	out := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out
}

func mapInstanceState(state *types.InstanceState) cloud.InstanceState {
	if state == nil {
		return cloud.InstanceUnknown
	}
	switch state.Name {
	case types.InstanceStateNameRunning:
		return cloud.InstanceRunning
	case types.InstanceStateNameStopped, types.InstanceStateNameStopping:
		return cloud.InstanceStopped
	case types.InstanceStateNamePending:
		return cloud.InstancePending
	case types.InstanceStateNameTerminated, types.InstanceStateNameShuttingDown:
		return cloud.InstanceTerminated
	default:
		return cloud.InstanceUnknown
	}
}

// stateNames maps neutral states back to EC2 filter values.
func stateNames(states []cloud.InstanceState) []string {
	var names []string
	for _, s := range states {
		switch s {
		case cloud.InstanceRunning:
			names = append(names, string(types.InstanceStateNameRunning))
		case cloud.InstanceStopped:
			names = append(names, string(types.InstanceStateNameStopped), string(types.InstanceStateNameStopping))
		case cloud.InstancePending:
			names = append(names, string(types.InstanceStateNamePending))
		case cloud.InstanceTerminated:
			names = append(names, string(types.InstanceStateNameTerminated), string(types.InstanceStateNameShuttingDown))
		}
	}
	return names
}

func snapshotFromEC2(s types.Snapshot) cloud.Snapshot {
	tags, _ := tagsFromEC2(s.Tags)
	return cloud.Snapshot{
		ID:        aws.ToString(s.SnapshotId),
		VolumeID:  aws.ToString(s.VolumeId),
		SizeGiB:   int(aws.ToInt32(s.VolumeSize)),
		CreatedAt: aws.ToTime(s.StartTime),
		Tags:      tags,
	}
}
