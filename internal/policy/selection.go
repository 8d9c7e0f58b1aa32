package policy

import (
	"errors"
	"fmt"
	"slices"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
)

// SelectionMode names how instances are discovered for backup.
type SelectionMode string

const (
	// SelectByTag asks the provider for instances carrying the marker tag.
	SelectByTag SelectionMode = "tag"
	// SelectByState lists instances in the configured lifecycle states and
	// applies the marker test locally.
	SelectByState SelectionMode = "state"
)

// Selection is the configured instance selection policy.
type Selection struct {
	Mode     SelectionMode
	TagKey   string
	TagValue string
	States   []cloud.InstanceState
}

// Normalize validates the selection and fills in defaults: tag mode,
// AutoBackup=true, and running plus stopped instances for state mode.
func (s *Selection) Normalize() error {
	if s.Mode == "" {
		s.Mode = SelectByTag
	}
	if s.TagKey == "" {
		s.TagKey = MarkerTag
	}
	if s.TagValue == "" {
		s.TagValue = MarkerValue
	}

	switch s.Mode {
	case SelectByTag:
	case SelectByState:
		if len(s.States) == 0 {
			s.States = []cloud.InstanceState{cloud.InstanceRunning, cloud.InstanceStopped}
		}
		for _, st := range s.States {
			switch st {
			case cloud.InstanceRunning, cloud.InstanceStopped, cloud.InstancePending, cloud.InstanceTerminated:
			default:
				return fmt.Errorf("invalid instance state '%s'", st)
			}
		}
	default:
		return fmt.Errorf("invalid selection mode '%s'; must be tag or state", s.Mode)
	}
	return nil
}

// Filter returns the provider-side filter for the selection mode.
func (s Selection) Filter() cloud.InstanceFilter {
	if s.Mode == SelectByState {
		return cloud.InstanceFilter{States: slices.Clone(s.States)}
	}
	return cloud.InstanceFilter{TagKey: s.TagKey, TagValue: s.TagValue}
}

// Select applies the marker test to instances returned by the provider.
func (s Selection) Select(instances []cloud.Instance) ([]cloud.Instance, error) {
	return SelectInstances(instances, s.TagKey, s.TagValue)
}

// AmbiguousTagError reports an instance that carries the selection key more than once.
type AmbiguousTagError struct {
	InstanceID string
	Key        string
}

func (e *AmbiguousTagError) Error() string {
	return fmt.Sprintf("instance %s has more than one '%s' tag", e.InstanceID, e.Key)
}

// SelectInstances returns the instances whose tagKey equals tagValue.
//
// Instances without the tag are dropped silently. Instances with the key
// repeated are dropped too, and each is reported as an *AmbiguousTagError in
// the joined error; the selected slice is valid either way.
func SelectInstances(instances []cloud.Instance, tagKey, tagValue string) ([]cloud.Instance, error) {
	var selected []cloud.Instance
	var errs []error

	for _, inst := range instances {
		if slices.Contains(inst.DuplicateTagKeys, tagKey) {
			errs = append(errs, &AmbiguousTagError{InstanceID: inst.ID, Key: tagKey})
			continue
		}
		if v, ok := FindTagValue(inst.Tags, tagKey); ok && v == tagValue {
			selected = append(selected, inst)
		}
	}
	return selected, errors.Join(errs...)
}
