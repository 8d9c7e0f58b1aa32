package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
)

// Tag keys written on every snapshot created by the backup workflow.
const (
	MarkerTag    = "AutoBackup"
	MarkerValue  = "true"
	VolumeTag    = "Volume"
	CreatedOnTag = "CreatedOn"
	NameTag      = "Name"
)

// ErrMissingCreatedOn is returned for a managed snapshot without a creation date tag.
var ErrMissingCreatedOn = errors.New("snapshot has no CreatedOn tag")

// SnapshotTags is the schema of the tags stored on a managed snapshot.
// The reclamation workflow relies on it to recognise and date a snapshot.
type SnapshotTags struct {
	// Marker must be exactly MarkerValue for the snapshot to be managed.
	Marker string `json:"AutoBackup"`

	// VolumeID references the source volume.
	VolumeID string `json:"Volume"`

	// CreatedOn is the calendar date of the run that created the snapshot.
	CreatedOn time.Time `json:"CreatedOn"`

	// Name is "{displayName}-AutoBackup-{date}".
	Name string `json:"Name"`
}

// NewSnapshotTags builds the tag set for a snapshot taken today of the volume.
func NewSnapshotTags(displayName, volumeID string, today time.Time) SnapshotTags {
	day := Today(today)
	return SnapshotTags{
		Marker:    MarkerValue,
		VolumeID:  volumeID,
		CreatedOn: day,
		Name:      fmt.Sprintf("%s-%s-%s", displayName, MarkerTag, FormatDate(day)),
	}
}

// ToTags serializes the schema into the four tag entries.
func (s SnapshotTags) ToTags() cloud.Tags {
	return cloud.Tags{
		MarkerTag:    s.Marker,
		VolumeTag:    s.VolumeID,
		CreatedOnTag: FormatDate(s.CreatedOn),
		NameTag:      s.Name,
	}
}

// IsManaged reports whether the marker holds exactly MarkerValue.
func (s SnapshotTags) IsManaged() bool {
	return s.Marker == MarkerValue
}

// ParseSnapshotTags decodes and validates the tags of a managed snapshot.
// A missing CreatedOn yields ErrMissingCreatedOn, a malformed one a decode error.
func ParseSnapshotTags(tags cloud.Tags) (SnapshotTags, error) {
	parsed, err := ParseTags[SnapshotTags](tags)
	if err != nil {
		return SnapshotTags{}, fmt.Errorf("invalid snapshot tags: %w", err)
	}
	if parsed.CreatedOn.IsZero() {
		return SnapshotTags{}, ErrMissingCreatedOn
	}
	return *parsed, nil
}

// IsExpired reports whether a managed snapshot is eligible for deletion:
// it was created on or before cutoff and its marker is exactly "true".
func IsExpired(tags SnapshotTags, cutoff time.Time) bool {
	if !tags.IsManaged() || tags.CreatedOn.IsZero() {
		return false
	}
	return !Today(tags.CreatedOn).After(Today(cutoff))
}

// SnapshotDescription is the human readable description stored on the snapshot.
func SnapshotDescription(displayName, volumeID string, today time.Time) string {
	return fmt.Sprintf("Auto Backup of %s, on volume %s - Created %s", displayName, volumeID, FormatDate(today))
}

// FindTagValue returns the value of key, or false when the tag is absent.
func FindTagValue(tags cloud.Tags, key string) (string, bool) {
	v, ok := tags[key]
	return v, ok
}
