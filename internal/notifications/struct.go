package notifications

import "github.com/aravindh-murugesan/autobackup-go/internal/report"

type Webhook struct {
	URL      string
	Username string
	Password string
}

// Enabled reports whether a webhook URL is configured.
func (w *Webhook) Enabled() bool {
	return w != nil && w.URL != ""
}

// SnapshotTagFailure is sent when a snapshot was created but could not be
// tagged. Such a snapshot is invisible to the expiry workflow and must be
// tagged or deleted by hand.
type SnapshotTagFailure struct {
	Service    string `json:"service"`
	Event      string `json:"event"`
	RunID      string `json:"run_id"`
	Region     string `json:"region"`
	InstanceID string `json:"instance_id"`
	VolumeID   string `json:"volume_id"`
	SnapshotID string `json:"snapshot_id"`
	Message    string `json:"message"`
}

// RunSummary is sent at the end of a run that had failures.
type RunSummary struct {
	Service string         `json:"service"`
	Event   string         `json:"event"`
	Summary report.Summary `json:"summary"`
	Totals  report.Totals  `json:"totals"`
}

const (
	ServiceName          = "autobackup"
	EventSnapshotTagFail = "snapshot_tag_failure"
	EventRunSummary      = "run_summary"
)
