// Package report accumulates per-run counters and renders the end-of-run summary.
package report

import "sync/atomic"

// RunCounters accumulates the outcome of one invocation. All methods are
// safe for concurrent use by the worker pool.
type RunCounters struct {
	snapshotsCreated atomic.Int64
	createdSizeGiB   atomic.Int64
	snapshotsDeleted atomic.Int64
	deletedSizeGiB   atomic.Int64

	failures atomic.Int64
	skipped  atomic.Int64
	leaked   atomic.Int64
}

// Totals is a plain copy of the counters.
type Totals struct {
	SnapshotsCreated int64 `json:"snapshots_created"`
	CreatedSizeGiB   int64 `json:"created_size_gib"`
	SnapshotsDeleted int64 `json:"snapshots_deleted"`
	DeletedSizeGiB   int64 `json:"deleted_size_gib"`

	// Failures counts items that failed and were tolerated.
	Failures int64 `json:"failures"`
	// Skipped counts managed snapshots left alone because of bad tags.
	Skipped int64 `json:"skipped"`
	// Leaked counts snapshots created but left untagged.
	Leaked int64 `json:"leaked"`
}

// AddCreated records one successful snapshot of sizeGiB.
func (c *RunCounters) AddCreated(sizeGiB int) {
	c.snapshotsCreated.Add(1)
	c.createdSizeGiB.Add(int64(sizeGiB))
}

// AddDeleted records one confirmed deletion of a snapshot of sizeGiB.
func (c *RunCounters) AddDeleted(sizeGiB int) {
	c.snapshotsDeleted.Add(1)
	c.deletedSizeGiB.Add(int64(sizeGiB))
}

func (c *RunCounters) AddFailure() { c.failures.Add(1) }
func (c *RunCounters) AddSkipped() { c.skipped.Add(1) }

// AddLeaked records a snapshot that exists but could not be tagged.
// It also counts as a failure.
func (c *RunCounters) AddLeaked() {
	c.leaked.Add(1)
	c.failures.Add(1)
}

// Snapshot returns the current values.
func (c *RunCounters) Snapshot() Totals {
	return Totals{
		SnapshotsCreated: c.snapshotsCreated.Load(),
		CreatedSizeGiB:   c.createdSizeGiB.Load(),
		SnapshotsDeleted: c.snapshotsDeleted.Load(),
		DeletedSizeGiB:   c.deletedSizeGiB.Load(),
		Failures:         c.failures.Load(),
		Skipped:          c.skipped.Load(),
		Leaked:           c.leaked.Load(),
	}
}

// Add returns the field-wise sum of t and o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		SnapshotsCreated: t.SnapshotsCreated + o.SnapshotsCreated,
		CreatedSizeGiB:   t.CreatedSizeGiB + o.CreatedSizeGiB,
		SnapshotsDeleted: t.SnapshotsDeleted + o.SnapshotsDeleted,
		DeletedSizeGiB:   t.DeletedSizeGiB + o.DeletedSizeGiB,
		Failures:         t.Failures + o.Failures,
		Skipped:          t.Skipped + o.Skipped,
		Leaked:           t.Leaked + o.Leaked,
	}
}
