package report

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RegionResult is the outcome of one region.
type RegionResult struct {
	Region string `json:"region"`
	Totals Totals `json:"totals"`
	// Error is set when the region could not be processed at all.
	Error string `json:"error,omitempty"`
}

// Summary aggregates every region of a run.
type Summary struct {
	RunID   string         `json:"run_id"`
	Date    string         `json:"date"`
	Regions []RegionResult `json:"regions"`
}

// AddRegion appends the counters of a finished region.
func (s *Summary) AddRegion(region string, counters *RunCounters) {
	s.Regions = append(s.Regions, RegionResult{Region: region, Totals: counters.Snapshot()})
}

// AddRegionError records a region that could not be processed.
func (s *Summary) AddRegionError(region string, err error) {
	s.Regions = append(s.Regions, RegionResult{Region: region, Error: err.Error()})
}

// Total merges the counters of all regions.
func (s Summary) Total() Totals {
	var t Totals
	for _, r := range s.Regions {
		t = t.Add(r.Totals)
	}
	return t
}

// HasFailures reports whether any item or region failed.
func (s Summary) HasFailures() bool {
	for _, r := range s.Regions {
		if r.Error != "" {
			return true
		}
	}
	return s.Total().Failures > 0
}

// LogValue implements slog.LogValuer so the summary logs as one record.
func (s Summary) LogValue() slog.Value {
	t := s.Total()
	return slog.GroupValue(
		slog.Int("regions", len(s.Regions)),
		slog.Int64("snapshots_created", t.SnapshotsCreated),
		slog.Int64("created_size_gib", t.CreatedSizeGiB),
		slog.Int64("snapshots_deleted", t.SnapshotsDeleted),
		slog.Int64("deleted_size_gib", t.DeletedSizeGiB),
		slog.Int64("failures", t.Failures),
		slog.Int64("skipped", t.Skipped),
		slog.Int64("leaked", t.Leaked),
	)
}

var (
	headerCell = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell       = lipgloss.NewStyle().Padding(0, 1)
	errorCell  = cell.Foreground(lipgloss.Color("#FF5F87"))
)

// Render draws the per-region and total counters as a table.
func Render(s Summary) string {
	const errorColumn = 8

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Region", "Created", "Created GiB", "Deleted", "Deleted GiB", "Failures", "Skipped", "Leaked", "Error").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerCell
			case col == errorColumn:
				return errorCell
			default:
				return cell
			}
		})

	for _, r := range s.Regions {
		t.Row(r.Region,
			strconv.FormatInt(r.Totals.SnapshotsCreated, 10),
			strconv.FormatInt(r.Totals.CreatedSizeGiB, 10),
			strconv.FormatInt(r.Totals.SnapshotsDeleted, 10),
			strconv.FormatInt(r.Totals.DeletedSizeGiB, 10),
			strconv.FormatInt(r.Totals.Failures, 10),
			strconv.FormatInt(r.Totals.Skipped, 10),
			strconv.FormatInt(r.Totals.Leaked, 10),
			r.Error,
		)
	}

	total := s.Total()
	t.Row("TOTAL",
		strconv.FormatInt(total.SnapshotsCreated, 10),
		strconv.FormatInt(total.CreatedSizeGiB, 10),
		strconv.FormatInt(total.SnapshotsDeleted, 10),
		strconv.FormatInt(total.DeletedSizeGiB, 10),
		strconv.FormatInt(total.Failures, 10),
		strconv.FormatInt(total.Skipped, 10),
		strconv.FormatInt(total.Leaked, 10),
		"",
	)

	return fmt.Sprintf("Run %s (%s)\n%s", s.RunID, s.Date, t.Render())
}
