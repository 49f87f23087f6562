package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/core-sentiment/pageview-cli/internal/model"
)

// FormatReport generates a human-readable run summary for the CLI.
func FormatReport(run *model.Run, date time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Classification Run: %s\n", date.Format(model.DateFormat))
	fmt.Fprintf(&b, "Run ID: %s\n", run.ID)
	fmt.Fprintf(&b, "Status: %s\n\n", run.Status)

	r := run.Report
	if r == nil {
		b.WriteString("No report recorded.\n")
		return b.String()
	}

	b.WriteString("## Input\n")
	fmt.Fprintf(&b, "- Considered: %d\n", r.Considered)
	fmt.Fprintf(&b, "- Malformed: %d\n", r.Malformed)
	fmt.Fprintf(&b, "- Prefiltered: %d\n", r.Prefiltered)
	fmt.Fprintf(&b, "- Overridden: %d\n", r.Overridden)
	fmt.Fprintf(&b, "- Unmatched: %d\n\n", r.Unmatched)

	b.WriteString("## Confirmation\n")
	fmt.Fprintf(&b, "- Candidates: %d\n", r.Candidates)
	fmt.Fprintf(&b, "- Confirmed: %d\n", r.Confirmed)
	fmt.Fprintf(&b, "- Rejected: %d\n", r.Rejected)
	if r.ExcludedBatches > 0 {
		fmt.Fprintf(&b, "- Excluded: %d batches (%d records)\n", r.ExcludedBatches, r.ExcludedRecords)
	}
	b.WriteString("\n")

	b.WriteString("## Load\n")
	fmt.Fprintf(&b, "- Inserted: %d\n", r.Inserted)
	fmt.Fprintf(&b, "- Skipped (already present): %d\n", r.Skipped)
	if r.RefreshFailed {
		b.WriteString("- Snapshot refresh FAILED\n")
	} else {
		fmt.Fprintf(&b, "- Snapshot rows: %d\n", r.SnapshotRows)
	}

	return b.String()
}

// FormatRankings renders company rankings as an aligned text table.
func FormatRankings(rankings []model.CompanyRanking, date time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Company rankings for %s\n\n", date.Format(model.DateFormat))
	if len(rankings) == 0 {
		b.WriteString("No classified pageviews for this date.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-5s %-12s %10s %14s %8s\n", "Rank", "Company", "Pages", "Views", "Share")
	for _, r := range rankings {
		fmt.Fprintf(&b, "%-5d %-12s %10d %14d %7.1f%%\n",
			r.Rank, r.Company, r.PageCount, r.TotalViews, r.MarketShare)
	}
	return b.String()
}
