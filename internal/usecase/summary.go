package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"ArchiveExtractor/internal/domain"
)

// FormatSummary renders a batch report as a plain-text message for notifications and the CLI.
func FormatSummary(report domain.BatchReport) string {
	var b strings.Builder
	stats := report.Stats()

	fmt.Fprintf(&b, "Batch %s\n", report.RunID)
	fmt.Fprintf(&b, "URLs: %d total, %d valid, %d processed", report.TotalURLs, report.ValidURLs, report.Processed)
	if len(report.Skipped) > 0 {
		fmt.Fprintf(&b, ", %d skipped", len(report.Skipped))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Successful: %d  Failed: %d  Success rate: %.0f%%\n", report.Successful, report.Failed, stats.SuccessRate*100)
	fmt.Fprintf(&b, "Elapsed: %s  Average: %s\n", report.ProcessingTime.Round(100*time.Millisecond), stats.AverageProcessing.Round(100*time.Millisecond))
	if report.Cancelled {
		b.WriteString("Run was cancelled before all URLs were dispatched\n")
	}

	sources := make([]string, 0, len(stats.BySource))
	for source := range stats.BySource {
		sources = append(sources, string(source))
	}
	sort.Strings(sources)
	for _, source := range sources {
		s := stats.BySource[domain.SourceID(source)]
		fmt.Fprintf(&b, "- %s: %d/%d\n", source, s.Successful, s.Processed)
	}

	if len(report.Errors) > 0 {
		b.WriteString("\nFailures:\n")
		for _, res := range report.Errors {
			fmt.Fprintf(&b, "- %s [%s]\n", res.URL, res.ErrorKind())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
