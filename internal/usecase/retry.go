package usecase

import (
	"context"

	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/ports"
)

// FailedURLs lists the URLs of a report's failures in completion order.
func FailedURLs(report domain.BatchReport) []string {
	out := make([]string, 0, len(report.Errors))
	for _, res := range report.Errors {
		out = append(out, res.URL)
	}
	return out
}

// RetryFailed re-runs the failures of report under its run id and merges the outcome: a retried
// success replaces the earlier failure, a repeated failure replaces it too. No summary is
// published; ProcessURLsBatch with RetryFailed set publishes the merged one.
func (o *Orchestrator) RetryFailed(ctx context.Context, report domain.BatchReport, opts BatchOptions, progress ports.ProgressFunc) domain.BatchReport {
	failed := FailedURLs(report)
	if len(failed) == 0 {
		return report
	}
	opts.SkipCompleted = false
	retried := o.run(ctx, report.RunID, failed, opts, progress)
	return Merge(report, retried)
}

// Merge folds a retry report into the original one. Counts are rebuilt so the original
// total/valid figures still bound the merged processed count.
func Merge(original, retry domain.BatchReport) domain.BatchReport {
	replaced := make(map[string]struct{}, retry.Processed)
	for _, res := range retry.Results {
		replaced[res.URL] = struct{}{}
	}
	for _, res := range retry.Errors {
		replaced[res.URL] = struct{}{}
	}

	merged := domain.BatchReport{
		RunID:          original.RunID,
		TotalURLs:      original.TotalURLs,
		ValidURLs:      original.ValidURLs,
		Invalid:        original.Invalid,
		Skipped:        original.Skipped,
		StartedAt:      original.StartedAt,
		ProcessingTime: original.ProcessingTime + retry.ProcessingTime,
		Cancelled:      original.Cancelled || retry.Cancelled,
	}
	for _, res := range original.Results {
		merged.Add(res)
	}
	for _, res := range original.Errors {
		if _, ok := replaced[res.URL]; !ok {
			merged.Add(res)
		}
	}
	for _, res := range retry.Results {
		merged.Add(res)
	}
	for _, res := range retry.Errors {
		merged.Add(res)
	}
	return merged
}
