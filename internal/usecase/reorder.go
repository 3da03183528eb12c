package usecase

import (
	"strings"

	"ArchiveExtractor/internal/domain"
)

// OrderedResult is one input position replayed against a finished report.
type OrderedResult struct {
	Index  int
	URL    string
	Result *domain.ExtractionResult
	// Missing is set when no result exists for the URL; Invalid narrows that to a validation drop.
	Missing bool
	Invalid bool
}

// ReorderBy replays originalURLs against report. Every input position yields exactly one entry,
// in input order; positions without a result are kept as flagged gaps. Repeated URLs share the
// result of their single dispatch.
func ReorderBy(originalURLs []string, report domain.BatchReport) []OrderedResult {
	lookup := report.Lookup()
	invalid := make(map[string]struct{}, len(report.Invalid))
	for _, raw := range report.Invalid {
		invalid[raw] = struct{}{}
	}

	out := make([]OrderedResult, 0, len(originalURLs))
	for i, raw := range originalURLs {
		entry := OrderedResult{Index: i, URL: raw}
		if res, ok := lookup[strings.TrimSpace(raw)]; ok {
			res := res
			entry.Result = &res
		} else {
			entry.Missing = true
			_, entry.Invalid = invalid[raw]
		}
		out = append(out, entry)
	}
	return out
}

// Successes returns the successful results of an ordered replay, preserving order.
func Successes(ordered []OrderedResult) []domain.ExtractionResult {
	var out []domain.ExtractionResult
	for _, entry := range ordered {
		if entry.Result != nil && entry.Result.OK() {
			out = append(out, *entry.Result)
		}
	}
	return out
}
