package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// BatchReport aggregates the outcome of one batch run.
// Results and Errors are kept in completion order.
type BatchReport struct {
	RunID          string
	TotalURLs      int
	ValidURLs      int
	Processed      int
	Successful     int
	Failed         int
	Results        []ExtractionResult
	Errors         []ExtractionResult
	Invalid        []string
	Skipped        []string
	StartedAt      time.Time
	ProcessingTime time.Duration
	Cancelled      bool
}

// Add appends a finished result and updates counters.
func (r *BatchReport) Add(result ExtractionResult) {
	r.Processed++
	if result.OK() {
		r.Successful++
		r.Results = append(r.Results, result)
		return
	}
	r.Failed++
	r.Errors = append(r.Errors, result)
}

// Consistent checks the counting invariant successful+failed == processed <= valid <= total.
func (r BatchReport) Consistent() bool {
	return r.Successful+r.Failed == r.Processed &&
		r.Processed <= r.ValidURLs &&
		r.ValidURLs <= r.TotalURLs &&
		len(r.Results)+len(r.Errors) == r.Processed
}

// Lookup builds a URL to result map over successes and failures.
func (r BatchReport) Lookup() map[string]ExtractionResult {
	out := make(map[string]ExtractionResult, len(r.Results)+len(r.Errors))
	for _, res := range r.Errors {
		out[res.URL] = res
	}
	for _, res := range r.Results {
		out[res.URL] = res
	}
	return out
}

// SourceStats summarises one source inside a report.
type SourceStats struct {
	Processed  int
	Successful int
}

// Stats aggregates per-source and timing statistics.
type Stats struct {
	SuccessRate       float64
	AverageProcessing time.Duration
	BySource          map[SourceID]SourceStats
	ByErrorKind       map[ErrorKind]int
}

// Stats computes run statistics from the report.
func (r BatchReport) Stats() Stats {
	stats := Stats{
		BySource:    map[SourceID]SourceStats{},
		ByErrorKind: map[ErrorKind]int{},
	}
	var total time.Duration
	for _, res := range r.Results {
		s := stats.BySource[res.Source]
		s.Processed++
		s.Successful++
		stats.BySource[res.Source] = s
		total += res.ProcessingTime
	}
	for _, res := range r.Errors {
		s := stats.BySource[res.Source]
		s.Processed++
		stats.BySource[res.Source] = s
		stats.ByErrorKind[res.ErrorKind()]++
		total += res.ProcessingTime
	}
	if r.Processed > 0 {
		stats.SuccessRate = float64(r.Successful) / float64(r.Processed)
		stats.AverageProcessing = total / time.Duration(r.Processed)
	}
	return stats
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SuggestedFilename builds `{domain}_{headline[:30]}_{timestamp}.{ext}` for a payload.
// It falls back to `article_{timestamp}.{ext}` when the URL has no host.
func SuggestedFilename(rawURL, headline, ext string, at time.Time) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "png"
	}
	stamp := at.Format("20060102_150405")

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Sprintf("article_%s.%s", stamp, ext)
	}
	host := strings.ReplaceAll(parsed.Hostname(), ".", "_")
	host = strings.ReplaceAll(host, "-", "_")

	safe := ""
	if headline != "" && headline != UnknownHeadline {
		safe = unsafeFilenameChars.ReplaceAllString(strings.ReplaceAll(headline, " ", "_"), "")
		if len(safe) > 30 {
			safe = safe[:30]
		}
	}
	if safe == "" {
		return fmt.Sprintf("%s_%s.%s", host, stamp, ext)
	}
	return fmt.Sprintf("%s_%s_%s.%s", host, safe, stamp, ext)
}

// ExtensionFor maps a content type to a file extension.
func ExtensionFor(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return "pdf"
	case strings.Contains(ct, "png"):
		return "png"
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
		return "jpg"
	default:
		return "bin"
	}
}
