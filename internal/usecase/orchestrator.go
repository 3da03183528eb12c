package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/ports"
	"ArchiveExtractor/internal/urls"
)

// Concurrency bounds for a batch.
const (
	DefaultConcurrency = 3
	MinConcurrency     = 1
	MaxConcurrency     = 5
)

// BatchOptions are the run parameters of one batch.
type BatchOptions struct {
	Concurrency int
	// Delay is the politeness pause before each individual extraction.
	Delay      time.Duration
	NameFilter string
	DateRange  *DateRange
	SourceHint domain.SourceID
	// SkipCompleted drops URLs the ledger already holds a success for.
	SkipCompleted bool
	// RetryFailed re-runs the failures once under the same run before the summary is published.
	RetryFailed bool
}

// ClampConcurrency forces n into [MinConcurrency, MaxConcurrency]; zero means the default.
func ClampConcurrency(n int) int {
	switch {
	case n == 0:
		return DefaultConcurrency
	case n < MinConcurrency:
		return MinConcurrency
	case n > MaxConcurrency:
		return MaxConcurrency
	}
	return n
}

// OrchestratorDeps wires the driven adapters of the batch use case.
type OrchestratorDeps struct {
	Extractor ports.Extractor
	Ledger    ports.Ledger
	Notifier  ports.Notifier
	Logger    *slog.Logger
}

// Orchestrator runs batches of URLs through a bounded worker pool.
type Orchestrator struct {
	extractor ports.Extractor
	ledger    ports.Ledger
	notifier  ports.Notifier
	logger    *slog.Logger
	now       func() time.Time
	newRunID  func() string
}

// NewOrchestrator constructs the batch use case.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger != nil {
		logger = logger.With("component", "orchestrator")
	}
	return &Orchestrator{
		extractor: deps.Extractor,
		ledger:    deps.Ledger,
		notifier:  deps.Notifier,
		logger:    logger,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
}

// ProcessURLsBatch validates urls, dispatches each valid one exactly once and collects results in
// completion order. Cancelling ctx stops new dispatches; in-flight extractions finish and the
// partial report is returned with Cancelled set.
func (o *Orchestrator) ProcessURLsBatch(ctx context.Context, rawURLs []string, opts BatchOptions, progress ports.ProgressFunc) domain.BatchReport {
	report := o.run(ctx, o.newRunID(), rawURLs, opts, progress)
	if opts.RetryFailed && report.Failed > 0 && ctx.Err() == nil {
		o.info("retrying failed urls", "run", report.RunID, "count", report.Failed)
		report = o.RetryFailed(ctx, report, opts, progress)
	}
	o.publish(ctx, report)
	return report
}

// run processes one pass of urls, recording every result under runID.
func (o *Orchestrator) run(ctx context.Context, runID string, rawURLs []string, opts BatchOptions, progress ports.ProgressFunc) domain.BatchReport {
	started := o.now()
	report := domain.BatchReport{
		RunID:     runID,
		TotalURLs: len(rawURLs),
		StartedAt: started,
	}

	valid, invalid := partitionValid(rawURLs)
	report.ValidURLs = len(valid)
	report.Invalid = invalid
	for _, raw := range invalid {
		o.debug("dropping invalid url", "url", raw)
	}

	dispatch := valid
	if opts.SkipCompleted && o.ledger != nil && len(valid) > 0 {
		done, err := o.ledger.Succeeded(ctx, valid)
		if err != nil {
			o.warn("load completed urls", "error", err)
		} else {
			dispatch = dispatch[:0:0]
			for _, u := range valid {
				if done[u] {
					report.Skipped = append(report.Skipped, u)
					continue
				}
				dispatch = append(dispatch, u)
			}
		}
	}

	concurrency := ClampConcurrency(opts.Concurrency)
	o.info("batch started", "run", report.RunID, "total", report.TotalURLs, "valid", report.ValidURLs,
		"dispatch", len(dispatch), "concurrency", concurrency)

	results := make(chan domain.ExtractionResult, concurrency)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		o.collect(ctx, &report, results, len(dispatch), opts, progress)
	}()

	sent := 0
	for _, group := range partition(dispatch, concurrency) {
		if ctx.Err() != nil {
			break
		}
		sent += o.runGroup(ctx, group, concurrency, opts, results)
	}
	close(results)
	<-collected
	report.Cancelled = sent < len(dispatch)

	report.ProcessingTime = o.now().Sub(started)
	o.info("batch finished", "run", report.RunID, "processed", report.Processed, "successful", report.Successful,
		"failed", report.Failed, "cancelled", report.Cancelled, "elapsed", report.ProcessingTime)
	return report
}

func (o *Orchestrator) publish(ctx context.Context, report domain.BatchReport) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.PublishSummary(context.WithoutCancel(ctx), FormatSummary(report)); err != nil {
		o.warn("publish summary", "run", report.RunID, "error", err)
	}
}

// runGroup dispatches one group on the pool and reports how many extractions actually ran.
func (o *Orchestrator) runGroup(ctx context.Context, group []string, concurrency int, opts BatchOptions, results chan<- domain.ExtractionResult) int {
	var (
		g    errgroup.Group
		sent atomic.Int32
	)
	g.SetLimit(concurrency)
	for _, u := range group {
		if ctx.Err() != nil {
			break
		}
		u := u
		g.Go(func() error {
			if err := sleepCtx(ctx, opts.Delay); err != nil {
				return nil
			}
			results <- o.extractOne(ctx, domain.ExtractionRequest{URL: u, FilterName: opts.NameFilter, SourceHint: opts.SourceHint})
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(sent.Load())
}

// extractOne is the batch-loop boundary: a panicking extractor becomes a failure for its URL only.
// In-flight work is detached from batch cancellation and bounded by the extractor's own timeouts.
func (o *Orchestrator) extractOne(ctx context.Context, req domain.ExtractionRequest) (result domain.ExtractionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			o.warn("extraction panicked", "url", req.URL, "panic", rec)
			result = domain.Failed(req.URL, req.SourceHint, domain.NewExtractionError(domain.KindUnexpected, "", fmt.Errorf("panic: %v", rec)))
			result.CompletedAt = o.now()
		}
	}()
	return o.extractor.Extract(context.WithoutCancel(ctx), req)
}

// collect is the single consumer of results: counters, progress and ledger writes happen here only.
func (o *Orchestrator) collect(ctx context.Context, report *domain.BatchReport, results <-chan domain.ExtractionResult, total int, opts BatchOptions, progress ports.ProgressFunc) {
	completed := 0
	for result := range results {
		if opts.DateRange != nil {
			opts.DateRange.Annotate(&result)
		}
		report.Add(result)
		completed++
		if progress != nil {
			progress(completed, total, result)
		}
		if o.ledger != nil {
			if err := o.ledger.Record(context.WithoutCancel(ctx), report.RunID, result); err != nil {
				o.warn("record result", "url", result.URL, "error", err)
			}
		}
	}
}

// partitionValid splits input into unique valid URLs (first occurrence order) and invalid entries.
func partitionValid(rawURLs []string) (valid, invalid []string) {
	seen := make(map[string]struct{}, len(rawURLs))
	for _, raw := range rawURLs {
		u := strings.TrimSpace(raw)
		if err := urls.Validate(u); err != nil {
			invalid = append(invalid, raw)
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		valid = append(valid, u)
	}
	return valid, invalid
}

func partition(items []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var groups [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[start:end])
	}
	return groups
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) info(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warn(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

func (o *Orchestrator) debug(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}
