package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/ports"
	"ArchiveExtractor/internal/relevance"
	"ArchiveExtractor/internal/session"
)

// DefaultAttempts is how many times a retryable failure is tried in total.
const DefaultAttempts = 2

// RunnerOptions bound a single extraction.
type RunnerOptions struct {
	Attempts    int
	TaskTimeout time.Duration
}

// Runner is the outer wrapper around per-source extractors. It keeps sessions fresh, retries
// fetch-stage failures with a forced refresh between attempts and turns everything into a result.
type Runner struct {
	registry *Registry
	sessions map[domain.SourceID]ManagedSession
	analyzer *relevance.Analyzer
	opts     RunnerOptions
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.Extractor = (*Runner)(nil)

// NewRunner wires a runner. analyzer may be nil to skip relevance annotation.
func NewRunner(registry *Registry, sessions map[domain.SourceID]ManagedSession, analyzer *relevance.Analyzer, opts RunnerOptions, logger *slog.Logger) *Runner {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if logger != nil {
		logger = logger.With("component", "runner")
	}
	return &Runner{
		registry: registry,
		sessions: sessions,
		analyzer: analyzer,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Extract runs one request to completion. It never panics and never returns an error.
func (r *Runner) Extract(ctx context.Context, req domain.ExtractionRequest) (result domain.ExtractionResult) {
	started := r.now()
	source := req.SourceHint
	attempts := 0
	defer func() {
		if rec := recover(); rec != nil {
			r.warn("extractor panicked", "url", req.URL, "panic", rec)
			result = domain.Failed(req.URL, source, domain.NewExtractionError(domain.KindUnexpected, "", fmt.Errorf("panic: %v", rec)))
		}
		finished := r.now()
		result.Attempts = attempts
		result.ProcessingTime = finished.Sub(started)
		result.CompletedAt = finished
	}()

	ex, err := r.registry.Route(req)
	if err != nil {
		return domain.Failed(req.URL, source, domain.NewExtractionError(domain.KindValidationError, "", err))
	}
	source = ex.Source()
	sess, ok := r.sessions[source]
	if !ok || sess == nil {
		return domain.Failed(req.URL, source, domain.NewExtractionError(domain.KindUnexpected, "",
			fmt.Errorf("no session configured for %s", source)))
	}

	if r.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.TaskTimeout)
		defer cancel()
	}

	// Each attempt starts with a refresh; a failed refresh uses up the attempt and is retried
	// like any other authentication failure.
	var lastErr error
	for attempts < r.opts.Attempts {
		attempts++
		generation := sess.Session().Generation

		err := ensureFresh(ctx, sess)
		if err == nil {
			generation = sess.Session().Generation
			var success domain.Success
			success, err = ex.Extract(ctx, req, sess)
			if err == nil {
				r.annotate(&success, req.FilterName)
				r.debug("extracted", "url", req.URL, "source", source, "method", success.Method, "attempt", attempts)
				return domain.Succeeded(req.URL, source, success)
			}
		}
		lastErr = err

		extErr := domain.Classify(err)
		if !extErr.Retryable() || attempts >= r.opts.Attempts || ctx.Err() != nil {
			break
		}
		r.warn("attempt failed, retrying", "url", req.URL, "source", source, "attempt", attempts, "kind", extErr.Kind, "error", err)

		if extErr.Kind == domain.KindAuthenticationFailure || extErr.Kind == domain.KindNavigationTimeout {
			sess.Invalidate(generation)
		}
	}

	result = domain.Failed(req.URL, source, lastErr)
	r.debug("extraction failed", "url", req.URL, "source", source, "kind", result.ErrorKind(), "attempts", attempts)
	return result
}

// ensureFresh refreshes the session; a source with no credentials at all proceeds anonymously.
func ensureFresh(ctx context.Context, sess ManagedSession) error {
	err := sess.RefreshIfNeeded(ctx)
	if err == nil || errors.Is(err, session.ErrNoCredentials) {
		return nil
	}
	if ctx.Err() != nil {
		return domain.NewExtractionError(domain.KindNavigationTimeout, domain.StageFetch, err)
	}
	return domain.NewExtractionError(domain.KindAuthenticationFailure, domain.StageFetch, fmt.Errorf("refresh session: %w", err))
}

func (r *Runner) annotate(success *domain.Success, name string) {
	if r.analyzer == nil || success.Article.BodyText == "" {
		return
	}
	metrics := r.analyzer.Analyze(success.Article.BodyText, name)
	success.Metrics = &metrics
}

func (r *Runner) warn(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *Runner) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
