package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"ArchiveExtractor/internal/browser"
	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/session"
)

// ErrUnsupportedURL is returned when no registered extractor accepts a URL.
var ErrUnsupportedURL = errors.New("no extractor supports url")

// Session is the part of a session manager an extractor may use.
type Session interface {
	Session() session.View
	AcquireDriver(ctx context.Context) (browser.Driver, error)
}

// ManagedSession adds the refresh contract the Runner drives between attempts.
type ManagedSession interface {
	Session
	RefreshIfNeeded(ctx context.Context) error
	Invalidate(generation uint64) bool
}

// Extractor handles one source (Newspapers.com, LAPL, NewspaperArchive).
type Extractor interface {
	Source() domain.SourceID
	Supports(rawURL string) bool
	Extract(ctx context.Context, req domain.ExtractionRequest, sess Session) (domain.Success, error)
}

// Registry keeps extractors by source and routes requests to them.
type Registry struct {
	extractors map[domain.SourceID]Extractor
	order      []domain.SourceID
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: map[domain.SourceID]Extractor{}}
}

// Register adds or replaces an extractor.
func (r *Registry) Register(e Extractor) {
	if r.extractors == nil {
		r.extractors = map[domain.SourceID]Extractor{}
	}
	if _, exists := r.extractors[e.Source()]; !exists {
		r.order = append(r.order, e.Source())
	}
	r.extractors[e.Source()] = e
}

// Resolve returns an extractor by source or an error if it is absent.
func (r *Registry) Resolve(source domain.SourceID) (Extractor, error) {
	if e, ok := r.extractors[source]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("extractor %s is not registered", source)
}

// Route picks the extractor for a request: the source hint when set, else the first that supports the URL.
func (r *Registry) Route(req domain.ExtractionRequest) (Extractor, error) {
	if req.SourceHint != "" {
		return r.Resolve(req.SourceHint)
	}
	for _, source := range r.order {
		if e := r.extractors[source]; e.Supports(req.URL) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", req.URL, ErrUnsupportedURL)
}

// Sources lists registered sources in registration order.
func (r *Registry) Sources() []domain.SourceID {
	return append([]domain.SourceID(nil), r.order...)
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func authFailure(format string, args ...interface{}) error {
	return domain.NewExtractionError(domain.KindAuthenticationFailure, domain.StageFetch, fmt.Errorf(format, args...))
}

// fetchFailure keeps classified errors and marks anything else as a retryable fetch-stage failure.
func fetchFailure(what string, err error) error {
	var extErr *domain.ExtractionError
	if errors.As(err, &extErr) {
		return err
	}
	kind := domain.KindUnexpected
	if domain.Classify(err).Kind == domain.KindNavigationTimeout {
		kind = domain.KindNavigationTimeout
	}
	return domain.NewExtractionError(kind, domain.StageFetch, fmt.Errorf("%s: %w", what, err))
}

func noContent(format string, args ...interface{}) error {
	return domain.NewExtractionError(domain.KindNoContentFound, domain.StageParse, fmt.Errorf(format, args...))
}

func containsAny(haystack string, needles []string) (string, bool) {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return n, true
		}
	}
	return "", false
}
