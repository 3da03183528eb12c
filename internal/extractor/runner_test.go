package extractor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/relevance"
	"ArchiveExtractor/internal/session"
)

// scripted is an Extractor that replays a fixed sequence of outcomes.
type scripted struct {
	mu    sync.Mutex
	steps []func() (domain.Success, error)
	calls int
}

func (s *scripted) Source() domain.SourceID  { return domain.SourceNewspapers }
func (s *scripted) Supports(url string) bool { return true }

func (s *scripted) Extract(ctx context.Context, req domain.ExtractionRequest, sess Session) (domain.Success, error) {
	s.mu.Lock()
	step := s.steps[s.calls]
	s.calls++
	s.mu.Unlock()
	return step()
}

func (s *scripted) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func succeed(body string) func() (domain.Success, error) {
	return func() (domain.Success, error) {
		return domain.Success{Article: domain.Article{Headline: "Eagles win", BodyText: body}, Method: "http"}, nil
	}
}

func fail(kind domain.ErrorKind, stage domain.Stage) func() (domain.Success, error) {
	return func() (domain.Success, error) {
		return domain.Success{}, domain.NewExtractionError(kind, stage, fmt.Errorf("scripted %s", kind))
	}
}

func newTestRunner(ex Extractor, sess ManagedSession, analyzer *relevance.Analyzer) *Runner {
	reg := NewRegistry()
	reg.Register(ex)
	r := NewRunner(reg, map[domain.SourceID]ManagedSession{ex.Source(): sess}, analyzer, RunnerOptions{}, nil)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return r
}

const runnerURL = "https://www.newspapers.com/article/1/"

func TestRunnerRetriesTimeoutWithForcedRefresh(t *testing.T) {
	t.Parallel()

	ex := &scripted{steps: []func() (domain.Success, error){fail(domain.KindNavigationTimeout, domain.StageFetch), succeed("text")}}
	sess := newFakeSession(nil, nil)
	res := newTestRunner(ex, sess, nil).Extract(context.Background(), domain.ExtractionRequest{URL: runnerURL})

	if !res.OK() || res.Attempts != 2 {
		t.Fatalf("expected success on second attempt, got %+v", res)
	}
	refreshes, invalidations := sess.counts()
	if refreshes != 2 || invalidations != 1 {
		t.Fatalf("expected 2 refreshes and 1 invalidation, got %d and %d", refreshes, invalidations)
	}
	if sess.Session().Generation != 2 {
		t.Fatalf("expected forced refresh to bump generation")
	}
	if res.ProcessingTime <= 0 || res.CompletedAt.IsZero() || res.Source != domain.SourceNewspapers {
		t.Fatalf("result metadata not set: %+v", res)
	}
}

func TestRunnerRetriesFetchStageWithoutInvalidating(t *testing.T) {
	t.Parallel()

	ex := &scripted{steps: []func() (domain.Success, error){fail(domain.KindUnexpected, domain.StageFetch), fail(domain.KindUnexpected, domain.StageFetch)}}
	sess := newFakeSession(nil, nil)
	res := newTestRunner(ex, sess, nil).Extract(context.Background(), domain.ExtractionRequest{URL: runnerURL})

	if res.OK() || res.Attempts != 2 || res.ErrorKind() != domain.KindUnexpected {
		t.Fatalf("expected two failed attempts, got %+v", res)
	}
	if _, invalidations := sess.counts(); invalidations != 0 {
		t.Fatalf("plain fetch errors must not invalidate the session")
	}
}

func TestRunnerDoesNotRetryTerminalKinds(t *testing.T) {
	t.Parallel()

	for _, kind := range []domain.ErrorKind{domain.KindNoContentFound, domain.KindDownloadNotCaptured, domain.KindValidationError} {
		ex := &scripted{steps: []func() (domain.Success, error){fail(kind, domain.StageParse), succeed("unused")}}
		res := newTestRunner(ex, newFakeSession(nil, nil), nil).Extract(context.Background(), domain.ExtractionRequest{URL: runnerURL})
		if res.OK() || res.Attempts != 1 || res.ErrorKind() != kind || ex.count() != 1 {
			t.Fatalf("%s: expected a single attempt, got %+v", kind, res)
		}
	}
}

func TestRunnerRecoversPanics(t *testing.T) {
	t.Parallel()

	ex := &scripted{steps: []func() (domain.Success, error){func() (domain.Success, error) { panic("selector exploded") }}}
	res := newTestRunner(ex, newFakeSession(nil, nil), nil).Extract(context.Background(), domain.ExtractionRequest{URL: runnerURL})

	if res.OK() || res.ErrorKind() != domain.KindUnexpected || res.Attempts != 1 {
		t.Fatalf("expected unexpected failure, got %+v", res)
	}
	if res.CompletedAt.IsZero() {
		t.Fatalf("panic result should still be timestamped")
	}
}

func TestRunnerRetriesFailedRefresh(t *testing.T) {
	t.Parallel()

	ex := &scripted{steps: []func() (domain.Success, error){succeed("text")}}
	sess := newFakeSession(nil, nil)
	sess.refreshErrs = []error{&session.AuthError{Source: domain.SourceNewspapers, Reason: session.ReasonVerificationFailed}}
	res := newTestRunner(ex, sess, nil).Extract(context.Background(), domain.ExtractionRequest{URL: runnerURL})

	if !res.OK() || res.Attempts != 2 || ex.count() != 1 {
		t.Fatalf("expected success after a second login, got %+v (extractor calls %d)", res, ex.count())
	}
	if refreshes, _ := sess.counts(); refreshes != 2 {
		t.Fatalf("expected 2 refreshes, got %d", refreshes)
	}
}

func TestRunnerRefreshFailureIsAuthFailure(t *testing.T) {
	t.Parallel()

	ex := &scripted{steps: []func() (domain.Success, error){succeed("unused")}}
	sess := newFakeSession(nil, nil)
	sess.refreshErr = &session.AuthError{Source: domain.SourceNewspapers, Reason: session.ReasonVerificationFailed}
	res := newTestRunner(ex, sess, nil).Extract(context.Background(), domain.ExtractionRequest{URL: runnerURL})

	if res.ErrorKind() != domain.KindAuthenticationFailure || ex.count() != 0 || res.Attempts != 2 {
		t.Fatalf("expected auth failure after every attempt, got %+v", res)
	}
	if refreshes, _ := sess.counts(); refreshes != 2 {
		t.Fatalf("expected one refresh per attempt, got %d", refreshes)
	}
}

func TestRunnerProceedsWithoutCredentials(t *testing.T) {
	t.Parallel()

	ex := &scripted{steps: []func() (domain.Success, error){succeed("text")}}
	sess := newFakeSession(nil, nil)
	sess.refreshErr = &session.AuthError{Reason: session.ReasonNoCredentials, Err: session.ErrNoCredentials}
	res := newTestRunner(ex, sess, nil).Extract(context.Background(), domain.ExtractionRequest{URL: runnerURL})

	if !res.OK() {
		t.Fatalf("expected anonymous extraction to succeed, got %+v", res.Failure)
	}
}

func TestRunnerAnnotatesRelevance(t *testing.T) {
	t.Parallel()

	ex := &scripted{steps: []func() (domain.Success, error){succeed("Maria Rivera scored the winning goal as the team won the championship game.")}}
	analyzer := relevance.NewAnalyzer(relevance.DefaultConfig())
	res := newTestRunner(ex, newFakeSession(nil, nil), analyzer).Extract(context.Background(),
		domain.ExtractionRequest{URL: runnerURL, FilterName: "Maria Rivera"})

	if !res.OK() || res.Success.Metrics == nil {
		t.Fatalf("expected metrics, got %+v", res)
	}
	m := res.Success.Metrics
	if m.NameMatch != domain.NameMatchFull || m.NameFilter != "Maria Rivera" || !m.Relevant {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestRunnerUnsupportedURL(t *testing.T) {
	t.Parallel()

	r := NewRunner(NewRegistry(), nil, nil, RunnerOptions{}, nil)
	res := r.Extract(context.Background(), domain.ExtractionRequest{URL: "https://example.com/x"})
	if res.ErrorKind() != domain.KindValidationError || res.Attempts != 0 {
		t.Fatalf("expected validation error, got %+v", res)
	}
}

func TestRunnerTaskTimeout(t *testing.T) {
	t.Parallel()

	ex := &scripted{steps: []func() (domain.Success, error){
		func() (domain.Success, error) {
			time.Sleep(30 * time.Millisecond)
			return domain.Success{}, fetchFailure("navigate", context.DeadlineExceeded)
		},
		succeed("unused"),
	}}
	reg := NewRegistry()
	reg.Register(ex)
	r := NewRunner(reg, map[domain.SourceID]ManagedSession{ex.Source(): newFakeSession(nil, nil)}, nil,
		RunnerOptions{TaskTimeout: 10 * time.Millisecond}, nil)

	res := r.Extract(context.Background(), domain.ExtractionRequest{URL: runnerURL})
	if res.ErrorKind() != domain.KindNavigationTimeout || res.Attempts != 1 {
		t.Fatalf("expected a single timed-out attempt, got %+v", res)
	}
}
