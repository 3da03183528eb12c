package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ArchiveExtractor/internal/domain"
)

// stubExtractor answers by URL and tracks how many calls run at once.
type stubExtractor struct {
	hold     time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32

	mu    sync.Mutex
	calls []string
}

func (s *stubExtractor) Extract(ctx context.Context, req domain.ExtractionRequest) domain.ExtractionResult {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, req.URL)
	attempt := 0
	for _, u := range s.calls {
		if u == req.URL {
			attempt++
		}
	}
	s.mu.Unlock()
	time.Sleep(s.hold)

	switch {
	case strings.Contains(req.URL, "flaky") && attempt == 1:
		return domain.Failed(req.URL, domain.SourceNewspapers, errors.New("connection reset"))
	case strings.Contains(req.URL, "timeout"):
		return domain.Failed(req.URL, domain.SourceNewspapers, context.DeadlineExceeded)
	case strings.Contains(req.URL, "panic"):
		panic("boom")
	}
	return domain.Succeeded(req.URL, domain.SourceNewspapers, domain.Success{
		Article: domain.Article{Headline: "Story " + req.URL, Date: "March 3, 2004"},
	})
}

func (s *stubExtractor) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type memoryLedger struct {
	mu        sync.Mutex
	recorded  []domain.ExtractionResult
	runIDs    []string
	succeeded map[string]bool
}

func (l *memoryLedger) Record(ctx context.Context, runID string, result domain.ExtractionResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorded = append(l.recorded, result)
	l.runIDs = append(l.runIDs, runID)
	return nil
}

func (l *memoryLedger) Succeeded(ctx context.Context, urls []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, u := range urls {
		if l.succeeded[u] {
			out[u] = true
		}
	}
	return out, nil
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) PublishSummary(ctx context.Context, summary string) error {
	n.messages = append(n.messages, summary)
	return nil
}

func newTestOrchestrator(ex *stubExtractor, deps OrchestratorDeps) *Orchestrator {
	deps.Extractor = ex
	o := NewOrchestrator(deps)
	o.newRunID = func() string { return "run-1" }
	return o
}

func TestProcessURLsBatchEndToEnd(t *testing.T) {
	t.Parallel()

	ex := &stubExtractor{}
	o := newTestOrchestrator(ex, OrchestratorDeps{})

	var progressCalls []int
	report := o.ProcessURLsBatch(context.Background(),
		[]string{"https://good.example/a", "not-a-url", "https://timeout.example/b"},
		BatchOptions{Concurrency: 2},
		func(completed, total int, result domain.ExtractionResult) {
			if total != 2 {
				t.Errorf("expected total 2, got %d", total)
			}
			progressCalls = append(progressCalls, completed)
		})

	if report.TotalURLs != 3 || report.ValidURLs != 2 || report.Processed != 2 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.Successful != 1 || report.Failed != 1 || !report.Consistent() {
		t.Fatalf("unexpected outcome: %+v", report)
	}
	if report.Errors[0].ErrorKind() != domain.KindNavigationTimeout {
		t.Fatalf("expected timeout failure, got %s", report.Errors[0].ErrorKind())
	}
	if len(report.Invalid) != 1 || report.Invalid[0] != "not-a-url" {
		t.Fatalf("unexpected invalid list: %v", report.Invalid)
	}
	for _, u := range ex.called() {
		if u == "not-a-url" {
			t.Fatalf("invalid url was dispatched")
		}
	}
	if len(progressCalls) != 2 || progressCalls[0] != 1 || progressCalls[1] != 2 {
		t.Fatalf("unexpected progress sequence: %v", progressCalls)
	}
	if report.RunID != "run-1" || report.Cancelled {
		t.Fatalf("unexpected run metadata: %+v", report)
	}
}

func TestProcessURLsBatchRespectsConcurrency(t *testing.T) {
	t.Parallel()

	ex := &stubExtractor{hold: 20 * time.Millisecond}
	o := newTestOrchestrator(ex, OrchestratorDeps{})

	var input []string
	for i := 0; i < 10; i++ {
		input = append(input, "https://a.example/"+string(rune('a'+i)))
	}
	report := o.ProcessURLsBatch(context.Background(), input, BatchOptions{Concurrency: 3}, nil)

	if report.Processed != 10 || report.Successful != 10 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if peak := ex.peak.Load(); peak > 3 || peak < 1 {
		t.Fatalf("expected at most 3 concurrent extractions, saw %d", peak)
	}
}

func TestProcessURLsBatchPanicDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()

	ex := &stubExtractor{}
	o := newTestOrchestrator(ex, OrchestratorDeps{})
	report := o.ProcessURLsBatch(context.Background(),
		[]string{"https://a.example/1", "https://panic.example/2", "https://a.example/3"}, BatchOptions{Concurrency: 2}, nil)

	if report.Processed != 3 || report.Successful != 2 || report.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.Errors[0].ErrorKind() != domain.KindUnexpected || report.Errors[0].URL != "https://panic.example/2" {
		t.Fatalf("unexpected failure: %+v", report.Errors[0])
	}
	if len(report.Results)+len(report.Errors) != report.Processed {
		t.Fatalf("report lists do not add up")
	}
}

func TestProcessURLsBatchDispatchesDuplicatesOnce(t *testing.T) {
	t.Parallel()

	ex := &stubExtractor{}
	o := newTestOrchestrator(ex, OrchestratorDeps{})
	report := o.ProcessURLsBatch(context.Background(),
		[]string{"https://a.example/1", " https://a.example/1 ", "https://a.example/2"}, BatchOptions{Concurrency: 1}, nil)

	if report.TotalURLs != 3 || report.ValidURLs != 2 || report.Processed != 2 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if calls := ex.called(); len(calls) != 2 {
		t.Fatalf("expected two dispatches, got %v", calls)
	}
}

func TestProcessURLsBatchAppliesDelayPerRequest(t *testing.T) {
	t.Parallel()

	ex := &stubExtractor{}
	o := newTestOrchestrator(ex, OrchestratorDeps{})
	started := time.Now()
	o.ProcessURLsBatch(context.Background(), []string{"https://a.example/1", "https://a.example/2"},
		BatchOptions{Concurrency: 1, Delay: 30 * time.Millisecond}, nil)

	if elapsed := time.Since(started); elapsed < 60*time.Millisecond {
		t.Fatalf("expected a delay before each extraction, finished in %s", elapsed)
	}
}

func TestProcessURLsBatchCancellationReturnsPartialReport(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	ex := &stubExtractor{hold: 10 * time.Millisecond}
	o := newTestOrchestrator(ex, OrchestratorDeps{})

	input := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3", "https://a.example/4"}
	report := o.ProcessURLsBatch(ctx, input, BatchOptions{Concurrency: 1}, func(completed, total int, result domain.ExtractionResult) {
		if completed == 1 {
			cancel()
		}
	})

	if !report.Cancelled {
		t.Fatalf("expected cancelled report")
	}
	if report.Processed == 0 || report.Processed >= len(input) || !report.Consistent() {
		t.Fatalf("expected a consistent partial report, got %+v", report)
	}
}

func TestProcessURLsBatchLedgerAndNotifier(t *testing.T) {
	t.Parallel()

	ledger := &memoryLedger{succeeded: map[string]bool{"https://a.example/done": true}}
	notifier := &recordingNotifier{}
	ex := &stubExtractor{}
	o := newTestOrchestrator(ex, OrchestratorDeps{Ledger: ledger, Notifier: notifier})

	report := o.ProcessURLsBatch(context.Background(), []string{"https://a.example/done", "https://a.example/new"},
		BatchOptions{SkipCompleted: true}, nil)

	if len(report.Skipped) != 1 || report.Processed != 1 || report.ValidURLs != 2 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if len(ledger.recorded) != 1 || ledger.recorded[0].URL != "https://a.example/new" {
		t.Fatalf("unexpected ledger writes: %+v", ledger.recorded)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "Batch run-1") {
		t.Fatalf("unexpected notifications: %v", notifier.messages)
	}
}

func TestProcessURLsBatchAnnotatesDateRange(t *testing.T) {
	t.Parallel()

	ex := &stubExtractor{}
	o := newTestOrchestrator(ex, OrchestratorDeps{})
	rng := &DateRange{
		From: time.Date(2004, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2004, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	report := o.ProcessURLsBatch(context.Background(), []string{"https://a.example/1"}, BatchOptions{DateRange: rng}, nil)

	if report.Successful != 1 {
		t.Fatalf("date filtering must not drop results: %+v", report)
	}
	flag := report.Results[0].Success.DateInRange
	if flag == nil || *flag {
		t.Fatalf("expected out-of-range annotation, got %v", flag)
	}
}

func TestClampConcurrency(t *testing.T) {
	t.Parallel()

	cases := map[int]int{0: 3, -2: 1, 1: 1, 4: 4, 5: 5, 12: 5}
	for in, want := range cases {
		if got := ClampConcurrency(in); got != want {
			t.Fatalf("ClampConcurrency(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRetryFailedMergesOutcome(t *testing.T) {
	t.Parallel()

	ex := &stubExtractor{}
	o := newTestOrchestrator(ex, OrchestratorDeps{})

	original := domain.BatchReport{RunID: "run-0", TotalURLs: 3, ValidURLs: 3}
	original.Add(domain.Succeeded("https://a.example/1", domain.SourceNewspapers, domain.Success{}))
	original.Add(domain.Failed("https://a.example/2", domain.SourceNewspapers, errors.New("flaky")))
	original.Add(domain.Failed("https://timeout.example/3", domain.SourceNewspapers, errors.New("slow")))

	merged := o.RetryFailed(context.Background(), original, BatchOptions{Concurrency: 2}, nil)

	if merged.Processed != 3 || merged.Successful != 2 || merged.Failed != 1 || !merged.Consistent() {
		t.Fatalf("unexpected merged counts: %+v", merged)
	}
	if merged.Errors[0].URL != "https://timeout.example/3" || merged.Errors[0].ErrorKind() != domain.KindNavigationTimeout {
		t.Fatalf("expected the retried failure to replace the original: %+v", merged.Errors[0])
	}
	if merged.RunID != "run-0" {
		t.Fatalf("merged report should keep the original run id")
	}
	if calls := ex.called(); len(calls) != 2 {
		t.Fatalf("only failures should be retried, got %v", calls)
	}
}

func TestProcessURLsBatchRetryKeepsRunAndNotifiesOnce(t *testing.T) {
	t.Parallel()

	ledger := &memoryLedger{}
	notifier := &recordingNotifier{}
	ex := &stubExtractor{}
	o := newTestOrchestrator(ex, OrchestratorDeps{Ledger: ledger, Notifier: notifier})
	var runs atomic.Int32
	o.newRunID = func() string { return fmt.Sprintf("run-%d", runs.Add(1)) }

	report := o.ProcessURLsBatch(context.Background(),
		[]string{"https://a.example/ok", "https://flaky.example/1", "https://timeout.example/2"},
		BatchOptions{Concurrency: 2, RetryFailed: true}, nil)

	if report.RunID != "run-1" || runs.Load() != 1 {
		t.Fatalf("retry must reuse the batch run id, got %q after %d ids", report.RunID, runs.Load())
	}
	if report.Processed != 3 || report.Successful != 2 || report.Failed != 1 || !report.Consistent() {
		t.Fatalf("unexpected merged counts: %+v", report)
	}
	if calls := ex.called(); len(calls) != 5 {
		t.Fatalf("expected both failures to be retried once, got %v", calls)
	}

	if len(ledger.recorded) != 5 {
		t.Fatalf("expected every attempt in the ledger, got %d", len(ledger.recorded))
	}
	for i, id := range ledger.runIDs {
		if id != "run-1" {
			t.Fatalf("ledger entry %d (%s) recorded under %q", i, ledger.recorded[i].URL, id)
		}
	}

	if len(notifier.messages) != 1 {
		t.Fatalf("expected one summary for the whole run, got %d", len(notifier.messages))
	}
	if !strings.Contains(notifier.messages[0], "Batch run-1") || !strings.Contains(notifier.messages[0], "timeout.example/2") {
		t.Fatalf("summary should describe the merged report: %s", notifier.messages[0])
	}
}

func TestRetryFailedDoesNotNotify(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	ex := &stubExtractor{}
	o := newTestOrchestrator(ex, OrchestratorDeps{Notifier: notifier})

	original := domain.BatchReport{RunID: "run-0", TotalURLs: 1, ValidURLs: 1}
	original.Add(domain.Failed("https://a.example/1", domain.SourceNewspapers, errors.New("flaky")))

	merged := o.RetryFailed(context.Background(), original, BatchOptions{}, nil)
	if merged.Successful != 1 || merged.RunID != "run-0" {
		t.Fatalf("unexpected merged report: %+v", merged)
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("a retry pass must not publish its own summary: %v", notifier.messages)
	}
}
