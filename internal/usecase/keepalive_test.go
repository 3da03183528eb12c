package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/ports"
)

type countingRefresher struct {
	calls int
	err   error
}

func (r *countingRefresher) RefreshIfNeeded(ctx context.Context) error {
	r.calls++
	return r.err
}

// manualScheduler runs the registered job when Fire is called.
type manualScheduler struct {
	job     func(time.Time)
	stopped bool
}

func (s *manualScheduler) Start(ctx context.Context, job func(time.Time)) error {
	s.job = job
	return nil
}

func (s *manualScheduler) Stop(ctx context.Context) error {
	s.stopped = true
	return nil
}

func (s *manualScheduler) Fire() {
	s.job(time.Now())
}

func TestKeepaliveRefreshesEverySession(t *testing.T) {
	t.Parallel()

	ok := &countingRefresher{}
	broken := &countingRefresher{err: errors.New("verification failed")}
	sched := &manualScheduler{}
	k := NewKeepalive(sched, map[domain.SourceID]ports.Refresher{
		domain.SourceNewspapers: ok,
		domain.SourceLAPL:       broken,
	}, nil)

	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	sched.Fire()
	sched.Fire()

	if ok.calls != 2 || broken.calls != 2 {
		t.Fatalf("expected two refreshes each, got %d and %d", ok.calls, broken.calls)
	}

	failures := k.RefreshAll(context.Background())
	if len(failures) != 1 || failures[domain.SourceLAPL] == nil {
		t.Fatalf("unexpected failures: %v", failures)
	}

	if err := k.Stop(context.Background()); err != nil || !sched.stopped {
		t.Fatalf("stop: %v", err)
	}
}

func TestKeepaliveWithoutDriver(t *testing.T) {
	t.Parallel()

	k := NewKeepalive(nil, nil, nil)
	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("start without driver: %v", err)
	}
	if err := k.Stop(context.Background()); err != nil {
		t.Fatalf("stop without driver: %v", err)
	}
}
