package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestNewCronSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	if _, err := NewCronScheduler("not a spec", ""); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := NewCronScheduler("@hourly", "Mars/Olympus"); err == nil {
		t.Fatalf("expected location error")
	}
}

func TestCronSchedulerNext(t *testing.T) {
	t.Parallel()

	s, err := NewCronScheduler("0 6 * * *", "America/Los_Angeles")
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	loc, _ := time.LoadLocation("America/Los_Angeles")
	from := time.Date(2024, 5, 1, 7, 0, 0, 0, loc)
	next := s.Next(from)
	want := time.Date(2024, 5, 2, 6, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestCronSchedulerRunsJob(t *testing.T) {
	t.Parallel()

	s, err := NewCronScheduler("@every 1s", "UTC")
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	fired := make(chan time.Time, 4)
	if err := s.Start(context.Background(), func(at time.Time) { fired <- at }); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not fire")
	}
}

func TestCronSchedulerStopsWithContext(t *testing.T) {
	t.Parallel()

	s, err := NewCronScheduler("", "")
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx, func(time.Time) {}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		stopped := s.cron == nil
		s.mu.Unlock()
		if stopped {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("scheduler still running after context cancel")
}
