package app

import (
	"context"
	"path/filepath"
	"testing"

	"ArchiveExtractor/internal/browser/browsertest"
	"ArchiveExtractor/internal/config"
	"ArchiveExtractor/internal/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Session.CredentialsDir = filepath.Join(dir, "credentials")
	cfg.Session.DebugDir = filepath.Join(dir, "debug")
	cfg.Storage.LedgerDSN = filepath.Join(dir, "ledger.db")
	cfg.Storage.ArtifactsDir = filepath.Join(dir, "downloads")
	cfg.Batch.Delay = 0
	return cfg
}

func TestNewWiresEnabledSources(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Sources.Newspapers.Enabled = false

	a, err := New(context.Background(), cfg, nil, Deps{Launcher: &browsertest.Launcher{}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if _, ok := a.Sessions().Get(domain.SourceNewspapers); ok {
		t.Fatalf("disabled source must not get a session")
	}
	for _, source := range []domain.SourceID{domain.SourceLAPL, domain.SourceNewspaperArchive} {
		if _, ok := a.Sessions().Get(source); !ok {
			t.Fatalf("missing session for %s", source)
		}
	}
	lapl, _ := a.Sessions().Get(domain.SourceLAPL)
	archive, _ := a.Sessions().Get(domain.SourceNewspaperArchive)
	if !lapl.SharesLoginWith(archive) {
		t.Fatalf("sources logging in with the LAPL card must share one login lock")
	}
	if a.Ledger() == nil {
		t.Fatalf("expected a ledger")
	}
	if _, _, err := a.CheckAuth(context.Background(), domain.SourceNewspapers); err == nil {
		t.Fatalf("expected an error for a disabled source")
	}
}

func TestNewKeepsUnrelatedLoginsApart(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t), nil, Deps{Launcher: &browsertest.Launcher{}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	newspapers, ok := a.Sessions().Get(domain.SourceNewspapers)
	if !ok {
		t.Fatalf("missing session for %s", domain.SourceNewspapers)
	}
	lapl, _ := a.Sessions().Get(domain.SourceLAPL)
	if newspapers.SharesLoginWith(lapl) {
		t.Fatalf("newspapers.com has its own account and must not wait on LAPL logins")
	}
}

func TestBatchRecordsToLedger(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, nil, Deps{Launcher: &browsertest.Launcher{}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	opts := a.BatchOptions()
	report := a.Orchestrator().ProcessURLsBatch(context.Background(),
		[]string{"not-a-url", "https://unsupported.example.org/story"}, opts, nil)

	if report.ValidURLs != 1 || report.Processed != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if kind := report.Errors[0].ErrorKind(); kind != domain.KindValidationError {
		t.Fatalf("expected validation error for an unsupported host, got %s", kind)
	}

	entries, err := a.Ledger().History(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].URL != "https://unsupported.example.org/story" {
		t.Fatalf("unexpected ledger entries: %+v", entries)
	}
}

func TestNewRequiresASource(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Sources = config.SourcesConfig{}
	if _, err := New(context.Background(), cfg, nil, Deps{Launcher: &browsertest.Launcher{}}); err == nil {
		t.Fatalf("expected error with every source disabled")
	}
}
