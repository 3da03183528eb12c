package ports

import (
	"context"
	"time"

	"ArchiveExtractor/internal/domain"
)

// CredentialStore persists per-source cookie sets across runs.
type CredentialStore interface {
	Load(source domain.SourceID) (domain.CredentialBundle, error)
	SaveSession(source domain.SourceID, cookies map[string]string, tokens domain.StorageTokens) (int, error)
	Clear(source domain.SourceID) error
}

// Extractor turns one request into exactly one result; it never returns an error.
type Extractor interface {
	Extract(ctx context.Context, req domain.ExtractionRequest) domain.ExtractionResult
}

// ProgressFunc is called once per finished extraction, from a single goroutine.
type ProgressFunc func(completed, total int, result domain.ExtractionResult)

// Ledger records extraction outcomes for audit and --skip-completed runs.
type Ledger interface {
	Record(ctx context.Context, runID string, result domain.ExtractionResult) error
	Succeeded(ctx context.Context, urls []string) (map[string]bool, error)
}

// Notifier streams batch summaries to Telegram or other channels.
type Notifier interface {
	PublishSummary(ctx context.Context, summary string) error
}

// Refresher keeps an authenticated session warm.
type Refresher interface {
	RefreshIfNeeded(ctx context.Context) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
