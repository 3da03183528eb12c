package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArchiveExtractor/internal/domain"
)

func createTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err, "should open ledger")
	t.Cleanup(func() { ledger.Close() })
	require.NoError(t, ledger.Migrate(context.Background()), "should migrate schema")
	return ledger
}

func TestParseDSN(t *testing.T) {
	cases := []struct {
		dsn    string
		driver string
		source string
	}{
		{"postgres://u:p@localhost/db", "postgres", "postgres://u:p@localhost/db"},
		{"postgresql://localhost/db", "postgres", "postgresql://localhost/db"},
		{"sqlite:///tmp/ledger.db", "sqlite3", "/tmp/ledger.db"},
		{"file:ledger.db?cache=shared", "sqlite3", "file:ledger.db?cache=shared"},
		{":memory:", "sqlite3", ":memory:"},
		{"data/ledger.db", "sqlite3", "data/ledger.db"},
	}
	for _, tc := range cases {
		driver, source, err := parseDSN(tc.dsn)
		require.NoError(t, err, tc.dsn)
		assert.Equal(t, tc.driver, driver, tc.dsn)
		assert.Equal(t, tc.source, source, tc.dsn)
	}

	_, _, err := parseDSN("mysql://localhost/db")
	assert.True(t, errors.Is(err, ErrUnsupportedDSN))
	_, _, err = parseDSN("  ")
	assert.True(t, errors.Is(err, ErrUnsupportedDSN))
}

func TestNewLedgerPlaceholders(t *testing.T) {
	pg := NewLedger(nil, "postgres")
	query, _, err := pg.builder.Select("url").From(resultsTable).Where(sq.Eq{"run_id": "r"}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "run_id = $1")

	lite := NewLedger(nil, "sqlite3")
	query, _, err = lite.builder.Select("url").From(resultsTable).Where(sq.Eq{"run_id": "r"}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "run_id = ?")
}

func TestLedgerRecordAndHistory(t *testing.T) {
	ledger := createTestLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ok := domain.Succeeded("https://www.newspapers.com/article/1", domain.SourceNewspapers, domain.Success{
		Article: domain.Article{Headline: "Eagles win"},
	})
	ok.Attempts = 1
	ok.ProcessingTime = 1500 * time.Millisecond
	ok.CompletedAt = base

	failed := domain.Failed("https://lapl.org/article/2", domain.SourceLAPL, context.DeadlineExceeded)
	failed.Attempts = 2
	failed.CompletedAt = base.Add(time.Second)

	require.NoError(t, ledger.Record(ctx, "run-1", ok))
	require.NoError(t, ledger.Record(ctx, "run-1", failed))
	require.NoError(t, ledger.Record(ctx, "run-2", ok))

	entries, err := ledger.History(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "https://www.newspapers.com/article/1", first.URL)
	assert.Equal(t, domain.SourceNewspapers, first.Source)
	assert.True(t, first.OK)
	assert.Equal(t, "Eagles win", first.Headline)
	assert.Equal(t, 1500*time.Millisecond, first.ProcessingTime)
	assert.NotEmpty(t, first.ID)

	second := entries[1]
	assert.False(t, second.OK)
	assert.Equal(t, domain.KindNavigationTimeout, second.ErrorKind)
	assert.Equal(t, 2, second.Attempts)
	assert.NotEmpty(t, second.Message)
}

func TestLedgerSucceeded(t *testing.T) {
	ledger := createTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, "run-1",
		domain.Succeeded("https://a.example/done", domain.SourceLAPL, domain.Success{})))
	require.NoError(t, ledger.Record(ctx, "run-1",
		domain.Failed("https://a.example/failed", domain.SourceLAPL, errors.New("boom"))))

	done, err := ledger.Succeeded(ctx, []string{"https://a.example/done", "https://a.example/failed", "https://a.example/new"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"https://a.example/done": true}, done)

	empty, err := ledger.Succeeded(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLedgerMigrateIsIdempotent(t *testing.T) {
	ledger := createTestLedger(t)
	require.NoError(t, ledger.Migrate(context.Background()))

	entries, err := ledger.History(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
