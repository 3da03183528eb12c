package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/ports"
)

// ErrUnsupportedDSN is returned by Open for a DSN scheme with no driver.
var ErrUnsupportedDSN = errors.New("unsupported ledger dsn")

const resultsTable = "extraction_results"

var resultColumns = []string{
	"id", "run_id", "url", "source", "ok", "error_kind", "message", "headline", "attempts", "processing_ms", "completed_at",
}

// Entry is one recorded extraction outcome.
type Entry struct {
	ID             string
	RunID          string
	URL            string
	Source         domain.SourceID
	OK             bool
	ErrorKind      domain.ErrorKind
	Message        string
	Headline       string
	Attempts       int
	ProcessingTime time.Duration
	CompletedAt    time.Time
}

// Ledger is an append-only audit log of extraction results in SQLite or Postgres.
type Ledger struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	driver  string
}

var _ ports.Ledger = (*Ledger)(nil)

// Open connects to dsn: postgres:// and postgresql:// use lib/pq, sqlite://, file: and bare paths use sqlite3.
func Open(dsn string) (*Ledger, error) {
	driver, source, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	return NewLedger(db, driver), nil
}

// NewLedger wraps an open database. driver selects the placeholder format.
func NewLedger(db *sql.DB, driver string) *Ledger {
	var format sq.PlaceholderFormat = sq.Question
	if driver == "postgres" {
		format = sq.Dollar
	}
	return &Ledger{db: db, builder: sq.StatementBuilder.PlaceholderFormat(format), driver: driver}
}

func parseDSN(dsn string) (driver, source string, err error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("empty dsn: %w", ErrUnsupportedDSN)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return "sqlite3", dsn, nil
	case strings.Contains(dsn, "://"):
		return "", "", fmt.Errorf("%s: %w", strings.SplitN(dsn, "://", 2)[0], ErrUnsupportedDSN)
	default:
		return "sqlite3", dsn, nil
	}
}

// Migrate creates the results table and its url index.
func (l *Ledger) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + resultsTable + ` (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			url TEXT NOT NULL,
			source TEXT NOT NULL,
			ok BOOLEAN NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			headline TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			processing_ms BIGINT NOT NULL DEFAULT 0,
			completed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS extraction_results_url ON ` + resultsTable + ` (url)`,
		`CREATE INDEX IF NOT EXISTS extraction_results_run ON ` + resultsTable + ` (run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

// Record appends one result under runID.
func (l *Ledger) Record(ctx context.Context, runID string, result domain.ExtractionResult) error {
	var kind domain.ErrorKind
	var message string
	if result.Failure != nil {
		kind = result.Failure.Kind
		message = result.Failure.Message
	}
	completed := result.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	query, args, err := l.builder.Insert(resultsTable).
		Columns(resultColumns...).
		Values(
			uuid.NewString(), runID, result.URL, string(result.Source), result.OK(), string(kind), message,
			result.Headline(), result.Attempts, result.ProcessingTime.Milliseconds(), completed.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert result %s: %w", result.URL, err)
	}
	return nil
}

// History returns a run's entries ordered by completion.
func (l *Ledger) History(ctx context.Context, runID string) ([]Entry, error) {
	query, args, err := l.builder.Select(resultColumns...).
		From(resultsTable).
		Where(sq.Eq{"run_id": runID}).
		OrderBy("completed_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			source    string
			kind      string
			processed int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.URL, &source, &e.OK, &kind, &e.Message, &e.Headline,
			&e.Attempts, &processed, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Source = domain.SourceID(source)
		e.ErrorKind = domain.ErrorKind(kind)
		e.ProcessingTime = time.Duration(processed) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return entries, nil
}

// Succeeded returns which of urls have at least one successful entry.
func (l *Ledger) Succeeded(ctx context.Context, urls []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(urls) == 0 {
		return result, nil
	}

	query, args, err := l.builder.Select("DISTINCT url").
		From(resultsTable).
		Where(sq.Eq{"url": urls, "ok": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build succeeded query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query succeeded: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		result[u] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
