package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/ports"
)

// ErrNotFound is returned by Load when nothing is stored for a source.
var ErrNotFound = errors.New("no stored cookies")

type envelope struct {
	Cookies     map[string]string `json:"cookies"`
	SavedAt     time.Time         `json:"saved_at"`
	Environment string            `json:"environment"`
	CookieCount int               `json:"cookie_count"`

	LocalStorage   map[string]string `json:"local_storage,omitempty"`
	SessionStorage map[string]string `json:"session_storage,omitempty"`
}

// SaveResult reports what was written.
type SaveResult struct {
	CookieCount int
	Skipped     int
	Path        string
}

// Store persists one cookie file per source inside a directory.
type Store struct {
	dir         string
	environment string
	logger      *slog.Logger
	now         func() time.Time
}

var _ ports.CredentialStore = (*Store)(nil)

// NewStore wires the credential directory and the environment tag written into each file.
func NewStore(dir, environment string, logger *slog.Logger) *Store {
	if environment == "" {
		environment = "local"
	}
	return &Store{dir: dir, environment: environment, logger: logger, now: time.Now}
}

// Path returns the file backing a source.
func (s *Store) Path(source domain.SourceID) string {
	return filepath.Join(s.dir, string(source)+"_cookies.json")
}

// Save normalizes and writes a cookie set. Skipped records are logged but never abort the save.
func (s *Store) Save(source domain.SourceID, set CookieSet) (SaveResult, error) {
	return s.save(source, set, domain.StorageTokens{})
}

func (s *Store) save(source domain.SourceID, set CookieSet, tokens domain.StorageTokens) (SaveResult, error) {
	for _, note := range set.Skipped {
		s.warn("skipping malformed cookie", "source", source, "detail", note)
	}
	if set.Len() == 0 {
		return SaveResult{Skipped: len(set.Skipped)}, fmt.Errorf("save %s: %w", source, ErrEmptyCookieSet)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return SaveResult{}, fmt.Errorf("create credentials directory: %w", err)
	}

	payload, err := json.MarshalIndent(envelope{
		Cookies:     set.Cookies,
		SavedAt:     s.now().UTC(),
		Environment: s.environment,
		CookieCount: set.Len(),

		LocalStorage:   tokens.LocalStorage,
		SessionStorage: tokens.SessionStorage,
	}, "", "  ")
	if err != nil {
		return SaveResult{}, fmt.Errorf("marshal cookies: %w", err)
	}

	path := s.Path(source)
	tmp, err := os.CreateTemp(s.dir, string(source)+"-*.tmp")
	if err != nil {
		return SaveResult{}, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return SaveResult{}, fmt.Errorf("write cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return SaveResult{}, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return SaveResult{}, fmt.Errorf("chmod cookies: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return SaveResult{}, fmt.Errorf("replace cookies file: %w", err)
	}

	s.info("saved cookies", "source", source, "count", set.Len(), "skipped", len(set.Skipped))
	return SaveResult{CookieCount: set.Len(), Skipped: len(set.Skipped), Path: path}, nil
}

// SaveSession stores the cookies and storage tokens captured after a browser login.
func (s *Store) SaveSession(source domain.SourceID, cookies map[string]string, tokens domain.StorageTokens) (int, error) {
	res, err := s.save(source, FromMap(cookies), tokens)
	return res.CookieCount, err
}

// Load returns the stored bundle or ErrNotFound.
func (s *Store) Load(source domain.SourceID) (domain.CredentialBundle, error) {
	raw, err := os.ReadFile(s.Path(source))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.CredentialBundle{}, fmt.Errorf("load %s: %w", source, ErrNotFound)
		}
		return domain.CredentialBundle{}, fmt.Errorf("read cookies: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.CredentialBundle{}, fmt.Errorf("decode cookies for %s: %w", source, err)
	}
	if len(env.Cookies) == 0 {
		return domain.CredentialBundle{}, fmt.Errorf("load %s: %w", source, ErrNotFound)
	}

	return domain.CredentialBundle{
		Source:      source,
		Cookies:     env.Cookies,
		SavedAt:     env.SavedAt,
		CookieCount: len(env.Cookies),
		Environment: env.Environment,
		Tokens: domain.StorageTokens{
			LocalStorage:   env.LocalStorage,
			SessionStorage: env.SessionStorage,
		},
	}, nil
}

// Clear deletes the stored cookies. Clearing a source with nothing stored succeeds.
func (s *Store) Clear(source domain.SourceID) error {
	if err := os.Remove(s.Path(source)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear %s: %w", source, err)
	}
	s.info("cleared cookies", "source", source)
	return nil
}

// Status describes stored metadata without exposing values.
type Status struct {
	Source      domain.SourceID
	Stored      bool
	CookieCount int
	SavedAt     time.Time
	Age         time.Duration
	Environment string
}

// Status reports whether cookies exist for a source and how old they are.
func (s *Store) Status(source domain.SourceID) (Status, error) {
	bundle, err := s.Load(source)
	if errors.Is(err, ErrNotFound) {
		return Status{Source: source}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{
		Source:      source,
		Stored:      true,
		CookieCount: bundle.CookieCount,
		SavedAt:     bundle.SavedAt,
		Age:         s.now().Sub(bundle.SavedAt),
		Environment: bundle.Environment,
	}, nil
}

func (s *Store) info(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Store) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
