package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ArchiveExtractor/internal/browser"
	"ArchiveExtractor/internal/config"
	"ArchiveExtractor/internal/credentials"
	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/extractor"
	"ArchiveExtractor/internal/infrastructure/scheduler"
	"ArchiveExtractor/internal/infrastructure/storage"
	"ArchiveExtractor/internal/infrastructure/telegram"
	"ArchiveExtractor/internal/ports"
	"ArchiveExtractor/internal/relevance"
	"ArchiveExtractor/internal/session"
	"ArchiveExtractor/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	store        *credentials.Store
	sessions     *session.Group
	runner       *extractor.Runner
	orchestrator *usecase.Orchestrator
	ledger       *storage.Ledger
}

// Deps lets callers replace the browser launcher; nil fields get the production implementation.
type Deps struct {
	Launcher browser.Launcher
}

// New builds the application for every enabled source.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, deps Deps) (*Application, error) {
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	launcher := deps.Launcher
	if launcher == nil {
		launcher = browser.NewChromeLauncher(browser.ChromeOptions{
			Headless:        cfg.Browser.Headless,
			ExecPath:        cfg.Browser.ExecPath,
			UserAgent:       cfg.Browser.UserAgent,
			WindowWidth:     cfg.Browser.WindowWidth,
			WindowHeight:    cfg.Browser.WindowHeight,
			PageLoadTimeout: cfg.Browser.PageLoadTimeout,
			ElementTimeout:  cfg.Browser.ElementTimeout,
			DownloadRoot:    cfg.Download.Dir,
		}, baseLogger.With("component", "browser"))
	}

	store := credentials.NewStore(cfg.Session.CredentialsDir, cfg.Session.Environment, baseLogger.With("component", "credentials"))

	registry := extractor.NewRegistry()
	managed := map[domain.SourceID]extractor.ManagedSession{}
	var managers []*session.Manager
	loginLocks := map[domain.SourceID]*sync.Mutex{}
	for _, source := range cfg.EnabledSources() {
		profile, ok := session.ProfileFor(source)
		if !ok {
			continue
		}
		sc := cfg.Source(source)
		lock, ok := loginLocks[profile.SessionKey()]
		if !ok {
			lock = &sync.Mutex{}
			loginLocks[profile.SessionKey()] = lock
		}
		m := session.NewManager(profile, store, launcher, session.Options{
			StalenessWindow: cfg.Session.StalenessWindow,
			DebugDir:        cfg.Session.DebugDir,
			HTTPTimeout:     cfg.HTTP.Timeout,
			UserAgent:       cfg.Browser.UserAgent,
			LoginWait:       cfg.Browser.ElementTimeout,
			Lock:            lock,
			Credentials:     &session.Credentials{Username: sc.Username, Password: sc.Password},
		}, baseLogger)
		managers = append(managers, m)
		managed[source] = m
		registry.Register(newExtractor(source, cfg, baseLogger))
	}
	if len(managers) == 0 {
		return nil, fmt.Errorf("no sources enabled")
	}

	analyzer := relevance.NewAnalyzer(cfg.Relevance.Config)
	runner := extractor.NewRunner(registry, managed, analyzer, extractor.RunnerOptions{
		Attempts:    cfg.Batch.RetryAttempts,
		TaskTimeout: cfg.Batch.TaskTimeout,
	}, baseLogger)

	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		sessions: session.NewGroup(managers...),
		runner:   runner,
	}

	orchDeps := usecase.OrchestratorDeps{Extractor: runner, Logger: baseLogger}
	if cfg.Storage.LedgerDSN != "" {
		ledger, err := storage.Open(cfg.Storage.LedgerDSN)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		if err := ledger.Migrate(ctx); err != nil {
			ledger.Close()
			return nil, err
		}
		a.ledger = ledger
		orchDeps.Ledger = ledger
	}
	if tg := cfg.Notifications.Telegram; tg.Enabled() {
		orchDeps.Notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID, tg.APIBase)
	}
	a.orchestrator = usecase.NewOrchestrator(orchDeps)
	return a, nil
}

func newExtractor(source domain.SourceID, cfg config.Config, logger *slog.Logger) extractor.Extractor {
	switch source {
	case domain.SourceNewspapers:
		return extractor.NewNewspapers(extractor.NewspapersOptions{}, logger)
	case domain.SourceLAPL:
		return extractor.NewLAPL(logger)
	default:
		return extractor.NewNewspaperArchive(extractor.DownloadOptions{
			Window:      cfg.Download.Window,
			Interval:    cfg.Download.Interval,
			StepTimeout: cfg.Browser.ElementTimeout,
			PDF:         cfg.Download.PDF,
		}, logger)
	}
}

// Config returns the loaded configuration.
func (a *Application) Config() config.Config {
	return a.cfg
}

// Store returns the cookie store.
func (a *Application) Store() *credentials.Store {
	return a.store
}

// Sessions returns the per-source session managers.
func (a *Application) Sessions() *session.Group {
	return a.sessions
}

// Orchestrator returns the batch use case.
func (a *Application) Orchestrator() *usecase.Orchestrator {
	return a.orchestrator
}

// Extractor returns the single-URL runner.
func (a *Application) Extractor() ports.Extractor {
	return a.runner
}

// Ledger returns the extraction ledger, or nil when none is configured.
func (a *Application) Ledger() *storage.Ledger {
	return a.ledger
}

// Artifacts returns a store for saved payloads; an empty dir uses the configured one.
func (a *Application) Artifacts(dir string) *storage.ArtifactStore {
	if dir == "" {
		dir = a.cfg.Storage.ArtifactsDir
	}
	return storage.NewArtifactStore(dir, a.cfg.Storage.Project)
}

// BatchOptions returns the configured batch defaults.
func (a *Application) BatchOptions() usecase.BatchOptions {
	return usecase.BatchOptions{
		Concurrency: a.cfg.Batch.Concurrency,
		Delay:       a.cfg.Batch.Delay,
		NameFilter:  a.cfg.Relevance.NameFilter,
	}
}

// CheckAuth authenticates one source and probes premium access.
func (a *Application) CheckAuth(ctx context.Context, source domain.SourceID) (session.Status, session.Verdict, error) {
	m, ok := a.sessions.Get(source)
	if !ok {
		return session.Status{}, session.Verdict{}, fmt.Errorf("source %s is not enabled", source)
	}
	if err := m.Initialize(ctx, nil); err != nil {
		return m.Status(), session.Verdict{}, err
	}
	verdict, err := m.TestPremiumAccess(ctx)
	if err != nil {
		return m.Status(), verdict, fmt.Errorf("premium probe: %w", err)
	}
	return m.Status(), verdict, nil
}

// RunKeepalive refreshes every session on the configured cron schedule until ctx is done.
func (a *Application) RunKeepalive(ctx context.Context) error {
	cron, err := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Timezone)
	if err != nil {
		return err
	}
	refreshers := map[domain.SourceID]ports.Refresher{}
	for _, m := range a.sessions.Managers() {
		refreshers[m.Source()] = m
	}

	keepalive := usecase.NewKeepalive(cron, refreshers, a.logger)
	if failures := keepalive.RefreshAll(ctx); len(failures) > 0 {
		a.logger.Warn("initial refresh incomplete", "failed", len(failures))
	}
	if err := keepalive.Start(ctx); err != nil {
		return fmt.Errorf("start keepalive: %w", err)
	}
	a.logger.Info("keepalive running", "schedule", a.cfg.Scheduler.CronExpression, "next", cron.Next(time.Now()))

	<-ctx.Done()
	return keepalive.Stop(context.Background())
}

// Close releases browsers, connections and the ledger.
func (a *Application) Close() error {
	a.sessions.CleanupAll()
	if a.ledger != nil {
		return a.ledger.Close()
	}
	return nil
}
