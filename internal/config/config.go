package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/relevance"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "ARCHIVE_EXTRACTOR_CONFIG"

	newspapersUserEnv = "NEWSPAPERS_USERNAME"
	newspapersPassEnv = "NEWSPAPERS_PASSWORD"
	laplCardEnv       = "LAPL_CARD_NUMBER"
	laplPinEnv        = "LAPL_PIN"
	ledgerDSNEnv      = "LEDGER_DSN"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	chromePathEnv     = "CHROME_PATH"
	logLevelEnv       = "LOG_LEVEL"
	environmentEnv    = "EXTRACTOR_ENVIRONMENT"
	replitEnv         = "REPL_ID"
)

// Batch concurrency bounds.
const (
	MinConcurrency = 1
	MaxConcurrency = 5
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Batch         BatchConfig        `yaml:"batch"`
	Session       SessionConfig      `yaml:"session"`
	Browser       BrowserConfig      `yaml:"browser"`
	HTTP          HTTPConfig         `yaml:"http"`
	Download      DownloadConfig     `yaml:"download"`
	Sources       SourcesConfig      `yaml:"sources"`
	Relevance     RelevanceConfig    `yaml:"relevance"`
	Storage       StorageConfig      `yaml:"storage"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
}

// LoggingConfig selects the level and an optional rotated log file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// BatchConfig tunes the batch orchestrator and the per-URL runner.
type BatchConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	Delay         time.Duration `yaml:"delay"`
	RetryAttempts int           `yaml:"retryAttempts"`
	TaskTimeout   time.Duration `yaml:"taskTimeout"`
}

// SessionConfig tunes authenticated sessions and where their state lives.
type SessionConfig struct {
	StalenessWindow time.Duration `yaml:"stalenessWindow"`
	CredentialsDir  string        `yaml:"credentialsDir"`
	DebugDir        string        `yaml:"debugDir"`
	Environment     string        `yaml:"environment"`
}

// BrowserConfig configures launched Chrome instances.
type BrowserConfig struct {
	Headless        bool          `yaml:"headless"`
	ExecPath        string        `yaml:"execPath"`
	UserAgent       string        `yaml:"userAgent"`
	WindowWidth     int           `yaml:"windowWidth"`
	WindowHeight    int           `yaml:"windowHeight"`
	PageLoadTimeout time.Duration `yaml:"pageLoadTimeout"`
	ElementTimeout  time.Duration `yaml:"elementTimeout"`
}

// HTTPConfig bounds plain HTTP fetches.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// DownloadConfig bounds the NewspaperArchive download window.
type DownloadConfig struct {
	Window   time.Duration `yaml:"window"`
	Interval time.Duration `yaml:"interval"`
	Dir      string        `yaml:"dir"`
	PDF      bool          `yaml:"pdf"`
}

// SourcesConfig holds per-source switches and login credentials.
type SourcesConfig struct {
	Newspapers       SourceConfig `yaml:"newspapers"`
	LAPL             SourceConfig `yaml:"lapl"`
	NewspaperArchive SourceConfig `yaml:"newspaperarchive"`
}

// SourceConfig enables a source and carries its optional login.
type SourceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RelevanceConfig extends the analyzer settings with a default name filter.
type RelevanceConfig struct {
	relevance.Config `yaml:",inline"`
	NameFilter       string `yaml:"nameFilter"`
}

// StorageConfig locates the extraction ledger and saved artifacts.
type StorageConfig struct {
	LedgerDSN    string `yaml:"ledgerDSN"`
	ArtifactsDir string `yaml:"artifactsDir"`
	Project      string `yaml:"project"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
}

// Enabled reports whether both the token and the chat are set.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// SchedulerConfig defines when the keepalive refresh runs.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Source returns the settings of one source.
func (c Config) Source(source domain.SourceID) SourceConfig {
	switch source {
	case domain.SourceNewspapers:
		return c.Sources.Newspapers
	case domain.SourceLAPL:
		return c.Sources.LAPL
	case domain.SourceNewspaperArchive:
		sc := c.Sources.NewspaperArchive
		// NewspaperArchive is reached through the LAPL proxy login.
		if sc.Username == "" && sc.Password == "" {
			sc.Username, sc.Password = c.Sources.LAPL.Username, c.Sources.LAPL.Password
		}
		return sc
	default:
		return SourceConfig{}
	}
}

// EnabledSources lists enabled sources in a stable order.
func (c Config) EnabledSources() []domain.SourceID {
	var out []domain.SourceID
	for _, s := range domain.Sources() {
		if c.Source(s).Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, err := readFile(path, cfg)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = fileCfg
		}
	}

	cfg.finish()
	return cfg
}

// Default returns the built-in configuration without file or environment input.
func Default() Config {
	return defaultConfig()
}

// LoadFile reads path strictly: unreadable or malformed files are errors.
func LoadFile(path string) (Config, error) {
	cfg, err := readFile(path, defaultConfig())
	if err != nil {
		return Config{}, err
	}
	cfg.finish()
	return cfg, nil
}

// readFile decodes path over base, so absent keys keep their defaults.
func readFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) finish() {
	c.applyEnvOverrides()
	c.normalize()
	c.bindTimezone()
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(newspapersUserEnv); v != "" {
		c.Sources.Newspapers.Username = v
	}
	if v := os.Getenv(newspapersPassEnv); v != "" {
		c.Sources.Newspapers.Password = v
	}
	if v := os.Getenv(laplCardEnv); v != "" {
		c.Sources.LAPL.Username = v
	}
	if v := os.Getenv(laplPinEnv); v != "" {
		c.Sources.LAPL.Password = v
	}
	if v := os.Getenv(ledgerDSNEnv); v != "" {
		c.Storage.LedgerDSN = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(chromePathEnv); v != "" {
		c.Browser.ExecPath = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	switch {
	case os.Getenv(environmentEnv) != "":
		c.Session.Environment = os.Getenv(environmentEnv)
	case os.Getenv(replitEnv) != "":
		c.Session.Environment = "replit"
	}
}

func (c *Config) normalize() {
	def := defaultConfig()

	if c.Batch.Concurrency < MinConcurrency {
		c.Batch.Concurrency = def.Batch.Concurrency
	}
	if c.Batch.Concurrency > MaxConcurrency {
		log.Printf("config: batch concurrency %d above %d, clamping", c.Batch.Concurrency, MaxConcurrency)
		c.Batch.Concurrency = MaxConcurrency
	}
	if c.Batch.Delay < 0 {
		c.Batch.Delay = 0
	}
	if c.Batch.RetryAttempts < 1 {
		c.Batch.RetryAttempts = def.Batch.RetryAttempts
	}
	if c.Batch.TaskTimeout <= 0 {
		c.Batch.TaskTimeout = def.Batch.TaskTimeout
	}
	if c.Session.StalenessWindow <= 0 {
		c.Session.StalenessWindow = def.Session.StalenessWindow
	}
	if c.Session.Environment == "" {
		c.Session.Environment = def.Session.Environment
	}
	if c.Download.Window <= 0 {
		c.Download.Window = def.Download.Window
	}
	if c.Download.Interval <= 0 || c.Download.Interval > c.Download.Window {
		c.Download.Interval = def.Download.Interval
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
		c.Scheduler.Timezone = defaultTimezone
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", MaxSizeMB: 20, MaxBackups: 3, MaxAgeDays: 14},
		Batch: BatchConfig{
			Concurrency:   3,
			Delay:         time.Second,
			RetryAttempts: 2,
			TaskTimeout:   3 * time.Minute,
		},
		Session: SessionConfig{
			StalenessWindow: 6 * time.Hour,
			CredentialsDir:  "credentials",
			DebugDir:        "debug",
			Environment:     "local",
		},
		Browser: BrowserConfig{
			Headless:        true,
			WindowWidth:     1920,
			WindowHeight:    1080,
			PageLoadTimeout: 30 * time.Second,
			ElementTimeout:  15 * time.Second,
		},
		HTTP:     HTTPConfig{Timeout: 30 * time.Second},
		Download: DownloadConfig{Window: 15 * time.Second, Interval: 2 * time.Second},
		Sources: SourcesConfig{
			Newspapers:       SourceConfig{Enabled: true},
			LAPL:             SourceConfig{Enabled: true},
			NewspaperArchive: SourceConfig{Enabled: true},
		},
		Relevance: RelevanceConfig{Config: relevance.DefaultConfig()},
		Storage:   StorageConfig{LedgerDSN: "extractions.db", ArtifactsDir: "downloads", Project: "default"},
		Scheduler: SchedulerConfig{CronExpression: "@every 30m", Timezone: defaultTimezone, location: tz},
	}
}
