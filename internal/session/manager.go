package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"ArchiveExtractor/internal/browser"
	"ArchiveExtractor/internal/credentials"
	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/ports"
)

// State is the lifecycle position of a source session.
type State string

const (
	StateUnauthenticated State = "UNAUTHENTICATED"
	StateAuthenticating  State = "AUTHENTICATING"
	StateAuthenticated   State = "AUTHENTICATED"
	StateStale           State = "STALE"
	StateAuthFailed      State = "AUTH_FAILED"
)

// DefaultStalenessWindow is how long a validated session is trusted without a re-login.
const DefaultStalenessWindow = 6 * time.Hour

// DefaultLoginWait is how long a submitted login may take to land.
const DefaultLoginWait = 15 * time.Second

const loginPollInterval = 250 * time.Millisecond

// Credentials drive an interactive browser login.
type Credentials struct {
	Username string
	Password string
}

func (c *Credentials) usable() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

// Options tune a Manager.
type Options struct {
	StalenessWindow time.Duration
	DebugDir        string
	HTTPTimeout     time.Duration
	UserAgent       string
	// LoginWait bounds how long a submitted login form may take to leave the login page.
	LoginWait time.Duration
	// Lock, when set, is shared by managers that log in with the same account so
	// their logins never run concurrently.
	Lock *sync.Mutex
	// Credentials, when usable, are used for every login instead of stored cookies.
	Credentials *Credentials
}

// View is a read-only snapshot of the live session handed to extractors.
type View struct {
	Source        domain.SourceID
	State         State
	Client        *http.Client
	Generation    uint64
	Cookies       []domain.Cookie
	Tokens        domain.StorageTokens
	LastValidated time.Time
	Premium       bool
	UserAgent     string
}

// Authenticated reports whether the view was taken from a validated session.
func (v View) Authenticated() bool {
	return v.State == StateAuthenticated
}

// Status summarizes a manager for the CLI and keepalive logs.
type Status struct {
	Source        domain.SourceID
	State         State
	Generation    uint64
	LastValidated time.Time
	Premium       bool
	AuthCount     int
	LastFailure   string
}

// Manager owns the authenticated session of one source.
// Initialize and RefreshIfNeeded are serialized on the login lock; Session, Invalidate and Status
// never block on them.
type Manager struct {
	profile   Profile
	store     ports.CredentialStore
	launcher  browser.Launcher
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
	transport *http.Transport

	mu *sync.Mutex

	stateMu       sync.RWMutex
	state         State
	generation    uint64
	invalidated   bool
	lastValidated time.Time
	premium       bool
	authCount     int
	lastFailure   string
	creds         *Credentials
	client        *http.Client
	cookies       []domain.Cookie
	tokens        domain.StorageTokens
	hot           browser.Driver
}

var _ ports.Refresher = (*Manager)(nil)

// NewManager wires a source profile to its credential store and browser launcher.
func NewManager(profile Profile, store ports.CredentialStore, launcher browser.Launcher, opts Options, logger *slog.Logger) *Manager {
	if opts.StalenessWindow <= 0 {
		opts.StalenessWindow = DefaultStalenessWindow
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = browser.DefaultUserAgent
	}
	if opts.LoginWait <= 0 {
		opts.LoginWait = DefaultLoginWait
	}
	if logger != nil {
		logger = logger.With("component", "session", "source", profile.Source)
	}
	var creds *Credentials
	if opts.Credentials.usable() {
		c := *opts.Credentials
		creds = &c
	}
	opts.Credentials = nil
	lock := opts.Lock
	if lock == nil {
		lock = &sync.Mutex{}
	}
	opts.Lock = nil
	return &Manager{
		mu:        lock,
		profile:   profile,
		store:     store,
		launcher:  launcher,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		transport: http.DefaultTransport.(*http.Transport).Clone(),
		state:     StateUnauthenticated,
		creds:     creds,
	}
}

// SharesLoginWith reports whether m and other serialize their logins on one lock.
func (m *Manager) SharesLoginWith(other *Manager) bool {
	return other != nil && m.mu == other.mu
}

// Source returns the source this manager authenticates.
func (m *Manager) Source() domain.SourceID {
	return m.profile.Source
}

// Profile returns the login profile in use.
func (m *Manager) Profile() Profile {
	return m.profile
}

// Initialize authenticates from explicit credentials when given, otherwise from stored cookies.
// Explicit credentials are remembered for later refreshes.
func (m *Manager) Initialize(ctx context.Context, creds *Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if creds.usable() {
		c := *creds
		m.stateMu.Lock()
		m.creds = &c
		m.stateMu.Unlock()
	}
	return m.initialize(ctx)
}

// RefreshIfNeeded is a no-op for a fresh session and a full re-initialize otherwise.
// Safe to call before every extraction.
func (m *Manager) RefreshIfNeeded(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stateMu.Lock()
	fresh := m.state == StateAuthenticated && !m.invalidated &&
		m.now().Sub(m.lastValidated) <= m.opts.StalenessWindow
	if !fresh && m.state == StateAuthenticated {
		m.state = StateStale
	}
	state := m.state
	m.stateMu.Unlock()

	if fresh {
		return nil
	}
	m.info("refreshing session", "state", state)
	return m.initialize(ctx)
}

// Invalidate marks the session stale if generation is still current. Callers pass the generation
// of the view they failed with, so concurrent invalidations of one session cause one re-login.
func (m *Manager) Invalidate(generation uint64) bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if generation != m.generation || m.state != StateAuthenticated {
		return false
	}
	m.invalidated = true
	m.state = StateStale
	return true
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() View {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	client := m.client
	if client == nil {
		client = m.newClient(nil)
	}
	return View{
		Source:        m.profile.Source,
		State:         m.state,
		Client:        client,
		Generation:    m.generation,
		Cookies:       append([]domain.Cookie(nil), m.cookies...),
		Tokens:        copyTokens(m.tokens),
		LastValidated: m.lastValidated,
		Premium:       m.premium,
		UserAgent:     m.opts.UserAgent,
	}
}

// Status reports state without secrets.
func (m *Manager) Status() Status {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return Status{
		Source:        m.profile.Source,
		State:         m.state,
		Generation:    m.generation,
		LastValidated: m.lastValidated,
		Premium:       m.premium,
		AuthCount:     m.authCount,
		LastFailure:   m.lastFailure,
	}
}

// TestAuthentication runs the auth probe against the current session.
func (m *Manager) TestAuthentication(ctx context.Context) (Verdict, error) {
	return fetchProbe(ctx, m.Session().Client, m.profile.AuthProbe, m.opts.UserAgent, m.profile.LoginMarkers)
}

// TestPremiumAccess runs the premium probe; sources without one pass trivially.
func (m *Manager) TestPremiumAccess(ctx context.Context) (Verdict, error) {
	if m.profile.PremiumProbe.URL == "" {
		return Verdict{OK: true, Reason: "no premium probe"}, nil
	}
	return fetchProbe(ctx, m.Session().Client, m.profile.PremiumProbe, m.opts.UserAgent, m.profile.LoginMarkers)
}

// AcquireDriver launches a browser owned by the caller, seeded with the session cookies and
// storage tokens. The caller must Close it.
func (m *Manager) AcquireDriver(ctx context.Context) (browser.Driver, error) {
	if m.launcher == nil {
		return nil, errors.New("no browser launcher configured")
	}
	view := m.Session()

	d, err := m.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	if len(view.Cookies) > 0 {
		if err := d.SetCookies(ctx, view.Cookies); err != nil {
			d.Close()
			return nil, fmt.Errorf("seed cookies: %w", err)
		}
	}
	if hasTokens(view.Tokens) && m.profile.HomeURL != "" {
		if err := d.Navigate(ctx, m.profile.HomeURL); err != nil {
			d.Close()
			return nil, fmt.Errorf("open %s for storage restore: %w", m.profile.HomeURL, err)
		}
		if err := d.RestoreStorage(ctx, view.Tokens); err != nil {
			d.Close()
			return nil, fmt.Errorf("restore storage: %w", err)
		}
	}
	return d, nil
}

// Cleanup closes the login browser and idle HTTP connections. It is safe to call more than once.
func (m *Manager) Cleanup() {
	m.stateMu.Lock()
	hot := m.hot
	m.hot = nil
	m.stateMu.Unlock()

	if hot != nil {
		if err := hot.Close(); err != nil {
			m.warn("close login browser", "error", err)
		}
	}
	m.transport.CloseIdleConnections()
}

func (m *Manager) initialize(ctx context.Context) error {
	m.setState(StateAuthenticating)

	m.stateMu.RLock()
	creds := m.creds
	m.stateMu.RUnlock()

	var (
		cookies   []domain.Cookie
		tokens    domain.StorageTokens
		fromLogin bool
		err       error
	)
	if creds.usable() {
		cookies, tokens, err = m.login(ctx, *creds)
		fromLogin = true
	} else {
		cookies, tokens, err = m.loadStored()
	}
	if err != nil {
		return m.fail(ctx, err)
	}

	client := m.newClient(cookies)
	premium, err := m.verify(ctx, client)
	if err != nil {
		return m.fail(ctx, err)
	}

	if fromLogin {
		values := make(map[string]string, len(cookies))
		for _, c := range cookies {
			values[c.Name] = c.Value
		}
		if _, err := m.store.SaveSession(m.profile.SessionKey(), values, tokens); err != nil {
			m.warn("persist session", "error", err)
		}
	}

	m.stateMu.Lock()
	m.state = StateAuthenticated
	m.generation++
	m.invalidated = false
	m.lastValidated = m.now()
	m.premium = premium
	m.authCount++
	m.lastFailure = ""
	m.client = client
	m.cookies = cookies
	m.tokens = tokens
	generation := m.generation
	m.stateMu.Unlock()

	m.info("session authenticated", "generation", generation, "cookies", len(cookies), "premium", premium, "login", fromLogin)
	return nil
}

func (m *Manager) loadStored() ([]domain.Cookie, domain.StorageTokens, error) {
	bundle, err := m.store.Load(m.profile.SessionKey())
	if errors.Is(err, credentials.ErrNotFound) {
		return nil, domain.StorageTokens{}, &AuthError{Reason: ReasonNoCredentials, Err: ErrNoCredentials}
	}
	if err != nil {
		return nil, domain.StorageTokens{}, &AuthError{Reason: ReasonNoCredentials, Err: err}
	}

	secure := !strings.HasPrefix(m.profile.HomeURL, "http://")
	cookies := make([]domain.Cookie, 0, len(bundle.Cookies))
	for name, value := range bundle.Cookies {
		cookies = append(cookies, domain.Cookie{
			Name:   name,
			Value:  value,
			Domain: m.profile.CookieDomain,
			Path:   "/",
			Secure: secure,
		})
	}
	m.debug("loaded stored cookies", "count", len(cookies), "saved_at", bundle.SavedAt)
	return cookies, bundle.Tokens, nil
}

func (m *Manager) login(ctx context.Context, creds Credentials) ([]domain.Cookie, domain.StorageTokens, error) {
	var tokens domain.StorageTokens
	if m.launcher == nil {
		return nil, tokens, &AuthError{Reason: ReasonBrowser, Err: errors.New("no browser launcher configured")}
	}
	d, err := m.launcher.Launch(ctx)
	if err != nil {
		return nil, tokens, &AuthError{Reason: ReasonBrowser, Err: err}
	}
	m.replaceHot(d)

	if err := d.Navigate(ctx, m.profile.LoginURL); err != nil {
		return nil, tokens, &AuthError{Reason: ReasonLoginFormNotFound, Detail: "open login page", Err: err}
	}

	user, err := browser.FirstPresent(ctx, d, m.profile.Username)
	if err != nil {
		return nil, tokens, &AuthError{Reason: ReasonLoginFormNotFound, Detail: "username field", Err: err}
	}
	pass, err := browser.FirstPresent(ctx, d, m.profile.Password)
	if err != nil {
		return nil, tokens, &AuthError{Reason: ReasonLoginFormNotFound, Detail: "password field", Err: err}
	}
	m.debug("login form located", "username", user.String(), "password", pass.String())

	if err := d.SendKeys(ctx, user, creds.Username); err != nil {
		return nil, tokens, &AuthError{Reason: ReasonLoginFormNotFound, Detail: "type username", Err: err}
	}
	if err := d.SendKeys(ctx, pass, creds.Password); err != nil {
		return nil, tokens, &AuthError{Reason: ReasonLoginFormNotFound, Detail: "type password", Err: err}
	}

	submit, err := browser.FirstPresent(ctx, d, m.profile.Submit)
	if err != nil {
		return nil, tokens, &AuthError{Reason: ReasonSubmitNotFound, Err: err}
	}
	if err := d.Click(ctx, submit); err != nil {
		return nil, tokens, &AuthError{Reason: ReasonSubmitNotFound, Detail: "click " + submit.String(), Err: err}
	}

	landed, ok := browser.PollUntil(ctx, m.opts.LoginWait, loginPollInterval, func(ctx context.Context) (loginLanding, bool) {
		return m.landing(ctx, d)
	})
	if !ok {
		if landed.err != nil {
			return nil, tokens, &AuthError{Reason: ReasonVerificationFailed, Detail: "read login landing", Err: landed.err}
		}
		if m.onLoginPage(landed.location) {
			return nil, tokens, &AuthError{Reason: ReasonVerificationFailed, Detail: "login did not leave the login page: " + landed.location}
		}
		return nil, tokens, &AuthError{Reason: ReasonVerificationFailed, Detail: "login produced no cookies"}
	}
	m.debug("login landed", "location", landed.location, "cookies", len(landed.cookies))
	cookies := landed.cookies

	tokens, err = d.Storage(ctx)
	if err != nil {
		m.warn("read storage tokens", "error", err)
	}
	return cookies, tokens, nil
}

type loginLanding struct {
	location string
	cookies  []domain.Cookie
	err      error
}

// landing reports whether the browser has left the login page with cookies set.
func (m *Manager) landing(ctx context.Context, d browser.Driver) (loginLanding, bool) {
	var l loginLanding
	l.location, l.err = d.Location(ctx)
	if l.err != nil || m.onLoginPage(l.location) {
		return l, false
	}
	l.cookies, l.err = d.Cookies(ctx)
	return l, l.err == nil && len(l.cookies) > 0
}

func (m *Manager) onLoginPage(location string) bool {
	if location == "" || strings.TrimSuffix(location, "/") == strings.TrimSuffix(m.profile.LoginURL, "/") {
		return true
	}
	lower := strings.ToLower(location)
	for _, marker := range m.profile.LoginMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func (m *Manager) verify(ctx context.Context, client *http.Client) (bool, error) {
	v, err := fetchProbe(ctx, client, m.profile.AuthProbe, m.opts.UserAgent, m.profile.LoginMarkers)
	if err != nil {
		return false, &AuthError{Reason: ReasonVerificationFailed, Err: err}
	}
	if !v.OK {
		return false, &AuthError{Reason: ReasonVerificationFailed, Detail: v.Reason, page: &v}
	}

	if m.profile.PremiumProbe.URL == "" {
		return false, nil
	}
	v, err = fetchProbe(ctx, client, m.profile.PremiumProbe, m.opts.UserAgent, m.profile.LoginMarkers)
	if err != nil {
		return false, &AuthError{Reason: ReasonPremiumProbeFailed, Err: err}
	}
	if !v.OK {
		return false, &AuthError{Reason: ReasonPremiumProbeFailed, Detail: v.Reason, page: &v}
	}
	return true, nil
}

func (m *Manager) fail(ctx context.Context, err error) error {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		authErr = &AuthError{Reason: ReasonVerificationFailed, Err: err}
	}
	authErr.Source = m.profile.Source

	if authErr.Reason != ReasonNoCredentials {
		snap := snapshot{
			Source:     m.profile.Source,
			Reason:     authErr.Reason,
			Detail:     authErr.Detail,
			CapturedAt: m.now().UTC(),
		}
		if authErr.page != nil {
			snap.URL, snap.Title, snap.Markup = authErr.page.URL, authErr.page.Title, authErr.page.Markup
		} else {
			m.stateMu.RLock()
			hot := m.hot
			m.stateMu.RUnlock()
			snap.URL, snap.Title, snap.Markup = snapshotFromDriver(context.WithoutCancel(ctx), hot)
		}
		path, werr := writeSnapshot(m.opts.DebugDir, snap)
		if werr != nil {
			m.warn("write debug snapshot", "error", werr)
		}
		authErr.Snapshot = path
	}

	m.stateMu.Lock()
	m.state = StateAuthFailed
	m.lastFailure = string(authErr.Reason)
	m.stateMu.Unlock()

	m.warn("authentication failed", "reason", authErr.Reason, "detail", authErr.Detail, "snapshot", authErr.Snapshot, "error", authErr.Err)
	return authErr
}

// newClient builds an HTTP client whose jar holds exactly the given cookies.
func (m *Manager) newClient(cookies []domain.Cookie) *http.Client {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		m.warn("create cookie jar", "error", err)
	}

	home, _ := url.Parse(m.profile.HomeURL)
	byURL := map[string][]*http.Cookie{}
	for _, c := range cookies {
		target := home
		hc := &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path, Secure: c.Secure, HttpOnly: c.HTTPOnly}
		if hc.Path == "" {
			hc.Path = "/"
		}
		if c.Domain != "" {
			hc.Domain = c.Domain
			target = &url.URL{Scheme: "https", Host: strings.TrimPrefix(c.Domain, "."), Path: "/"}
		}
		if target == nil || target.Host == "" {
			continue
		}
		byURL[target.String()] = append(byURL[target.String()], hc)
	}
	if jar != nil {
		for raw, list := range byURL {
			u, _ := url.Parse(raw)
			jar.SetCookies(u, list)
		}
	}

	client := &http.Client{Timeout: m.opts.HTTPTimeout, Transport: m.transport}
	if jar != nil {
		client.Jar = jar
	}
	return client
}

func (m *Manager) replaceHot(d browser.Driver) {
	m.stateMu.Lock()
	old := m.hot
	m.hot = d
	m.stateMu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			m.warn("close previous login browser", "error", err)
		}
	}
}

func (m *Manager) setState(s State) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
}

func hasTokens(t domain.StorageTokens) bool {
	return len(t.LocalStorage) > 0 || len(t.SessionStorage) > 0
}

func copyTokens(t domain.StorageTokens) domain.StorageTokens {
	out := domain.StorageTokens{}
	if t.LocalStorage != nil {
		out.LocalStorage = make(map[string]string, len(t.LocalStorage))
		for k, v := range t.LocalStorage {
			out.LocalStorage[k] = v
		}
	}
	if t.SessionStorage != nil {
		out.SessionStorage = make(map[string]string, len(t.SessionStorage))
		for k, v := range t.SessionStorage {
			out.SessionStorage[k] = v
		}
	}
	return out
}

func (m *Manager) info(msg string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Info(msg, args...)
	}
}

func (m *Manager) warn(msg string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}

func (m *Manager) debug(msg string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
