package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"ArchiveExtractor/internal/domain"
)

// DefaultUserAgent mimics a desktop Chrome; archive sites serve degraded pages to bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	maxCapturedBody  = 50 << 20
	bodyFetchTimeout = 10 * time.Second
)

// ChromeOptions configures launched Chrome instances.
type ChromeOptions struct {
	Headless        bool
	ExecPath        string
	UserAgent       string
	WindowWidth     int
	WindowHeight    int
	PageLoadTimeout time.Duration
	ElementTimeout  time.Duration
	DownloadRoot    string
}

func (o ChromeOptions) withDefaults() ChromeOptions {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		o.WindowWidth, o.WindowHeight = 1920, 1080
	}
	if o.PageLoadTimeout <= 0 {
		o.PageLoadTimeout = 30 * time.Second
	}
	if o.ElementTimeout <= 0 {
		o.ElementTimeout = 15 * time.Second
	}
	return o
}

// ChromeLauncher starts headless Chrome through chromedp.
type ChromeLauncher struct {
	opts   ChromeOptions
	logger *slog.Logger
}

var _ Launcher = (*ChromeLauncher)(nil)

// NewChromeLauncher wires launch options.
func NewChromeLauncher(opts ChromeOptions, logger *slog.Logger) *ChromeLauncher {
	return &ChromeLauncher{opts: opts.withDefaults(), logger: logger}
}

// Launch starts a browser with network interception and a private download directory.
func (l *ChromeLauncher) Launch(ctx context.Context) (Driver, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(l.opts.WindowWidth, l.opts.WindowHeight),
		chromedp.UserAgent(l.opts.UserAgent),
	)
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}

	if l.opts.DownloadRoot != "" {
		if err := os.MkdirAll(l.opts.DownloadRoot, 0o700); err != nil {
			return nil, fmt.Errorf("create download root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(l.opts.DownloadRoot, "download-")
	if err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	// The browser outlives the launching request; Close tears it down.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	d := &chromeDriver{
		ctx:         browserCtx,
		cancel:      func() { browserCancel(); allocCancel() },
		opts:        l.opts,
		downloadDir: dir,
		pending:     map[network.RequestID]pendingResponse{},
		logger:      l.logger,
	}
	chromedp.ListenTarget(browserCtx, d.onEvent)

	// The first Run allocates the browser and must use the undecorated context.
	watchdog := time.AfterFunc(l.opts.PageLoadTimeout, d.cancel)
	err = chromedp.Run(browserCtx,
		network.Enable(),
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
	)
	stopped := watchdog.Stop()
	if err != nil || !stopped {
		d.Close()
		if err == nil {
			err = context.DeadlineExceeded
		}
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	d.debug("chrome started", "download_dir", dir)
	return d, nil
}

type pendingResponse struct {
	url                string
	status             int
	contentType        string
	contentDisposition string
}

func (p pendingResponse) interesting() bool {
	if p.contentDisposition != "" {
		return true
	}
	ct := strings.ToLower(p.contentType)
	return strings.HasPrefix(ct, "image/") || strings.Contains(ct, "pdf")
}

type chromeDriver struct {
	ctx         context.Context
	cancel      func()
	opts        ChromeOptions
	downloadDir string
	logger      *slog.Logger

	mu       sync.Mutex
	pending  map[network.RequestID]pendingResponse
	captured []CapturedResponse
	fetches  sync.WaitGroup
	closed   bool
}

func (d *chromeDriver) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		p := pendingResponse{
			url:                e.Response.URL,
			status:             int(e.Response.Status),
			contentType:        headerValue(e.Response.Headers, "Content-Type"),
			contentDisposition: headerValue(e.Response.Headers, "Content-Disposition"),
		}
		if p.contentType == "" {
			p.contentType = e.Response.MimeType
		}
		d.mu.Lock()
		d.pending[e.RequestID] = p
		d.mu.Unlock()
	case *network.EventLoadingFinished:
		d.mu.Lock()
		p, ok := d.pending[e.RequestID]
		delete(d.pending, e.RequestID)
		closed := d.closed
		if ok && !closed && p.interesting() {
			d.fetches.Add(1)
		}
		d.mu.Unlock()
		if !ok || closed || !p.interesting() {
			return
		}
		// Response bodies cannot be fetched from inside the listener.
		go d.fetchBody(e.RequestID, p)
	case *network.EventLoadingFailed:
		d.mu.Lock()
		delete(d.pending, e.RequestID)
		d.mu.Unlock()
	}
}

func (d *chromeDriver) fetchBody(id network.RequestID, p pendingResponse) {
	defer d.fetches.Done()

	ctx, cancel := context.WithTimeout(d.ctx, bodyFetchTimeout)
	defer cancel()

	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		d.debug("response body unavailable", "url", truncate(p.url, 120), "error", err)
		return
	}
	if len(body) > maxCapturedBody {
		body = body[:maxCapturedBody]
	}

	d.mu.Lock()
	d.captured = append(d.captured, CapturedResponse{
		URL:                p.url,
		Status:             p.status,
		ContentType:        p.contentType,
		ContentDisposition: p.contentDisposition,
		Body:               body,
	})
	d.mu.Unlock()
}

func headerValue(headers network.Headers, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			if s, ok := v.(string); ok {
				return s
			}
			return fmt.Sprint(v)
		}
	}
	return ""
}

func (d *chromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

func queryOptions(loc Locator) (string, []chromedp.QueryOption) {
	switch loc.By {
	case ByXPath:
		return loc.Value, []chromedp.QueryOption{chromedp.BySearch}
	case ByID:
		return loc.Value, []chromedp.QueryOption{chromedp.ByID}
	default:
		return loc.Query(), []chromedp.QueryOption{chromedp.ByQuery}
	}
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, d.opts.PageLoadTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (d *chromeDriver) WaitReady(ctx context.Context, loc Locator) error {
	sel, opts := queryOptions(loc)
	if err := d.run(ctx, d.opts.ElementTimeout, chromedp.WaitReady(sel, opts...)); err != nil {
		return fmt.Errorf("wait ready %s: %w", loc, err)
	}
	return nil
}

func (d *chromeDriver) WaitVisible(ctx context.Context, loc Locator) error {
	sel, opts := queryOptions(loc)
	if err := d.run(ctx, d.opts.ElementTimeout, chromedp.WaitVisible(sel, opts...)); err != nil {
		return fmt.Errorf("wait visible %s: %w", loc, err)
	}
	return nil
}

func (d *chromeDriver) WaitClickable(ctx context.Context, loc Locator) error {
	sel, opts := queryOptions(loc)
	err := d.run(ctx, d.opts.ElementTimeout,
		chromedp.WaitVisible(sel, opts...),
		chromedp.WaitEnabled(sel, opts...),
	)
	if err != nil {
		return fmt.Errorf("wait clickable %s: %w", loc, err)
	}
	return nil
}

func (d *chromeDriver) Exists(ctx context.Context, loc Locator) (bool, error) {
	sel, opts := queryOptions(loc)
	var nodes []*cdp.Node
	opts = append(opts, chromedp.AtLeast(0))
	if err := d.run(ctx, d.opts.ElementTimeout, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return false, fmt.Errorf("query %s: %w", loc, err)
	}
	return len(nodes) > 0, nil
}

func (d *chromeDriver) Click(ctx context.Context, loc Locator) error {
	sel, opts := queryOptions(loc)
	opts = append(opts, chromedp.NodeVisible)
	if err := d.run(ctx, d.opts.ElementTimeout, chromedp.Click(sel, opts...)); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

func (d *chromeDriver) SendKeys(ctx context.Context, loc Locator, text string) error {
	sel, opts := queryOptions(loc)
	err := d.run(ctx, d.opts.ElementTimeout,
		chromedp.Clear(sel, opts...),
		chromedp.SendKeys(sel, text, opts...),
	)
	if err != nil {
		return fmt.Errorf("type into %s: %w", loc, err)
	}
	return nil
}

func (d *chromeDriver) Location(ctx context.Context) (string, error) {
	var loc string
	err := d.run(ctx, d.opts.ElementTimeout, chromedp.Location(&loc))
	return loc, err
}

func (d *chromeDriver) Title(ctx context.Context) (string, error) {
	var title string
	err := d.run(ctx, d.opts.ElementTimeout, chromedp.Title(&title))
	return title, err
}

func (d *chromeDriver) HTML(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, d.opts.ElementTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (d *chromeDriver) Evaluate(ctx context.Context, script string, out interface{}) error {
	return d.run(ctx, d.opts.ElementTimeout, chromedp.Evaluate(script, out))
}

func (d *chromeDriver) Cookies(ctx context.Context) ([]domain.Cookie, error) {
	var raw []*network.Cookie
	err := d.run(ctx, d.opts.ElementTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	cookies := make([]domain.Cookie, 0, len(raw))
	for _, c := range raw {
		cookie := domain.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0)
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func (d *chromeDriver) SetCookies(ctx context.Context, cookies []domain.Cookie) error {
	return d.run(ctx, d.opts.ElementTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			path := c.Path
			if path == "" {
				path = "/"
			}
			params := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if !c.Expires.IsZero() {
				expires := cdp.TimeSinceEpoch(c.Expires)
				params = params.WithExpires(&expires)
			}
			if err := params.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

const (
	readStorageScript  = `(function(store){var out={};for(var i=0;i<store.length;i++){var k=store.key(i);out[k]=store.getItem(k);}return out;})(window.%s)`
	writeStorageScript = `(function(local,session){for(var k in local){window.localStorage.setItem(k,local[k]);}for(var k in session){window.sessionStorage.setItem(k,session[k]);}return true;})(%s,%s)`
)

func (d *chromeDriver) Storage(ctx context.Context) (domain.StorageTokens, error) {
	tokens := domain.StorageTokens{LocalStorage: map[string]string{}, SessionStorage: map[string]string{}}
	err := d.run(ctx, d.opts.ElementTimeout,
		chromedp.Evaluate(fmt.Sprintf(readStorageScript, "localStorage"), &tokens.LocalStorage),
		chromedp.Evaluate(fmt.Sprintf(readStorageScript, "sessionStorage"), &tokens.SessionStorage),
	)
	if err != nil {
		return domain.StorageTokens{}, fmt.Errorf("read storage: %w", err)
	}
	return tokens, nil
}

func (d *chromeDriver) RestoreStorage(ctx context.Context, tokens domain.StorageTokens) error {
	if len(tokens.LocalStorage) == 0 && len(tokens.SessionStorage) == 0 {
		return nil
	}
	local, err := json.Marshal(nonNil(tokens.LocalStorage))
	if err != nil {
		return err
	}
	session, err := json.Marshal(nonNil(tokens.SessionStorage))
	if err != nil {
		return err
	}
	var ok bool
	if err := d.run(ctx, d.opts.ElementTimeout, chromedp.Evaluate(fmt.Sprintf(writeStorageScript, local, session), &ok)); err != nil {
		return fmt.Errorf("restore storage: %w", err)
	}
	return nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func (d *chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, d.opts.PageLoadTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (d *chromeDriver) Responses() []CapturedResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]CapturedResponse, len(d.captured))
	copy(out, d.captured)
	return out
}

func (d *chromeDriver) DownloadDir() string {
	return d.downloadDir
}

func (d *chromeDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.fetches.Wait()
	if err := os.RemoveAll(d.downloadDir); err != nil {
		return fmt.Errorf("remove download dir: %w", err)
	}
	d.debug("chrome closed")
	return nil
}

func (d *chromeDriver) debug(msg string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
