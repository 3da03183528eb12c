// Package browsertest provides a scripted in-memory browser driver for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"ArchiveExtractor/internal/browser"
	"ArchiveExtractor/internal/domain"
)

// Page is the canned content served for one URL.
type Page struct {
	Title string
	HTML  string
	// RedirectTo makes Navigate land on another URL.
	RedirectTo string
	// Elements present once the page is loaded, keyed by Locator.Query().
	Elements []string
	// Hidden elements exist but never become visible or clickable.
	Hidden []string
}

// Driver is a fake browser.Driver. Zero values are usable; fields may be set before use.
type Driver struct {
	mu sync.Mutex

	Pages       map[string]Page
	NavigateErr error
	Shot        []byte
	Dir         string
	// OnClick runs after each successful click, under no lock.
	OnClick func(d *Driver, query string)

	current  string
	revealed map[string]bool
	clicks   []string
	typed    map[string]string
	cookies  []domain.Cookie
	tokens   domain.StorageTokens
	captured []browser.CapturedResponse
	visits   []string
	closed   bool
}

var _ browser.Driver = (*Driver)(nil)

// NewDriver builds a fake with the given pages.
func NewDriver(pages map[string]Page) *Driver {
	return &Driver{Pages: pages}
}

// Reveal makes an element appear on the current page, e.g. a menu opened by a click.
func (d *Driver) Reveal(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.revealed == nil {
		d.revealed = map[string]bool{}
	}
	d.revealed[query] = true
}

// Redirect moves the driver to url as a form submission would, without recording a visit.
func (d *Driver) Redirect(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = url
	d.revealed = nil
}

// After runs fn once delay has passed, e.g. to land a login some polls after the submit click.
func (d *Driver) After(delay time.Duration, fn func(d *Driver)) {
	time.AfterFunc(delay, func() { fn(d) })
}

// Capture appends a network response as if the page had loaded it.
func (d *Driver) Capture(resp browser.CapturedResponse) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.captured = append(d.captured, resp)
}

// Clicks returns the clicked queries in order.
func (d *Driver) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

// Typed returns what was typed into each field.
func (d *Driver) Typed() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[string]string{}
	for k, v := range d.typed {
		out[k] = v
	}
	return out
}

// Visits returns every URL passed to Navigate.
func (d *Driver) Visits() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.visits...)
}

// SetStorage seeds local/session storage.
func (d *Driver) SetStorage(tokens domain.StorageTokens) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = tokens
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) page() (Page, bool) {
	p, ok := d.Pages[d.current]
	return p, ok
}

func (d *Driver) present(query string, needVisible bool) bool {
	if d.revealed[query] {
		return true
	}
	p, ok := d.page()
	if !ok {
		return false
	}
	for _, h := range p.Hidden {
		if h == query {
			return !needVisible
		}
	}
	for _, e := range p.Elements {
		if e == query {
			return true
		}
	}
	return false
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visits = append(d.visits, url)
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	d.current = url
	d.revealed = nil
	for i := 0; i < 5; i++ {
		p, ok := d.Pages[d.current]
		if !ok || p.RedirectTo == "" {
			break
		}
		d.current = p.RedirectTo
	}
	return nil
}

func (d *Driver) wait(ctx context.Context, loc browser.Locator, visible bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.present(loc.Query(), visible) {
		return fmt.Errorf("wait %s: %w", loc, context.DeadlineExceeded)
	}
	return nil
}

func (d *Driver) WaitReady(ctx context.Context, loc browser.Locator) error {
	return d.wait(ctx, loc, false)
}

func (d *Driver) WaitVisible(ctx context.Context, loc browser.Locator) error {
	return d.wait(ctx, loc, true)
}

func (d *Driver) WaitClickable(ctx context.Context, loc browser.Locator) error {
	return d.wait(ctx, loc, true)
}

func (d *Driver) Exists(ctx context.Context, loc browser.Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.present(loc.Query(), false), nil
}

func (d *Driver) Click(ctx context.Context, loc browser.Locator) error {
	if err := d.wait(ctx, loc, true); err != nil {
		return err
	}
	d.mu.Lock()
	d.clicks = append(d.clicks, loc.Query())
	hook := d.OnClick
	d.mu.Unlock()
	if hook != nil {
		hook(d, loc.Query())
	}
	return nil
}

func (d *Driver) SendKeys(ctx context.Context, loc browser.Locator, text string) error {
	if err := d.wait(ctx, loc, true); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.typed == nil {
		d.typed = map[string]string{}
	}
	d.typed[loc.Query()] = text
	return nil
}

func (d *Driver) Location(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, nil
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, _ := d.page()
	return p.Title, nil
}

func (d *Driver) HTML(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, _ := d.page()
	return p.HTML, nil
}

// Evaluate accepts any script and leaves out untouched unless it is a *bool, which is set to true.
func (d *Driver) Evaluate(ctx context.Context, script string, out interface{}) error {
	if b, ok := out.(*bool); ok {
		*b = true
	}
	return ctx.Err()
}

func (d *Driver) Cookies(ctx context.Context) ([]domain.Cookie, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Cookie(nil), d.cookies...), nil
}

func (d *Driver) SetCookies(ctx context.Context, cookies []domain.Cookie) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range cookies {
		replaced := false
		for i := range d.cookies {
			if d.cookies[i].Name == c.Name && d.cookies[i].Domain == c.Domain {
				d.cookies[i] = c
				replaced = true
			}
		}
		if !replaced {
			d.cookies = append(d.cookies, c)
		}
	}
	return nil
}

func (d *Driver) Storage(ctx context.Context) (domain.StorageTokens, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, err := json.Marshal(d.tokens)
	if err != nil {
		return domain.StorageTokens{}, err
	}
	var copied domain.StorageTokens
	err = json.Unmarshal(raw, &copied)
	return copied, err
}

func (d *Driver) RestoreStorage(ctx context.Context, tokens domain.StorageTokens) error {
	d.SetStorage(tokens)
	return nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Shot == nil {
		return nil, fmt.Errorf("no screenshot configured")
	}
	return d.Shot, nil
}

func (d *Driver) Responses() []browser.CapturedResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.CapturedResponse(nil), d.captured...)
}

func (d *Driver) DownloadDir() string {
	return d.Dir
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.Dir != "" {
		return os.RemoveAll(d.Dir)
	}
	return nil
}

// Launcher hands out drivers built by New and records them.
type Launcher struct {
	New func() *Driver
	Err error

	mu       sync.Mutex
	launched []*Driver
}

var _ browser.Launcher = (*Launcher)(nil)

// Launch returns the next fake driver.
func (l *Launcher) Launch(ctx context.Context) (browser.Driver, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	d := &Driver{}
	if l.New != nil {
		d = l.New()
	}
	l.mu.Lock()
	l.launched = append(l.launched, d)
	l.mu.Unlock()
	return d, nil
}

// Launched returns every driver handed out so far.
func (l *Launcher) Launched() []*Driver {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Driver(nil), l.launched...)
}
