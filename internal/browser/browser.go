package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ArchiveExtractor/internal/domain"
)

// ErrElementNotFound is returned when no locator in a chain matches.
var ErrElementNotFound = errors.New("element not found")

// Strategy selects how a Locator value is interpreted.
type Strategy string

const (
	ByCSS   Strategy = "css"
	ByID    Strategy = "id"
	ByName  Strategy = "name"
	ByXPath Strategy = "xpath"
)

// Locator addresses one element on a page.
type Locator struct {
	By    Strategy
	Value string
}

// CSS builds a css-selector locator.
func CSS(selector string) Locator { return Locator{By: ByCSS, Value: selector} }

// ID builds an element-id locator.
func ID(id string) Locator { return Locator{By: ByID, Value: id} }

// Name builds a form-field name locator.
func Name(name string) Locator { return Locator{By: ByName, Value: name} }

// XPath builds an xpath locator.
func XPath(expr string) Locator { return Locator{By: ByXPath, Value: expr} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.By, l.Value)
}

// Query converts the locator to a css query where possible. XPath locators return their expression.
func (l Locator) Query() string {
	switch l.By {
	case ByID:
		return "#" + l.Value
	case ByName:
		return fmt.Sprintf(`[name=%q]`, l.Value)
	default:
		return l.Value
	}
}

// CapturedResponse is a network response intercepted by the driver.
type CapturedResponse struct {
	URL                string
	Status             int
	ContentType        string
	ContentDisposition string
	Body               []byte
}

// IsDownload reports whether the response was served as a file attachment.
func (c CapturedResponse) IsDownload() bool {
	return c.ContentDisposition != ""
}

// IsImage reports whether the response carries an image.
func (c CapturedResponse) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(c.ContentType), "image/")
}

// Driver is one live browser. A driver is owned by exactly one task at a time.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, loc Locator) error
	WaitVisible(ctx context.Context, loc Locator) error
	WaitClickable(ctx context.Context, loc Locator) error
	Exists(ctx context.Context, loc Locator) (bool, error)
	Click(ctx context.Context, loc Locator) error
	SendKeys(ctx context.Context, loc Locator, text string) error
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, script string, out interface{}) error
	Cookies(ctx context.Context) ([]domain.Cookie, error)
	SetCookies(ctx context.Context, cookies []domain.Cookie) error
	Storage(ctx context.Context) (domain.StorageTokens, error)
	RestoreStorage(ctx context.Context, tokens domain.StorageTokens) error
	Screenshot(ctx context.Context) ([]byte, error)
	Responses() []CapturedResponse
	DownloadDir() string
	Close() error
}

// Launcher starts new exclusive drivers.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}

// FirstPresent walks the chain in order and returns the first locator that exists on the page.
func FirstPresent(ctx context.Context, d Driver, chain []Locator) (Locator, error) {
	for _, loc := range chain {
		ok, err := d.Exists(ctx, loc)
		if err != nil {
			if ctx.Err() != nil {
				return Locator{}, ctx.Err()
			}
			continue
		}
		if ok {
			return loc, nil
		}
	}
	return Locator{}, ErrElementNotFound
}
