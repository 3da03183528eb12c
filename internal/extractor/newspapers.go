package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ArchiveExtractor/internal/browser"
	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/imaging"
	"ArchiveExtractor/internal/selector"
)

const newspapersBaseURL = "https://www.newspapers.com"

const zoomScript = `document.body.style.zoom='0.7'; true`

var urlDateExpr = regexp.MustCompile(`(\d{4}[-/]\d{1,2}[-/]\d{1,2})`)

var (
	newspapersHeadline = selector.Field{
		Name:      "headline",
		Selectors: []string{".article-title", ".clipping-title", "h1.title", "h1"},
		Sentinel:  domain.UnknownHeadline,
	}
	newspapersDate = selector.Field{
		Name:      "date",
		Selectors: []string{".pub-date", ".article-date", ".date", ".newspaper-date"},
		Sentinel:  domain.UnknownDate,
	}
	newspapersTitle = selector.Field{
		Name:      "newspaper",
		Selectors: []string{".newspaper-title", ".publication-name", ".source-name"},
		Sentinel:  domain.UnknownNewspaper,
	}
	newspapersPage = selector.Field{
		Name:      "page",
		Selectors: []string{".page-number", ".article-page", ".page"},
	}
	newspapersImage = selector.Field{
		Name:      "image",
		Selectors: []string{".article-image img", ".clipping-image img", ".newspaper-page-image img", ".main-image img"},
		Attr:      "src",
	}
	newspapersContent = []string{".ocr-text", ".article-text", ".clipping-text", "#article-content"}

	newspapersPaywall = []string{"please log in to continue", "subscribe now", "start free trial", "sign in to view"}
	newspapersLogin   = []string{"/signin", "/login"}
)

// NewspapersOptions tune the screenshot path.
type NewspapersOptions struct {
	Margins  imaging.Margins
	MaxWidth int
	// Settle is the pause after the page body appears, for late-rendering viewers.
	Settle time.Duration
}

// Newspapers extracts clippings from Newspapers.com: plain HTTP first, a browser screenshot when
// the page is paywalled or carries neither text nor an image.
type Newspapers struct {
	opts   NewspapersOptions
	logger *slog.Logger
	now    func() time.Time
}

var _ Extractor = (*Newspapers)(nil)

// NewNewspapers wires the extractor.
func NewNewspapers(opts NewspapersOptions, logger *slog.Logger) *Newspapers {
	if opts.Margins == (imaging.Margins{}) {
		opts.Margins = imaging.ClippingMargins
	}
	if logger != nil {
		logger = logger.With("extractor", domain.SourceNewspapers)
	}
	return &Newspapers{opts: opts, logger: logger, now: time.Now}
}

func (n *Newspapers) Source() domain.SourceID {
	return domain.SourceNewspapers
}

func (n *Newspapers) Supports(rawURL string) bool {
	host := hostOf(rawURL)
	return host == "newspapers.com" || strings.HasSuffix(host, ".newspapers.com")
}

func (n *Newspapers) Extract(ctx context.Context, req domain.ExtractionRequest, sess Session) (domain.Success, error) {
	view := sess.Session()

	p, err := fetchDocument(ctx, view, req.URL, "")
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		n.debug("http path refused, escalating", "url", req.URL, "status", statusErr.Status)
	case err != nil:
		return domain.Success{}, err
	default:
		if reason, blocked := newspapersBlocked(p.finalURL, p.doc); blocked {
			n.debug("http path blocked, escalating", "url", req.URL, "reason", reason)
			break
		}
		article, body := parseNewspapers(p.doc.Selection, req.URL)
		if article.BodyText != "" || article.ImageURL != "" {
			article.BodyMarkdown = body.markdown
			return domain.Success{Article: article, Method: "http"}, nil
		}
		n.debug("http page had no text or image, escalating", "url", req.URL)
	}

	return n.viaBrowser(ctx, req, sess)
}

func (n *Newspapers) viaBrowser(ctx context.Context, req domain.ExtractionRequest, sess Session) (domain.Success, error) {
	d, err := sess.AcquireDriver(ctx)
	if err != nil {
		return domain.Success{}, domain.NewExtractionError(domain.KindUnexpected, domain.StageFetch, err)
	}
	defer d.Close()

	if err := d.Navigate(ctx, req.URL); err != nil {
		return domain.Success{}, fetchFailure("navigate", err)
	}
	if err := d.WaitReady(ctx, browser.CSS("body")); err != nil {
		return domain.Success{}, fetchFailure("wait for page body", err)
	}
	if err := sleepCtx(ctx, n.opts.Settle); err != nil {
		return domain.Success{}, err
	}

	location, _ := d.Location(ctx)
	markup, err := d.HTML(ctx)
	if err != nil {
		return domain.Success{}, fetchFailure("read rendered page", err)
	}
	doc, err := parseHTML(markup)
	if err != nil {
		return domain.Success{}, err
	}
	if reason, blocked := newspapersBlocked(location, doc); blocked {
		return domain.Success{}, authFailure("newspapers.com page is not accessible: %s", reason)
	}

	var zoomed bool
	if err := d.Evaluate(ctx, zoomScript, &zoomed); err != nil {
		n.debug("zoom out failed", "error", err)
	}

	shot, err := d.Screenshot(ctx)
	if err != nil {
		return domain.Success{}, domain.NewExtractionError(domain.KindNoContentFound, domain.StageDownload, fmt.Errorf("capture screenshot: %w", err))
	}
	cropped, err := imaging.CropPNG(shot, n.opts.Margins, n.opts.MaxWidth)
	if err != nil {
		return domain.Success{}, domain.NewExtractionError(domain.KindNoContentFound, domain.StageDownload, err)
	}
	n.debug("captured clipping", "url", req.URL, "original", cropped.Original, "final", cropped.Final)

	article, body := parseNewspapers(doc.Selection, req.URL)
	article.BodyMarkdown = body.markdown
	image := domain.BinaryFile{
		Filename:    domain.SuggestedFilename(req.URL, article.Headline, "png", n.now()),
		ContentType: "image/png",
		SourceURL:   req.URL,
		Data:        cropped.PNG,
	}
	return domain.Success{Article: article, Image: &image, Method: "browser_screenshot"}, nil
}

func newspapersBlocked(finalURL string, doc *goquery.Document) (string, bool) {
	if marker, ok := containsAny(finalURL, newspapersLogin); ok {
		return "redirected to " + marker, true
	}
	if marker, ok := containsAny(doc.Text(), newspapersPaywall); ok {
		return "paywall: " + marker, true
	}
	return "", false
}

func parseNewspapers(root *goquery.Selection, pageURL string) (domain.Article, block) {
	article := domain.Article{Source: domain.SourceNewspapers, URL: pageURL, Author: domain.UnknownAuthor}

	article.Headline, _ = newspapersHeadline.Extract(root, selector.Lookup[string]{
		Name: "title",
		Find: func() (string, bool) {
			title := strings.TrimSpace(strings.Split(root.Find("title").First().Text(), "|")[0])
			return title, title != ""
		},
	})
	article.Date, _ = newspapersDate.Extract(root, selector.Lookup[string]{
		Name: "url",
		Find: func() (string, bool) { return DateFromURL(pageURL) },
	})
	article.Newspaper, _ = newspapersTitle.Extract(root)
	article.Page, _ = newspapersPage.Extract(root)

	body, ok := contentBlock(root, "p", 0, 0, newspapersContent...)
	if !ok {
		if text, found := selector.Paragraphs(root, ".main-content", "#main-content"); found {
			body = block{text: text, markdown: text, matched: "main-content p"}
		}
	}
	article.BodyText = body.text

	image, _ := newspapersImage.Extract(root, selector.Lookup[string]{
		Name: "large-img",
		Find: func() (string, bool) { return largeImage(root, 300) },
	})
	if image != "" && strings.HasPrefix(image, "/") && !strings.HasPrefix(image, "//") {
		image = newspapersBaseURL + image
	}
	article.ImageURL = image
	return article, body
}

// DateFromURL finds a yyyy-mm-dd or yyyy/mm/dd date in a URL and returns it with slashes.
func DateFromURL(rawURL string) (string, bool) {
	m := urlDateExpr.FindString(rawURL)
	if m == "" {
		return "", false
	}
	return strings.ReplaceAll(m, "-", "/"), true
}

// largeImage returns the src of the first img whose declared width and height both exceed min.
func largeImage(root *goquery.Selection, min int) (string, bool) {
	var src string
	root.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		w, _ := strconv.Atoi(strings.TrimSuffix(img.AttrOr("width", ""), "px"))
		h, _ := strconv.Atoi(strings.TrimSuffix(img.AttrOr("height", ""), "px"))
		if w > min && h > min {
			if s := strings.TrimSpace(img.AttrOr("src", "")); s != "" {
				src = s
				return false
			}
		}
		return true
	})
	return src, src != ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (n *Newspapers) debug(msg string, args ...interface{}) {
	if n.logger != nil {
		n.logger.Debug(msg, args...)
	}
}
