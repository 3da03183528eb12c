package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ArchiveExtractor/internal/browser"
	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/selector"
)

const (
	laplProxySuffix  = "lapl.idm.oclc.org"
	laplLoginMarker  = "login.lapl.idm.oclc.org"
	newsBankReferer  = "https://infoweb-newsbank-com.lapl.idm.oclc.org/"
	minHeadlineChars = 5
)

var (
	newsBankHosts = []string{"infoweb-newsbank", "newsbank", "access-world-news", "world-news"}
	proQuestHosts = []string{"search-proquest", "proquest", "hnpla", "latimes"}

	bylinePrefix  = regexp.MustCompile(`(?i)^by\s+`)
	shortDateExpr = regexp.MustCompile(`\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{4}`)
)

var (
	newsBankHeadline = selector.Field{
		Selectors: []string{".article-title", ".headline", "h1", ".title", ".story-headline"},
		Sentinel:  domain.UnknownHeadline,
	}
	newsBankDate = selector.Field{
		Selectors: []string{".publication-date", ".pub-date", ".date", ".article-date", "time"},
		Sentinel:  domain.UnknownDate,
	}
	newsBankAuthor = selector.Field{
		Selectors: []string{".author", ".byline", ".writer", ".contributor"},
		Sentinel:  domain.UnknownAuthor,
	}
	newsBankContent = []string{".article-text", ".article-body", ".content", ".story-text", "#story-body"}

	proQuestHeadline = selector.Field{
		Selectors: []string{
			".documentTitle", ".truncatedDocumentTitle", "#documentTitle", "h1.documentTitle",
			"h1.truncatedDocumentTitle", ".titleLink", ".docTitle", "h1", ".title", ".headline", ".article-title",
		},
		Sentinel: domain.UnknownHeadline,
	}
	proQuestDate = selector.Field{
		Selectors: []string{".pubDate", ".publication-date", ".date", ".pub-date", "time"},
		Sentinel:  domain.UnknownDate,
	}
	proQuestPublication = selector.Field{
		Selectors: []string{".newspaperArticle strong"},
		Sentinel:  domain.UnknownNewspaper,
	}
	proQuestAuthor = selector.Field{
		Selectors: []string{
			".author-name", ".truncatedAuthor .author-name", ".author", ".byline",
			".docAuthor", ".contributor", ".scholUnivAuthors .author-name",
		},
		Sentinel: domain.UnknownAuthor,
	}
	proQuestContent = []string{
		`text[htmlcontent="true"]`, ".display_record_text_copy text", "#fulltext_field_MSTAR text",
		"text[wordcount]", ".docFullText", ".article-content", ".content", ".docText", ".full-text",
	}
	proQuestDocView = []string{".docview-header", "#docview-contents-wrapper", ".docView"}
)

// Variant names the database behind a LAPL proxy URL.
type Variant string

const (
	VariantNone     Variant = ""
	VariantNewsBank Variant = "newsbank"
	VariantProQuest Variant = "proquest"
)

// ClassifyLAPL tells NewsBank and ProQuest URLs apart by host.
func ClassifyLAPL(rawURL string) Variant {
	host := hostOf(rawURL)
	if host == "" {
		return VariantNone
	}
	proxied := strings.Contains(host, laplProxySuffix)
	if proxied {
		if _, ok := containsAny(host, newsBankHosts); ok {
			return VariantNewsBank
		}
		if _, ok := containsAny(host, proQuestHosts); ok {
			return VariantProQuest
		}
	}
	lower := strings.ToLower(rawURL)
	if strings.Contains(host, "proquest.com") && (strings.Contains(lower, "docview") || strings.Contains(lower, "usnews")) {
		return VariantProQuest
	}
	return VariantNone
}

// LAPL extracts full-text articles from NewsBank and ProQuest through the library proxy.
type LAPL struct {
	logger *slog.Logger
}

var _ Extractor = (*LAPL)(nil)

// NewLAPL wires the extractor.
func NewLAPL(logger *slog.Logger) *LAPL {
	if logger != nil {
		logger = logger.With("extractor", domain.SourceLAPL)
	}
	return &LAPL{logger: logger}
}

func (l *LAPL) Source() domain.SourceID {
	return domain.SourceLAPL
}

func (l *LAPL) Supports(rawURL string) bool {
	return ClassifyLAPL(rawURL) != VariantNone
}

func (l *LAPL) Extract(ctx context.Context, req domain.ExtractionRequest, sess Session) (domain.Success, error) {
	switch ClassifyLAPL(req.URL) {
	case VariantNewsBank:
		return l.newsBank(ctx, req, sess)
	case VariantProQuest:
		return l.proQuest(ctx, req, sess)
	default:
		return domain.Success{}, domain.NewExtractionError(domain.KindValidationError, domain.StageFetch,
			fmt.Errorf("%s is neither a NewsBank nor a ProQuest url", req.URL))
	}
}

func (l *LAPL) newsBank(ctx context.Context, req domain.ExtractionRequest, sess Session) (domain.Success, error) {
	p, err := l.fetch(ctx, req.URL, newsBankReferer, sess)
	if err != nil {
		return domain.Success{}, err
	}

	root := p.doc.Selection
	article := domain.Article{Source: domain.SourceLAPL, URL: req.URL, Newspaper: "NewsBank via LAPL"}
	article.Headline = headline(root, newsBankHeadline)
	article.Date, _ = newsBankDate.Extract(root)
	article.Author = byline(root, newsBankAuthor)

	body, ok := contentBlock(root, "p, div", 20, 20, newsBankContent...)
	if !ok {
		body, ok = looseParagraphs(root, 40)
	}
	if !ok {
		return domain.Success{}, noContent("no article text on NewsBank page %s", req.URL)
	}
	article.BodyText, article.BodyMarkdown = body.text, body.markdown
	l.debug("newsbank article parsed", "url", req.URL, "content", body.matched)
	return domain.Success{Article: article, Method: "http"}, nil
}

func (l *LAPL) proQuest(ctx context.Context, req domain.ExtractionRequest, sess Session) (domain.Success, error) {
	referer := ""
	if host := hostOf(req.URL); host != "" {
		referer = "https://" + host + "/"
	}
	p, err := l.fetch(ctx, req.URL, referer, sess)
	if err != nil {
		return domain.Success{}, err
	}

	article, body, found := parseProQuest(p.doc.Selection, req.URL)
	hasDocView := selector.Exists(p.doc.Selection, proQuestDocView...)
	if article.Headline == domain.UnknownHeadline || (!found && !hasDocView) {
		l.debug("proquest document view missing, escalating", "url", req.URL, "docview", hasDocView)
		return l.proQuestBrowser(ctx, req, sess)
	}
	if !found {
		return domain.Success{}, noContent("no article text on ProQuest page %s", req.URL)
	}
	article.BodyText, article.BodyMarkdown = body.text, body.markdown
	return domain.Success{Article: article, Method: "http"}, nil
}

func (l *LAPL) proQuestBrowser(ctx context.Context, req domain.ExtractionRequest, sess Session) (domain.Success, error) {
	d, err := sess.AcquireDriver(ctx)
	if err != nil {
		return domain.Success{}, domain.NewExtractionError(domain.KindUnexpected, domain.StageFetch, err)
	}
	defer d.Close()

	if err := d.Navigate(ctx, req.URL); err != nil {
		return domain.Success{}, fetchFailure("navigate", err)
	}
	if loc, _ := d.Location(ctx); strings.Contains(strings.ToLower(loc), laplLoginMarker) {
		return domain.Success{}, authFailure("redirected to LAPL login from %s", req.URL)
	}
	if err := d.WaitReady(ctx, browser.CSS(".documentTitle, h1")); err != nil {
		l.debug("proquest headline did not appear", "url", req.URL, "error", err)
	}

	markup, err := d.HTML(ctx)
	if err != nil {
		return domain.Success{}, fetchFailure("read rendered page", err)
	}
	doc, err := parseHTML(markup)
	if err != nil {
		return domain.Success{}, err
	}
	article, body, found := parseProQuest(doc.Selection, req.URL)
	if !found {
		return domain.Success{}, noContent("no article text on rendered ProQuest page %s", req.URL)
	}
	article.BodyText, article.BodyMarkdown = body.text, body.markdown
	return domain.Success{Article: article, Method: "browser"}, nil
}

func parseProQuest(root *goquery.Selection, pageURL string) (domain.Article, block, bool) {
	article := domain.Article{Source: domain.SourceLAPL, URL: pageURL}
	article.Headline = headline(root, proQuestHeadline)
	article.Author = byline(root, proQuestAuthor)
	article.Newspaper, _ = proQuestPublication.Extract(root)
	article.Date, _ = proQuestDate.Extract(root, selector.Lookup[string]{
		Name: "newspaperArticle",
		Find: func() (string, bool) {
			m := shortDateExpr.FindString(root.Find(".newspaperArticle").First().Text())
			return m, m != ""
		},
	})

	body, ok := contentBlock(root, "p", 20, 100, proQuestContent...)
	if !ok {
		body, ok = contentBlock(root, "p", 40, 1<<30, "#fullTextZone")
	}
	if !ok {
		body, ok = looseParagraphs(root, 40)
	}
	return article, body, ok
}

func (l *LAPL) fetch(ctx context.Context, pageURL, referer string, sess Session) (page, error) {
	view := sess.Session()
	p, err := fetchDocument(ctx, view, pageURL, referer)
	if strings.Contains(strings.ToLower(p.finalURL), laplLoginMarker) {
		return page{}, authFailure("redirected to LAPL login from %s", pageURL)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && (statusErr.Status == 401 || statusErr.Status == 403) {
		return page{}, authFailure("%w", statusErr)
	}
	if err != nil {
		return page{}, err
	}
	return p, nil
}

func headline(root *goquery.Selection, f selector.Field) string {
	if v, _, ok := selector.First(minLength(minHeadlineChars, f.Lookups(root))...); ok {
		return v
	}
	return f.Sentinel
}

func byline(root *goquery.Selection, f selector.Field) string {
	v, matched := f.Extract(root)
	if matched == "" {
		return v
	}
	if cleaned := strings.TrimSpace(bylinePrefix.ReplaceAllString(v, "")); cleaned != "" {
		return cleaned
	}
	return f.Sentinel
}

func (l *LAPL) debug(msg string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}
