package extractor

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/selector"
	"ArchiveExtractor/internal/session"
)

// StatusError is a non-200 response on the cheap HTTP path.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// page is a fetched and parsed document plus the URL it finally resolved to.
type page struct {
	doc      *goquery.Document
	finalURL string
}

func fetchDocument(ctx context.Context, view session.View, pageURL, referer string) (page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return page{}, domain.NewExtractionError(domain.KindValidationError, domain.StageFetch, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", view.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	client := view.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return page{}, fetchFailure("request document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return page{finalURL: resp.Request.URL.String()}, fetchFailure("fetch", &StatusError{URL: pageURL, Status: resp.StatusCode})
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return page{}, domain.NewExtractionError(domain.KindUnexpected, domain.StageParse, fmt.Errorf("parse document: %w", err))
	}
	return page{doc: doc, finalURL: resp.Request.URL.String()}, nil
}

func parseHTML(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, domain.NewExtractionError(domain.KindUnexpected, domain.StageParse, fmt.Errorf("parse rendered page: %w", err))
	}
	return doc, nil
}

// block is a body-text container found by a selector chain.
type block struct {
	text     string
	markdown string
	matched  string
}

// contentBlock returns the paragraphs (longer than minParagraph) of the first container that has any,
// or the container's whole text when it is longer than minWhole.
func contentBlock(root *goquery.Selection, paragraphTags string, minParagraph, minWhole int, selectors ...string) (block, bool) {
	for _, sel := range selectors {
		el := root.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if text := joinParagraphs(el.Find(paragraphTags), minParagraph); text != "" {
			return block{text: text, markdown: toMarkdown(el), matched: sel}, true
		}
		if text := selector.CleanText(el.Text()); len(text) > minWhole {
			return block{text: text, markdown: toMarkdown(el), matched: sel}, true
		}
	}
	return block{}, false
}

// looseParagraphs is the last-resort body: every p on the page longer than minLen.
func looseParagraphs(root *goquery.Selection, minLen int) (block, bool) {
	text := joinParagraphs(root.Find("p"), minLen)
	if text == "" {
		return block{}, false
	}
	return block{text: text, markdown: text, matched: "p"}, true
}

func joinParagraphs(sel *goquery.Selection, minLen int) string {
	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if text := selector.CleanText(s.Text()); len(text) > minLen {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

func toMarkdown(sel *goquery.Selection) string {
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	out, err := md.NewConverter("", true, nil).ConvertString(html)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// minLength wraps a lookup chain so that only values longer than n count as matches.
func minLength(n int, lookups []selector.Lookup[string]) []selector.Lookup[string] {
	out := make([]selector.Lookup[string], 0, len(lookups))
	for _, l := range lookups {
		l := l
		out = append(out, selector.Lookup[string]{Name: l.Name, Find: func() (string, bool) {
			v, ok := l.Find()
			return v, ok && len(v) > n
		}})
	}
	return out
}
