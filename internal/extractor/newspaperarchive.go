package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ArchiveExtractor/internal/browser"
	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/selector"
)

var (
	saveButton   = browser.CSS(".btn-flsave")
	saveOptions  = browser.CSS("#save_option")
	jpgOption    = browser.CSS(`a[onclick="OpenJPGImagePopup()"]`)
	pdfOption    = browser.CSS(`a[onclick="OpenPDfImagePopup()"]`)
	confirmSave  = browser.CSS("#SaveImagebtn")
	fullSizeHint = []string{"download", "full", "original", "hi-res", "high", "large"}
	thumbHint    = []string{"thumb", "preview", "small", "mini", "icon"}

	archiveHeadline = selector.Field{
		Selectors: []string{".article-title", ".headline", "h1.title", ".entry-title"},
		Sentinel:  domain.UnknownHeadline,
	}
	archiveDate = selector.Field{
		Selectors: []string{".publication-date", ".pub-date", ".date", ".article-date"},
		Sentinel:  domain.UnknownDate,
	}
	archiveNewspaper = selector.Field{
		Selectors: []string{".newspaper-title", ".publication", ".source-name", ".newspaper"},
		Sentinel:  domain.UnknownNewspaper,
	}
	archiveContent = []string{".article-text", ".content", ".article-body", ".entry-content"}
)

const (
	fullSizeThreshold = 100_000
	imageThreshold    = 50_000
)

// DownloadOptions tune the click-to-download flow.
type DownloadOptions struct {
	Window      time.Duration
	Interval    time.Duration
	StepTimeout time.Duration
	// PDF selects the PDF save option instead of JPG.
	PDF bool
}

func (o DownloadOptions) withDefaults() DownloadOptions {
	if o.Window <= 0 {
		o.Window = 15 * time.Second
	}
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 10 * time.Second
	}
	return o
}

// NewspaperArchive saves page images through the viewer's save menu and captures the download.
type NewspaperArchive struct {
	opts   DownloadOptions
	logger *slog.Logger
	now    func() time.Time
}

var _ Extractor = (*NewspaperArchive)(nil)

// NewNewspaperArchive wires the extractor.
func NewNewspaperArchive(opts DownloadOptions, logger *slog.Logger) *NewspaperArchive {
	if logger != nil {
		logger = logger.With("extractor", domain.SourceNewspaperArchive)
	}
	return &NewspaperArchive{opts: opts.withDefaults(), logger: logger, now: time.Now}
}

func (n *NewspaperArchive) Source() domain.SourceID {
	return domain.SourceNewspaperArchive
}

func (n *NewspaperArchive) Supports(rawURL string) bool {
	return strings.Contains(hostOf(rawURL), "newspaperarchive")
}

func (n *NewspaperArchive) Extract(ctx context.Context, req domain.ExtractionRequest, sess Session) (domain.Success, error) {
	d, err := sess.AcquireDriver(ctx)
	if err != nil {
		return domain.Success{}, domain.NewExtractionError(domain.KindUnexpected, domain.StageFetch, err)
	}
	defer d.Close()

	if err := d.Navigate(ctx, req.URL); err != nil {
		return domain.Success{}, fetchFailure("navigate", err)
	}
	if loc, _ := d.Location(ctx); strings.Contains(strings.ToLower(loc), laplLoginMarker) {
		return domain.Success{}, authFailure("still on the LAPL login page after applying cookies: %s", loc)
	}

	option := jpgOption
	if n.opts.PDF {
		option = pdfOption
	}
	if err := n.step(ctx, d, "open save menu", saveButton, true); err != nil {
		return domain.Success{}, err
	}
	if err := n.step(ctx, d, "wait for save options", saveOptions, false); err != nil {
		return domain.Success{}, err
	}
	if err := n.step(ctx, d, "choose format", option, true); err != nil {
		return domain.Success{}, err
	}
	if err := n.step(ctx, d, "confirm save", confirmSave, true); err != nil {
		return domain.Success{}, err
	}

	method := "download"
	files, captured := browser.PollUntil(ctx, n.opts.Window, n.opts.Interval, func(context.Context) ([]domain.BinaryFile, bool) {
		files := downloads(d)
		return files, len(files) > 0
	})
	if !captured {
		if err := ctx.Err(); err != nil {
			return domain.Success{}, fetchFailure("wait for download", err)
		}
		files = LargeImages(d.Responses())
		method = "download_fallback"
		n.debug("no download within window, using large image fallback", "url", req.URL, "found", len(files))
	}
	if len(files) == 0 {
		return domain.Success{}, domain.NewExtractionError(domain.KindDownloadNotCaptured, domain.StageDownload,
			fmt.Errorf("no download captured within %s for %s", n.opts.Window, req.URL))
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].Size() > files[j].Size() })

	article := domain.Article{Source: domain.SourceNewspaperArchive, URL: req.URL, Author: domain.UnknownAuthor}
	if markup, err := d.HTML(ctx); err == nil {
		if doc, err := parseHTML(markup); err == nil {
			root := doc.Selection
			article.Headline, _ = archiveHeadline.Extract(root)
			article.Date, _ = archiveDate.Extract(root)
			article.Newspaper, _ = archiveNewspaper.Extract(root)
			if body, ok := contentBlock(root, "p", 0, 0, archiveContent...); ok {
				article.BodyText, article.BodyMarkdown = body.text, body.markdown
			}
		}
	}
	if article.Headline == "" {
		article.Headline = domain.UnknownHeadline
	}
	if article.Date == "" || article.Date == domain.UnknownDate {
		if date, ok := DateFromURL(req.URL); ok {
			article.Date = date
		}
	}

	stamp := n.now()
	for i := range files {
		ext := domain.ExtensionFor(files[i].ContentType)
		name := domain.SuggestedFilename(req.URL, article.Headline, ext, stamp)
		if i > 0 {
			name = fmt.Sprintf("%s_%d.%s", strings.TrimSuffix(name, "."+ext), i+1, ext)
		}
		files[i].Filename = name
	}
	primary := files[0]
	n.debug("captured download", "url", req.URL, "files", len(files), "bytes", primary.Size(), "method", method)
	return domain.Success{Article: article, Image: &primary, Files: files, Method: method}, nil
}

// step waits for loc within the step timeout and clicks it when click is set.
func (n *NewspaperArchive) step(ctx context.Context, d browser.Driver, what string, loc browser.Locator, click bool) error {
	stepCtx, cancel := context.WithTimeout(ctx, n.opts.StepTimeout)
	defer cancel()

	var err error
	if click {
		err = d.WaitClickable(stepCtx, loc)
		if err == nil {
			err = d.Click(stepCtx, loc)
		}
	} else {
		err = d.WaitVisible(stepCtx, loc)
	}
	if err != nil {
		return fetchFailure(fmt.Sprintf("%s (%s)", what, loc), err)
	}
	n.debug("download step done", "step", what)
	return nil
}

// downloads collects attachment responses of an image or PDF type, then files in the download directory.
func downloads(d browser.Driver) []domain.BinaryFile {
	var files []domain.BinaryFile
	for _, resp := range d.Responses() {
		if !resp.IsDownload() || len(resp.Body) == 0 {
			continue
		}
		if ext := domain.ExtensionFor(resp.ContentType); ext == "bin" {
			continue
		}
		files = append(files, domain.BinaryFile{ContentType: resp.ContentType, SourceURL: resp.URL, Data: resp.Body})
	}
	if len(files) > 0 {
		return files
	}
	return downloadDirFiles(d.DownloadDir())
}

func downloadDirFiles(dir string) []domain.BinaryFile {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []domain.BinaryFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		contentType := ""
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".pdf":
			contentType = "application/pdf"
		default:
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil || len(data) == 0 {
			continue
		}
		files = append(files, domain.BinaryFile{ContentType: contentType, SourceURL: "file://" + e.Name(), Data: data})
	}
	return files
}

// LargeImages picks image responses big enough to be page scans: over 100KB when the URL suggests
// a full-size image, over 50KB otherwise, never URLs that look like thumbnails.
func LargeImages(responses []browser.CapturedResponse) []domain.BinaryFile {
	var files []domain.BinaryFile
	for _, resp := range responses {
		if resp.Status != 200 || !resp.IsImage() {
			continue
		}
		if _, thumb := containsAny(resp.URL, thumbHint); thumb {
			continue
		}
		threshold := imageThreshold
		if _, full := containsAny(resp.URL, fullSizeHint); full {
			threshold = fullSizeThreshold
		}
		if len(resp.Body) <= threshold {
			continue
		}
		files = append(files, domain.BinaryFile{ContentType: resp.ContentType, SourceURL: resp.URL, Data: resp.Body})
	}
	return files
}

func (n *NewspaperArchive) debug(msg string, args ...interface{}) {
	if n.logger != nil {
		n.logger.Debug(msg, args...)
	}
}
