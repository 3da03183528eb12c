package extractor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ArchiveExtractor/internal/browser"
	"ArchiveExtractor/internal/browser/browsertest"
	"ArchiveExtractor/internal/domain"
)

const archivePageURL = "https://access-newspaperarchive-com.lapl.idm.oclc.org/us/california/marysville/marysville-appeal-democrat/2014/12-12/page-10"

const archivePageHTML = `
<html><body>
  <h1 class="title">Appeal-Democrat page 10</h1>
  <div class="newspaper">Marysville Appeal-Democrat</div>
  <div class="article-text"><p>Local wrestlers advance to state finals.</p></div>
</body></html>`

func archiveDriver(onSave func(d *browsertest.Driver)) func() *browsertest.Driver {
	return func() *browsertest.Driver {
		d := &browsertest.Driver{Pages: map[string]browsertest.Page{
			archivePageURL: {
				HTML:     archivePageHTML,
				Elements: []string{".btn-flsave", `a[onclick="OpenJPGImagePopup()"]`, "#SaveImagebtn"},
				Hidden:   []string{"#save_option"},
			},
		}}
		d.OnClick = func(d *browsertest.Driver, query string) {
			switch query {
			case ".btn-flsave":
				d.Reveal("#save_option")
			case "#SaveImagebtn":
				if onSave != nil {
					onSave(d)
				}
			}
		}
		return d
	}
}

func fastDownloads() DownloadOptions {
	return DownloadOptions{Window: 300 * time.Millisecond, Interval: 20 * time.Millisecond, StepTimeout: time.Second}
}

func TestNewspaperArchiveCapturesDownload(t *testing.T) {
	t.Parallel()

	page := bytes.Repeat([]byte{0xff}, 4096)
	sess := newFakeSession(nil, archiveDriver(func(d *browsertest.Driver) {
		time.AfterFunc(50*time.Millisecond, func() {
			d.Capture(browser.CapturedResponse{
				URL:                "https://access-newspaperarchive-com.lapl.idm.oclc.org/download/page-10.jpg",
				Status:             200,
				ContentType:        "image/jpeg",
				ContentDisposition: `attachment; filename="page-10.jpg"`,
				Body:               page,
			})
		})
	}))

	got, err := NewNewspaperArchive(fastDownloads(), nil).Extract(context.Background(), domain.ExtractionRequest{URL: archivePageURL}, sess)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got.Method != "download" || len(got.Files) != 1 {
		t.Fatalf("unexpected method/files: %s %d", got.Method, len(got.Files))
	}
	if got.Image == nil || got.Image.Size() != len(page) || !strings.HasSuffix(got.Image.Filename, ".jpg") {
		t.Fatalf("unexpected image: %+v", got.Image)
	}
	a := got.Article
	if a.Headline != "Appeal-Democrat page 10" || a.Newspaper != "Marysville Appeal-Democrat" {
		t.Fatalf("unexpected metadata: %+v", a)
	}
	if a.Date != "2014/12/12" {
		t.Fatalf("unexpected date: %q", a.Date)
	}

	drivers := sess.launcher.Launched()
	if len(drivers) != 1 {
		t.Fatalf("expected one driver, got %d", len(drivers))
	}
	clicks := drivers[0].Clicks()
	want := []string{".btn-flsave", `a[onclick="OpenJPGImagePopup()"]`, "#SaveImagebtn"}
	if strings.Join(clicks, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected click sequence: %v", clicks)
	}
	if !drivers[0].Closed() {
		t.Fatalf("driver not closed")
	}
}

func TestNewspaperArchiveReadsDownloadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sess := newFakeSession(nil, func() *browsertest.Driver {
		d := archiveDriver(func(d *browsertest.Driver) {
			os.WriteFile(filepath.Join(dir, "page.crdownload"), []byte("partial"), 0o600)
			os.WriteFile(filepath.Join(dir, "page-10.pdf"), []byte("%PDF-1.4 scan"), 0o600)
		})()
		d.Dir = dir
		return d
	})

	got, err := NewNewspaperArchive(fastDownloads(), nil).Extract(context.Background(), domain.ExtractionRequest{URL: archivePageURL}, sess)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got.Files) != 1 || got.Files[0].ContentType != "application/pdf" {
		t.Fatalf("expected one pdf, got %+v", got.Files)
	}
	if !strings.HasSuffix(got.Files[0].Filename, ".pdf") {
		t.Fatalf("unexpected filename: %s", got.Files[0].Filename)
	}
}

func TestNewspaperArchiveLargeImageFallback(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(nil, archiveDriver(func(d *browsertest.Driver) {
		d.Capture(browser.CapturedResponse{URL: "https://cdn.example.com/pages/10.jpg", Status: 200, ContentType: "image/jpeg", Body: make([]byte, 60_000)})
		d.Capture(browser.CapturedResponse{URL: "https://cdn.example.com/pages/10-big.png", Status: 200, ContentType: "image/png", Body: make([]byte, 90_000)})
		d.Capture(browser.CapturedResponse{URL: "https://cdn.example.com/thumb/10.jpg", Status: 200, ContentType: "image/jpeg", Body: make([]byte, 200_000)})
	}))

	opts := fastDownloads()
	opts.Window = 60 * time.Millisecond
	got, err := NewNewspaperArchive(opts, nil).Extract(context.Background(), domain.ExtractionRequest{URL: archivePageURL}, sess)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got.Method != "download_fallback" || len(got.Files) != 2 {
		t.Fatalf("unexpected method/files: %s %d", got.Method, len(got.Files))
	}
	if got.Files[0].Size() != 90_000 || got.Files[1].Size() != 60_000 {
		t.Fatalf("files not sorted largest first: %d %d", got.Files[0].Size(), got.Files[1].Size())
	}
	if got.Files[0].Filename == got.Files[1].Filename || !strings.HasSuffix(got.Files[1].Filename, "_2.jpg") {
		t.Fatalf("unexpected filenames: %s %s", got.Files[0].Filename, got.Files[1].Filename)
	}
}

func TestNewspaperArchiveNothingCaptured(t *testing.T) {
	t.Parallel()

	opts := fastDownloads()
	opts.Window = 40 * time.Millisecond
	sess := newFakeSession(nil, archiveDriver(nil))

	_, err := NewNewspaperArchive(opts, nil).Extract(context.Background(), domain.ExtractionRequest{URL: archivePageURL}, sess)
	if kindOf(err) != domain.KindDownloadNotCaptured {
		t.Fatalf("expected download not captured, got %v", err)
	}
	if domain.Classify(err).Retryable() {
		t.Fatalf("download window failures must not be retried")
	}
}

func TestNewspaperArchiveLoginRedirect(t *testing.T) {
	t.Parallel()

	login := "https://login.lapl.idm.oclc.org/login?qurl=page-10"
	sess := newFakeSession(nil, func() *browsertest.Driver {
		return &browsertest.Driver{Pages: map[string]browsertest.Page{
			archivePageURL: {RedirectTo: login},
			login:          {HTML: "<html><body>Enter your library card</body></html>"},
		}}
	})

	_, err := NewNewspaperArchive(fastDownloads(), nil).Extract(context.Background(), domain.ExtractionRequest{URL: archivePageURL}, sess)
	if kindOf(err) != domain.KindAuthenticationFailure {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestNewspaperArchiveMissingSaveButton(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(nil, func() *browsertest.Driver {
		return &browsertest.Driver{Pages: map[string]browsertest.Page{archivePageURL: {HTML: archivePageHTML}}}
	})

	_, err := NewNewspaperArchive(fastDownloads(), nil).Extract(context.Background(), domain.ExtractionRequest{URL: archivePageURL}, sess)
	if kindOf(err) != domain.KindNavigationTimeout {
		t.Fatalf("expected navigation timeout, got %v", err)
	}
}

func TestLargeImages(t *testing.T) {
	t.Parallel()

	responses := []browser.CapturedResponse{
		{URL: "https://x.test/a.jpg", Status: 200, ContentType: "image/jpeg", Body: make([]byte, 50_001)},
		{URL: "https://x.test/full/b.jpg", Status: 200, ContentType: "image/jpeg", Body: make([]byte, 99_000)},
		{URL: "https://x.test/original/c.jpg", Status: 200, ContentType: "image/jpeg", Body: make([]byte, 100_001)},
		{URL: "https://x.test/preview/d.jpg", Status: 200, ContentType: "image/jpeg", Body: make([]byte, 500_000)},
		{URL: "https://x.test/e.jpg", Status: 404, ContentType: "image/jpeg", Body: make([]byte, 500_000)},
		{URL: "https://x.test/f.js", Status: 200, ContentType: "application/javascript", Body: make([]byte, 500_000)},
	}
	got := LargeImages(responses)
	if len(got) != 2 || got[0].SourceURL != "https://x.test/a.jpg" || got[1].SourceURL != "https://x.test/original/c.jpg" {
		t.Fatalf("unexpected selection: %+v", got)
	}
}
