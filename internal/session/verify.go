package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"ArchiveExtractor/internal/browser"
	"ArchiveExtractor/internal/domain"
)

const maxProbeBody = 5 << 20

// ErrNoCredentials is returned when neither explicit credentials nor stored cookies exist.
var ErrNoCredentials = errors.New("no credentials available")

// Reason distinguishes authentication failures in logs and debug snapshots.
type Reason string

const (
	ReasonNoCredentials      Reason = "no_credentials"
	ReasonBrowser            Reason = "browser_unavailable"
	ReasonLoginFormNotFound  Reason = "login_form_not_found"
	ReasonSubmitNotFound     Reason = "submit_not_found"
	ReasonVerificationFailed Reason = "verification_failed"
	ReasonPremiumProbeFailed Reason = "premium_probe_failed"
)

// AuthError reports a failed initialize or refresh.
type AuthError struct {
	Source   domain.SourceID
	Reason   Reason
	Detail   string
	Snapshot string
	Err      error

	page *Verdict
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authenticate %s: %s", e.Source, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Verdict is the outcome of one probe.
type Verdict struct {
	OK     bool
	Reason string
	URL    string
	Title  string
	Markup string
}

// Evaluate applies the probe rules to a fetched page: a login redirect or any negative marker
// fails, and when positive markers are configured at least one must be present.
func Evaluate(p Probe, finalURL, markup string, loginMarkers []string) Verdict {
	v := Verdict{URL: finalURL, Markup: markup, Title: pageTitle(markup)}

	lowerURL := strings.ToLower(finalURL)
	for _, marker := range loginMarkers {
		if strings.Contains(lowerURL, strings.ToLower(marker)) {
			v.Reason = "redirected to login: " + marker
			return v
		}
	}

	page := strings.ToLower(markup)
	for _, neg := range p.Negative {
		if strings.Contains(page, strings.ToLower(neg)) {
			v.Reason = "negative indicator: " + neg
			return v
		}
	}
	if len(p.Positive) == 0 {
		v.OK = true
		return v
	}
	for _, pos := range p.Positive {
		if strings.Contains(page, strings.ToLower(pos)) {
			v.OK = true
			return v
		}
	}
	v.Reason = "no positive indicator"
	return v
}

func pageTitle(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func fetchProbe(ctx context.Context, client *http.Client, p Probe, userAgent string, loginMarkers []string) (Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return Verdict{}, fmt.Errorf("build probe request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("probe %s: %w", p.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return Verdict{}, fmt.Errorf("read probe %s: %w", p.URL, err)
	}

	v := Evaluate(p, resp.Request.URL.String(), string(body), loginMarkers)
	if v.OK && resp.StatusCode >= http.StatusBadRequest {
		v.OK = false
		v.Reason = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return v, nil
}

// snapshot is the debug record written when authentication fails.
type snapshot struct {
	Source     domain.SourceID `json:"source"`
	Reason     Reason          `json:"reason"`
	Detail     string          `json:"detail,omitempty"`
	URL        string          `json:"url"`
	Title      string          `json:"title"`
	Markup     string          `json:"markup"`
	CapturedAt time.Time       `json:"captured_at"`
}

func snapshotFromDriver(ctx context.Context, d browser.Driver) (url, title, markup string) {
	if d == nil {
		return "", "", ""
	}
	url, _ = d.Location(ctx)
	title, _ = d.Title(ctx)
	markup, _ = d.HTML(ctx)
	return url, title, markup
}

func writeSnapshot(dir string, snap snapshot) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug directory: %w", err)
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	name := fmt.Sprintf("%s_auth_%s_%s.json", snap.Source, snap.Reason, uuid.NewString()[:8])
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}
