package urls

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Validation failures returned by Validate.
var (
	ErrEmpty        = errors.New("empty url")
	ErrScheme       = errors.New("scheme must be http or https")
	ErrHost         = errors.New("host is missing or malformed")
	ErrLocalAddress = errors.New("local or private address")
)

const minimumURLLength = len("http://a.b")

var blockedCIDRs = []*net.IPNet{
	mustParseCIDR("127.0.0.0/8"),
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
	mustParseCIDR("169.254.0.0/16"),
	mustParseCIDR("0.0.0.0/8"),
	mustParseCIDR("::1/128"),
	mustParseCIDR("fc00::/7"),
}

func mustParseCIDR(value string) *net.IPNet {
	_, parsed, err := net.ParseCIDR(value)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR %q: %v", value, err))
	}
	return parsed
}

// Validate checks that raw is an absolute http(s) URL pointing at a public host.
func Validate(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrEmpty
	}
	if len(raw) < minimumURLLength {
		return fmt.Errorf("%q: %w", raw, ErrHost)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%q: %w", raw, ErrScheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%q: %w", raw, ErrHost)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%q: %w", raw, ErrLocalAddress)
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			ip = ip4
		}
		for _, cidr := range blockedCIDRs {
			if cidr.Contains(ip) {
				return fmt.Errorf("%q: %w", raw, ErrLocalAddress)
			}
		}
		return nil
	}

	if !strings.Contains(host, ".") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return fmt.Errorf("%q: %w", raw, ErrHost)
	}
	return nil
}

// Valid is a boolean shorthand for Validate.
func Valid(raw string) bool {
	return Validate(raw) == nil
}

// Trailing punctuation such as a sentence-ending period is not part of the URL.
var urlExpr = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+[^\\s<>\"{}|\\\\^`\\[\\].,;!?)]")

// ExtractFromText returns every http(s) URL in text, in order of first appearance, without duplicates.
func ExtractFromText(text string) []string {
	matches := urlExpr.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// ExtractLines treats each non-empty, non-comment line as a candidate URL. Lines that contain
// embedded URLs inside prose fall back to ExtractFromText.
func ExtractLines(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		candidates := []string{line}
		if strings.ContainsAny(line, " \t") {
			candidates = ExtractFromText(line)
		}
		for _, c := range candidates {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
