package domain

import (
	"strings"
	"time"
)

// SourceID names one external paywalled archive.
type SourceID string

const (
	SourceNewspapers       SourceID = "newspapers"
	SourceLAPL             SourceID = "lapl"
	SourceNewspaperArchive SourceID = "newspaperarchive"
)

// ParseSourceID maps loose user input (CLI args, config keys) to a known source.
func ParseSourceID(value string) (SourceID, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "newspapers", "newspapers.com", "newspapers_com":
		return SourceNewspapers, true
	case "lapl", "newsbank", "proquest":
		return SourceLAPL, true
	case "newspaperarchive", "newspaperarchive.com", "newspaper_archive":
		return SourceNewspaperArchive, true
	default:
		return "", false
	}
}

// Sources lists every supported source in a stable order.
func Sources() []SourceID {
	return []SourceID{SourceNewspapers, SourceLAPL, SourceNewspaperArchive}
}

// Sentinel metadata values used when no selector in a chain matches.
const (
	UnknownHeadline  = "Unknown Headline"
	UnknownDate      = "Unknown Date"
	UnknownAuthor    = "Unknown Author"
	UnknownNewspaper = "Unknown Newspaper"
)

// Cookie is a single browser cookie. Values are secrets and must never be logged.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	Expires  time.Time
}

// CredentialBundle is the persisted cookie set for one source plus its metadata envelope.
type CredentialBundle struct {
	Source      SourceID
	Cookies     map[string]string
	SavedAt     time.Time
	CookieCount int
	Environment string
	Tokens      StorageTokens
}

// Empty reports whether the bundle carries no cookies.
func (b CredentialBundle) Empty() bool {
	return len(b.Cookies) == 0
}

// StorageTokens are the local/session storage entries captured after a browser login.
type StorageTokens struct {
	LocalStorage   map[string]string
	SessionStorage map[string]string
}

// ExtractionRequest is immutable once dispatched.
type ExtractionRequest struct {
	URL        string
	FilterName string
	SourceHint SourceID
}

// Article is the metadata and content pulled from one URL.
type Article struct {
	Headline     string
	Date         string
	Author       string
	Newspaper    string
	Page         string
	Source       SourceID
	URL          string
	BodyText     string
	BodyMarkdown string
	ImageURL     string
}

// BinaryFile is a downloaded image/PDF payload plus a suggested filename.
type BinaryFile struct {
	Filename    string
	ContentType string
	SourceURL   string
	Data        []byte
}

// Size returns the payload length in bytes.
func (f BinaryFile) Size() int {
	return len(f.Data)
}
