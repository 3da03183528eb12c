package session

import (
	"ArchiveExtractor/internal/browser"
	"ArchiveExtractor/internal/domain"
)

// Probe is a known-paywalled URL plus the markers that tell a logged-in page from a prompt.
type Probe struct {
	URL      string
	Negative []string
	Positive []string
}

// Profile describes how to log into one source and how to prove the login worked.
type Profile struct {
	Source domain.SourceID
	// CookieSource selects which stored cookie file the profile reads; empty means Source.
	CookieSource domain.SourceID
	HomeURL      string
	CookieDomain string

	LoginURL string
	Username []browser.Locator
	Password []browser.Locator
	Submit   []browser.Locator

	AuthProbe    Probe
	PremiumProbe Probe
	LoginMarkers []string
}

// SessionKey names the persisted session this profile reads and writes; profiles with the same
// key share one login.
func (p Profile) SessionKey() domain.SourceID {
	if p.CookieSource != "" {
		return p.CookieSource
	}
	return p.Source
}

var genericNegative = []string{
	"login required",
	"sign in",
	"authentication required",
	"access denied",
	"unauthorized",
	"please log in",
}

var laplPrompts = []string{
	"please enter your lapl card number",
	"lapl card number",
	"please enter your pin",
	"last 4 digits of your phone number",
	"por favor ingrese su número de tarjeta",
	"número de tarjeta de lapl",
	"por favor ingrese su pin",
	"últimos 4 dígitos de su número de teléfono",
}

const laplProbeURL = "https://access-newspaperarchive-com.lapl.idm.oclc.org/us/california/marysville/marysville-appeal-democrat/2014/12-12/page-10"

// NewspapersProfile logs into Newspapers.com.
func NewspapersProfile() Profile {
	return Profile{
		Source:       domain.SourceNewspapers,
		HomeURL:      "https://www.newspapers.com/",
		CookieDomain: ".newspapers.com",
		LoginURL:     "https://www.newspapers.com/signin/",
		Username: []browser.Locator{
			browser.ID("email"),
			browser.Name("email"),
			browser.CSS(`input[type="email"]`),
			browser.Name("username"),
			browser.XPath(`//input[contains(@placeholder, "mail")]`),
		},
		Password: []browser.Locator{
			browser.ID("password"),
			browser.Name("password"),
			browser.CSS(`input[type="password"]`),
		},
		Submit: []browser.Locator{
			browser.CSS(`button[type="submit"]`),
			browser.CSS(`input[type="submit"]`),
			browser.XPath(`//button[contains(., "Sign In")]`),
		},
		AuthProbe: Probe{
			URL:      "https://www.newspapers.com/account/",
			Negative: []string{"sign in to continue", "start free trial", "subscribe to view", "create a free account"},
			Positive: []string{"sign out", "log out", "my account"},
		},
		LoginMarkers: []string{"/signin", "/login"},
	}
}

// LAPLProfile logs into the Los Angeles Public Library EZproxy with card number and PIN.
func LAPLProfile() Profile {
	return Profile{
		Source:       domain.SourceLAPL,
		HomeURL:      "https://access-newspaperarchive-com.lapl.idm.oclc.org/",
		CookieDomain: ".lapl.idm.oclc.org",
		LoginURL:     "https://login.lapl.idm.oclc.org/login?url=https://access-newspaperarchive-com.lapl.idm.oclc.org",
		Username: []browser.Locator{
			browser.Name("user"),
			browser.ID("user"),
			browser.Name("barcode"),
			browser.CSS(`input[name*="card"]`),
			browser.XPath(`//form//input[@type="text"]`),
		},
		Password: []browser.Locator{
			browser.Name("pass"),
			browser.ID("pass"),
			browser.Name("pin"),
			browser.CSS(`input[type="password"]`),
		},
		Submit: []browser.Locator{
			browser.CSS(`input[type="submit"]`),
			browser.CSS(`button[type="submit"]`),
			browser.XPath(`//input[@value="Login"]`),
		},
		AuthProbe: Probe{
			URL:      "https://access-newspaperarchive-com.lapl.idm.oclc.org/",
			Negative: append(append([]string{}, laplPrompts...), genericNegative...),
		},
		PremiumProbe: Probe{
			URL:      laplProbeURL,
			Negative: append(append([]string{}, laplPrompts...), genericNegative...),
			Positive: []string{
				"marysville appeal democrat",
				"december 12, 2014",
				"newspaper viewer",
				"article text",
				"page view",
				"zoom in",
				"zoom out",
			},
		},
		LoginMarkers: []string{"login.lapl.idm.oclc.org"},
	}
}

// NewspaperArchiveProfile reaches NewspaperArchive through the LAPL proxy and shares its cookies.
func NewspaperArchiveProfile() Profile {
	p := LAPLProfile()
	p.Source = domain.SourceNewspaperArchive
	p.CookieSource = domain.SourceLAPL
	p.AuthProbe = p.PremiumProbe
	p.PremiumProbe = Probe{}
	return p
}

// ProfileFor returns the built-in profile of a source.
func ProfileFor(source domain.SourceID) (Profile, bool) {
	switch source {
	case domain.SourceNewspapers:
		return NewspapersProfile(), true
	case domain.SourceLAPL:
		return LAPLProfile(), true
	case domain.SourceNewspaperArchive:
		return NewspaperArchiveProfile(), true
	default:
		return Profile{}, false
	}
}
