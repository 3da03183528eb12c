package usecase

import (
	"strings"
	"time"

	"ArchiveExtractor/internal/domain"
)

var articleDateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan. 2, 2006",
	"Monday, January 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006/01/02",
	"2006/1/2",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

// DateRange is an inclusive publication-date window. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether day falls inside the window, comparing calendar days only.
func (r DateRange) Contains(day time.Time) bool {
	d := truncateDay(day)
	if !r.From.IsZero() && d.Before(truncateDay(r.From)) {
		return false
	}
	if !r.To.IsZero() && d.After(truncateDay(r.To)) {
		return false
	}
	return true
}

// Annotate sets DateInRange on a success whose article date can be parsed. Results are never
// dropped; unparseable dates leave DateInRange nil.
func (r DateRange) Annotate(result *domain.ExtractionResult) {
	if result.Success == nil {
		return
	}
	day, ok := ParseArticleDate(result.Success.Article.Date)
	if !ok {
		return
	}
	in := r.Contains(day)
	result.Success.DateInRange = &in
}

// ParseArticleDate understands the date formats the archives print.
func ParseArticleDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == domain.UnknownDate {
		return time.Time{}, false
	}
	for _, layout := range articleDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
