package selector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Lookup is one alternative strategy for locating a logical value.
type Lookup[T any] struct {
	Name string
	Find func() (T, bool)
}

// First evaluates lookups in order and returns the first hit along with the lookup's name.
func First[T any](lookups ...Lookup[T]) (T, string, bool) {
	for _, l := range lookups {
		if l.Find == nil {
			continue
		}
		if v, ok := l.Find(); ok {
			return v, l.Name, true
		}
	}
	var zero T
	return zero, "", false
}

// Field describes one metadata field as an ordered list of css selectors.
type Field struct {
	Name      string
	Selectors []string
	// Attr reads an attribute instead of the element text.
	Attr     string
	Sentinel string
}

// Lookups turns the field's selectors into a lookup chain against root.
func (f Field) Lookups(root *goquery.Selection) []Lookup[string] {
	lookups := make([]Lookup[string], 0, len(f.Selectors))
	for _, sel := range f.Selectors {
		sel := sel
		lookups = append(lookups, Lookup[string]{
			Name: sel,
			Find: func() (string, bool) {
				return firstValue(root, sel, f.Attr)
			},
		})
	}
	return lookups
}

// Extract returns the first non-empty match or the sentinel; matched is empty when the sentinel is used.
func (f Field) Extract(root *goquery.Selection, extra ...Lookup[string]) (value, matched string) {
	chain := append(f.Lookups(root), extra...)
	if v, name, ok := First(chain...); ok {
		return v, name
	}
	return f.Sentinel, ""
}

func firstValue(root *goquery.Selection, sel, attr string) (string, bool) {
	var out string
	root.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if attr != "" {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				out = strings.TrimSpace(v)
				return false
			}
			return true
		}
		if text := CleanText(s.Text()); text != "" {
			out = text
			return false
		}
		return true
	})
	return out, out != ""
}

// Text is a convenience for an anonymous text field.
func Text(root *goquery.Selection, selectors ...string) (string, bool) {
	v, _, ok := First(Field{Selectors: selectors}.Lookups(root)...)
	return v, ok
}

// Exists reports whether any selector matches at least one node.
func Exists(root *goquery.Selection, selectors ...string) bool {
	for _, sel := range selectors {
		if root.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// CleanText collapses runs of whitespace inside a line and trims the result, keeping paragraph breaks.
func CleanText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) > 0 && !blank {
				out = append(out, "")
				blank = true
			}
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Paragraphs joins the text of every p element under the first matching container.
func Paragraphs(root *goquery.Selection, containers ...string) (string, bool) {
	for _, sel := range containers {
		container := root.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		var parts []string
		container.Find("p").Each(func(_ int, p *goquery.Selection) {
			if text := CleanText(p.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n"), true
		}
	}
	return "", false
}
