package relevance

import (
	"testing"

	"ArchiveExtractor/internal/domain"
)

func TestMatchName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		name string
		want domain.NameMatch
	}{
		{"John Smith scored twice in the game.", "John Smith", domain.NameMatchFull},
		{"J. Smith scored twice.", "John Smith", domain.NameMatchInitialLast},
		{"Smith scored twice.", "John Smith", domain.NameMatchLastName},
		{"Jones scored twice.", "John Smith", domain.NameMatchNone},
		{"Ruth homered.", "Ruth", domain.NameMatchFull},
		{"Nothing here.", "", domain.NameMatchNone},
	}

	for _, tc := range cases {
		if got := MatchName(Tokenize(tc.text), tc.name); got != tc.want {
			t.Fatalf("%q / %q: expected %s, got %s", tc.text, tc.name, tc.want, got)
		}
	}
}

func TestAnalyzeAnnotatesRelevance(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(Config{})
	text := "John Smith led the high school team to a championship victory, the best season in league history."

	m := a.Analyze(text, "John Smith")
	if m.NameMatch != domain.NameMatchFull {
		t.Fatalf("expected full name match, got %s", m.NameMatch)
	}
	if m.CategoryHits["sports"] < 3 {
		t.Fatalf("expected sports hits, got %v", m.CategoryHits)
	}
	if m.CategoryHits["school"] != 1 {
		t.Fatalf("expected phrase hit for high school, got %v", m.CategoryHits)
	}
	if !m.Relevant || m.RelevanceScore < 0.6 {
		t.Fatalf("expected relevant article, got %+v", m)
	}
	if m.SentimentScore <= 0 {
		t.Fatalf("expected positive sentiment, got %v", m.SentimentScore)
	}
	if m.WordCount != 17 {
		t.Fatalf("unexpected word count %d", m.WordCount)
	}
}

func TestAnalyzeNegativeAndIrrelevant(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(Config{Threshold: 0.5})
	m := a.Analyze("The council was suspended after the scandal.", "Jane Doe")
	if m.Relevant {
		t.Fatalf("article should not be relevant: %+v", m)
	}
	if m.SentimentScore >= 0 {
		t.Fatalf("expected negative sentiment, got %v", m.SentimentScore)
	}
	if m.SentimentScore < -1 {
		t.Fatalf("sentiment must be clamped, got %v", m.SentimentScore)
	}
}

func TestAnalyzeEmptyText(t *testing.T) {
	t.Parallel()

	m := NewAnalyzer(Config{}).Analyze("", "Someone")
	if m.WordCount != 0 || m.Relevant || m.NameMatch != domain.NameMatchNone {
		t.Fatalf("unexpected metrics for empty text: %+v", m)
	}
}
