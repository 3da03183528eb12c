package relevance

import (
	"math"
	"strings"
	"unicode"

	"ArchiveExtractor/internal/domain"
)

// Category is a named keyword group used to judge domain relevance.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Weight   float64  `yaml:"weight"`
}

// Config holds the tunable parts of the heuristic.
type Config struct {
	Categories []Category         `yaml:"categories"`
	Positive   map[string]float64 `yaml:"positive"`
	Negative   map[string]float64 `yaml:"negative"`
	Threshold  float64            `yaml:"threshold"`
}

// DefaultConfig targets sports clippings, the archives' main use.
func DefaultConfig() Config {
	return Config{
		Categories: []Category{
			{Name: "sports", Weight: 1.0, Keywords: []string{
				"game", "season", "team", "coach", "player", "score", "league", "championship",
				"tournament", "inning", "touchdown", "quarterback", "pitcher", "basketball",
				"football", "baseball", "track", "meet", "varsity", "playoff",
			}},
			{Name: "school", Weight: 0.6, Keywords: []string{
				"high school", "college", "university", "student", "graduate", "senior", "junior", "freshman",
			}},
			{Name: "achievement", Weight: 0.8, Keywords: []string{
				"award", "record", "honor", "scholarship", "all-star", "mvp", "champion", "title",
			}},
		},
		Positive: map[string]float64{
			"win": 1, "wins": 1, "won": 1, "victory": 1.5, "champion": 1.5, "record": 0.5,
			"star": 1, "honor": 1, "best": 1, "great": 0.5, "outstanding": 1.5, "praised": 1,
			"leads": 0.5, "scored": 0.5, "award": 1,
		},
		Negative: map[string]float64{
			"loss": 1, "lost": 1, "loses": 1, "defeat": 1.5, "injury": 1.5, "injured": 1.5,
			"suspended": 2, "arrested": 2.5, "fined": 1.5, "worst": 1, "scandal": 2, "died": 1,
		},
		Threshold: 0.3,
	}
}

// Analyzer scores article text. It is safe for concurrent use.
type Analyzer struct {
	categories []category
	positive   map[string]float64
	negative   map[string]float64
	threshold  float64
}

type category struct {
	name    string
	weight  float64
	words   map[string]struct{}
	phrases [][]string
}

// NewAnalyzer compiles cfg; empty sections fall back to DefaultConfig.
func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if len(cfg.Categories) == 0 {
		cfg.Categories = def.Categories
	}
	if len(cfg.Positive) == 0 {
		cfg.Positive = def.Positive
	}
	if len(cfg.Negative) == 0 {
		cfg.Negative = def.Negative
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}

	a := &Analyzer{
		positive:  lowerKeys(cfg.Positive),
		negative:  lowerKeys(cfg.Negative),
		threshold: cfg.Threshold,
	}
	for _, c := range cfg.Categories {
		compiled := category{name: c.Name, weight: c.Weight, words: map[string]struct{}{}}
		if compiled.weight <= 0 {
			compiled.weight = 1
		}
		for _, kw := range c.Keywords {
			toks := Tokenize(kw)
			switch len(toks) {
			case 0:
			case 1:
				compiled.words[toks[0]] = struct{}{}
			default:
				compiled.phrases = append(compiled.phrases, toks)
			}
		}
		a.categories = append(a.categories, compiled)
	}
	return a
}

func lowerKeys(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Tokenize lowercases text and splits it into words; hyphens and apostrophes stay inside words.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
}

// Analyze annotates text; name may be empty. The result never gates an article.
func (a *Analyzer) Analyze(text, name string) domain.ConfidenceMetrics {
	tokens := Tokenize(text)
	metrics := domain.ConfidenceMetrics{
		NameFilter:   strings.TrimSpace(name),
		NameMatch:    domain.NameMatchNone,
		CategoryHits: map[string]int{},
		WordCount:    len(tokens),
	}
	if len(tokens) == 0 {
		return metrics
	}

	weighted := 0.0
	for _, c := range a.categories {
		hits := 0
		for _, tok := range tokens {
			if _, ok := c.words[tok]; ok {
				hits++
			}
		}
		for _, phrase := range c.phrases {
			hits += countPhrase(tokens, phrase)
		}
		if hits > 0 {
			metrics.CategoryHits[c.name] = hits
			weighted += c.weight * float64(hits)
		}
	}
	categoryScore := weighted / (weighted + 5)

	metrics.RelevanceScore = categoryScore
	if metrics.NameFilter != "" {
		metrics.NameMatch = MatchName(tokens, metrics.NameFilter)
		metrics.RelevanceScore = 0.6*nameWeight(metrics.NameMatch) + 0.4*categoryScore
	}
	metrics.RelevanceScore = round(metrics.RelevanceScore)
	metrics.Relevant = metrics.RelevanceScore >= a.threshold
	metrics.SentimentScore = a.sentiment(tokens)
	return metrics
}

// sentiment is the weighted positive minus negative count per word, clamped to [-1, 1].
func (a *Analyzer) sentiment(tokens []string) float64 {
	var pos, neg float64
	for _, tok := range tokens {
		pos += a.positive[tok]
		neg += a.negative[tok]
	}
	score := (pos - neg) / float64(len(tokens))
	return round(math.Max(-1, math.Min(1, score)))
}

// MatchName looks for name in tokens as a full name, "initial last" or last name only.
func MatchName(tokens []string, name string) domain.NameMatch {
	parts := Tokenize(name)
	if len(parts) == 0 {
		return domain.NameMatchNone
	}
	if countPhrase(tokens, parts) > 0 {
		return domain.NameMatchFull
	}
	if len(parts) == 1 {
		return domain.NameMatchNone
	}

	last := parts[len(parts)-1]
	initial := string([]rune(parts[0])[0])
	if countPhrase(tokens, []string{initial, last}) > 0 {
		return domain.NameMatchInitialLast
	}
	for _, tok := range tokens {
		if tok == last {
			return domain.NameMatchLastName
		}
	}
	return domain.NameMatchNone
}

func nameWeight(m domain.NameMatch) float64 {
	switch m {
	case domain.NameMatchFull:
		return 1
	case domain.NameMatchInitialLast:
		return 0.8
	case domain.NameMatchLastName:
		return 0.6
	default:
		return 0
	}
}

func countPhrase(tokens, phrase []string) int {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return 0
	}
	count := 0
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, p := range phrase {
			if tokens[i+j] != p {
				continue outer
			}
		}
		count++
	}
	return count
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
