// Package keyword derives a short focus phrase from a recipe title or URL slug.
package keyword

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Fallback is returned when no token survives filtering.
const Fallback = "Recipe"

const maxTokens = 4

// DefaultStopWords lists filler words that never make a useful focus keyword.
var DefaultStopWords = []string{
	"easy", "quick", "simple", "best", "perfect", "amazing", "delicious", "ultimate",
	"classic", "homemade", "recipe", "recipes", "the", "and", "how", "to", "make",
	"minute", "minutes", "instant", "fast", "super",
}

var htmlSuffix = regexp.MustCompile(`(?i)\.html?$`)

// Extractor turns titles into focus keywords using a fixed stop-word set.
// It is safe for concurrent use.
type Extractor struct {
	stop map[string]struct{}
}

// New builds an Extractor. A nil or empty list selects DefaultStopWords.
func New(stopWords []string) *Extractor {
	if len(stopWords) == 0 {
		stopWords = DefaultStopWords
	}
	stop := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Extractor{stop: stop}
}

// Extract returns up to four title-cased tokens from the title, or from the URL slug when
// the title is blank. It never returns an empty string.
func (e *Extractor) Extract(title, rawURL string) string {
	source := strings.TrimSpace(title)
	if source == "" {
		source = slug(rawURL)
	}

	// Casers carry state, so each call gets its own.
	caser := cases.Title(language.Und)
	fields := strings.Fields(strings.Map(normalizeRune, strings.ToLower(source)))
	tokens := make([]string, 0, maxTokens)
	for _, f := range fields {
		if len([]rune(f)) <= 2 {
			continue
		}
		if _, skip := e.stop[f]; skip {
			continue
		}
		tokens = append(tokens, caser.String(f))
		if len(tokens) == maxTokens {
			break
		}
	}
	if len(tokens) == 0 {
		return Fallback
	}
	return strings.Join(tokens, " ")
}

func normalizeRune(r rune) rune {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
		return r
	}
	return ' '
}

// slug returns the last non-empty path segment with any .htm/.html suffix removed.
func slug(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return htmlSuffix.ReplaceAllString(path.Base(p), "")
}
