// Package recipe finds schema.org Recipe linked-data in rendered HTML and formats it into
// the record the store keeps.
package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/recipe-ingest/internal/keyword"
	"github.com/JakeFAU/recipe-ingest/internal/textnorm"
)

// DefaultMinLength is the shortest formatted recipe accepted. Length is counted in runes,
// so an emoji or other astral-plane character counts once where a UTF-16 count would
// see two units. Text near the floor that leans on such characters can fall short here.
const DefaultMinLength = 300

const ldJSONType = "application/ld+json"

var (
	// ErrNoRecipe is returned when no linked-data block declares a Recipe.
	ErrNoRecipe = errors.New("no recipe linked-data found")
	// ErrTooShort is returned when the formatted recipe is under the minimum length.
	ErrTooShort = errors.New("formatted recipe too short")
)

// Extractor turns rendered HTML into NormalizedRecipe records.
type Extractor struct {
	keywords  *keyword.Extractor
	minLength int
}

// NewExtractor builds an Extractor. A non-positive minLength selects DefaultMinLength.
func NewExtractor(keywords *keyword.Extractor, minLength int) *Extractor {
	if keywords == nil {
		keywords = keyword.New(nil)
	}
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Extractor{keywords: keywords, minLength: minLength}
}

// Extract locates the first Recipe object in html and builds the normalized record.
func (e *Extractor) Extract(html, sourceURL string) (*NormalizedRecipe, error) {
	obj, err := FindRecipe(html)
	if err != nil {
		return nil, err
	}
	full := obj.Format()
	if n := utf8.RuneCountInString(full); n < e.minLength {
		return nil, fmt.Errorf("%w: %d chars", ErrTooShort, n)
	}
	return &NormalizedRecipe{
		FocusKeyword: e.keywords.Extract(obj.Name.String(), sourceURL),
		FullRecipe:   full,
		PAA:          obj.Keywords.String(),
		ImageURL:     obj.Image.URL(),
		SourceURL:    sourceURL,
	}, nil
}

// FindRecipe scans every ld+json script block in document order and returns the first
// Recipe, either at the top level of a block or inside its @graph.
func FindRecipe(html string) (*Object, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var found *Object
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !isLinkedData(s.AttrOr("type", "")) {
			return true
		}
		found = recipeFromBlock([]byte(s.Text()))
		return found == nil
	})
	if found == nil {
		return nil, ErrNoRecipe
	}
	return found, nil
}

func isLinkedData(typ string) bool {
	mediaType, _, _ := strings.Cut(typ, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), ldJSONType)
}

type node struct {
	Type  TypeSet           `json:"@type"`
	Graph []json.RawMessage `json:"@graph"`
}

func recipeFromBlock(block []byte) *Object {
	block = bytes.TrimSpace(block)
	if len(block) == 0 {
		return nil
	}
	var items []json.RawMessage
	if block[0] == '[' {
		if err := json.Unmarshal(block, &items); err != nil {
			return nil
		}
	} else {
		items = []json.RawMessage{block}
	}

	for _, item := range items {
		if obj := decodeIfRecipe(item); obj != nil {
			return obj
		}
		var n node
		if err := json.Unmarshal(item, &n); err != nil {
			continue
		}
		for _, member := range n.Graph {
			if obj := decodeIfRecipe(member); obj != nil {
				return obj
			}
		}
	}
	return nil
}

func decodeIfRecipe(raw json.RawMessage) *Object {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var probe struct {
		Type TypeSet `json:"@type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || !probe.Type.Has("Recipe") {
		return nil
	}
	var obj Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return &obj
}

// Format renders the recipe as markdown-flavored text. Sections without source data
// are left out.
func (o *Object) Format() string {
	var parts []string

	if o.Name.Present() {
		parts = append(parts, "# "+textnorm.CleanText(o.Name.String())+"\n")
	}
	if o.Description.Present() {
		parts = append(parts, textnorm.CleanText(o.Description.String())+"\n")
	}

	var info []string
	if o.PrepTime.Present() {
		info = append(info, "⏱️ Prep: "+textnorm.ParseDuration(o.PrepTime.First()))
	}
	if o.CookTime.Present() {
		info = append(info, "🔥 Cook: "+textnorm.ParseDuration(o.CookTime.First()))
	}
	if o.TotalTime.Present() {
		info = append(info, "⏰ Total: "+textnorm.ParseDuration(o.TotalTime.First()))
	}
	if o.RecipeYield.Present() {
		info = append(info, "🍽️ Serves: "+o.RecipeYield.First())
	}
	if len(info) > 0 {
		parts = append(parts, strings.Join(info, " | ")+"\n")
	}

	if nutrition := o.Nutrition.summary(); nutrition != "" {
		parts = append(parts, "📊 "+nutrition+"\n")
	}
	if len(o.RecipeIngredient) > 0 {
		parts = append(parts, "## Ingredients\n"+formatIngredients(o.RecipeIngredient)+"\n")
	}
	if len(o.RecipeInstructions) > 0 {
		parts = append(parts, "## Instructions\n"+formatInstructions(o.RecipeInstructions)+"\n")
	}
	if o.RecipeNotes.Present() {
		parts = append(parts, "## Notes\n"+textnorm.CleanText(o.RecipeNotes.String())+"\n")
	}
	return strings.Join(parts, "\n")
}

func formatIngredients(items Ingredients) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "• "+textnorm.CleanText(item))
	}
	return strings.Join(lines, "\n")
}

// formatInstructions numbers plain and step entries by their list position; sections
// restart numbering at 1 under their own heading.
func formatInstructions(entries Instructions) string {
	var lines []string
	for idx, entry := range entries {
		switch entry.Kind {
		case KindPlain, KindStep:
			lines = append(lines, fmt.Sprintf("%d. %s", idx+1, textnorm.CleanText(entry.Text)))
		case KindSection:
			if entry.Name != "" {
				lines = append(lines, "\n**"+textnorm.CleanText(entry.Name)+"**")
			}
			for i, step := range entry.Steps {
				lines = append(lines, fmt.Sprintf("%d. %s", i+1, textnorm.CleanText(step.Text)))
			}
		case KindUnknown:
		}
	}
	return strings.Join(lines, "\n")
}
