package recipe

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/recipe-ingest/internal/keyword"
)

const longDescription = "A weeknight favorite built on pantry staples. The sauce comes together " +
	"while the pasta cooks, and everything finishes in one pan so cleanup stays small. " +
	"Serve it with a crisp salad and a squeeze of lemon for brightness."

func page(blocks ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>t</title>")
	for _, block := range blocks {
		b.WriteString(`<script type="application/ld+json">`)
		b.WriteString(block)
		b.WriteString("</script>")
	}
	b.WriteString("</head><body><p>content</p></body></html>")
	return b.String()
}

func recipeJSON(t *testing.T, fields map[string]any) string {
	t.Helper()
	obj := map[string]any{"@type": "Recipe"}
	for k, v := range fields {
		obj[k] = v
	}
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return string(data)
}

func fullFields() map[string]any {
	return map[string]any{
		"name":             "One Pan Garlic Parmesan Pasta",
		"description":      longDescription,
		"prepTime":         "PT10M",
		"cookTime":         "PT20M",
		"recipeYield":      "4",
		"recipeIngredient": []string{"8 oz spaghetti", "4 cloves garlic", "1 cup parmesan"},
		"keywords":         "garlic pasta, weeknight dinner",
		"image":            "https://example.com/pasta.jpg",
	}
}

func TestExtractReturnsNoRecipeWithoutLinkedData(t *testing.T) {
	t.Parallel()

	ex := NewExtractor(nil, 0)
	_, err := ex.Extract("<html><body>No data</body></html>", "https://example.com/a")
	require.ErrorIs(t, err, ErrNoRecipe)

	_, err = ex.Extract(page(`{"@type":"Article","headline":"Not food"}`), "https://example.com/a")
	require.ErrorIs(t, err, ErrNoRecipe)
}

func TestExtractRejectsShortRecipe(t *testing.T) {
	t.Parallel()

	ex := NewExtractor(nil, 0)
	html := page(`{"@type":"Recipe","name":"My Very Good Tomato Soup"}`)
	_, err := ex.Extract(html, "https://example.com/soup")
	require.ErrorIs(t, err, ErrTooShort)
}

func TestExtractLengthFloorCountsRunes(t *testing.T) {
	t.Parallel()

	html := page(recipeJSON(t, map[string]any{
		"name":        "Party Cupcakes",
		"description": strings.Repeat("\U0001F9C1", 40),
	}))
	obj, err := FindRecipe(html)
	require.NoError(t, err)
	full := obj.Format()
	runes := utf8.RuneCountInString(full)
	units := len(utf16.Encode([]rune(full)))
	require.Greater(t, units, runes+1)

	_, err = NewExtractor(nil, runes+1).Extract(html, "https://example.com/cupcakes")
	require.ErrorIs(t, err, ErrTooShort, "a UTF-16 count would have passed")

	rec, err := NewExtractor(nil, runes).Extract(html, "https://example.com/cupcakes")
	require.NoError(t, err)
	assert.Equal(t, full, rec.FullRecipe)
}

func TestExtractPlainStringInstructions(t *testing.T) {
	t.Parallel()

	fields := fullFields()
	fields["recipeInstructions"] = "Step one\nStep two"
	ex := NewExtractor(nil, 0)

	rec, err := ex.Extract(page(recipeJSON(t, fields)), "https://example.com/pasta")
	require.NoError(t, err)
	require.Contains(t, rec.FullRecipe, "## Instructions\n1. Step one\n2. Step two\n")
	require.Equal(t, "One Pan Garlic Parmesan", rec.FocusKeyword)
	require.Equal(t, "garlic pasta, weeknight dinner", rec.PAA)
	require.Equal(t, "https://example.com/pasta.jpg", rec.ImageURL)
	require.Equal(t, "https://example.com/pasta", rec.SourceURL)
}

func TestExtractSkipsInvalidBlocks(t *testing.T) {
	t.Parallel()

	ex := NewExtractor(nil, 0)
	html := page(`{not json`, `{"@type":"WebSite","name":"Blog"}`, recipeJSON(t, fullFields()))
	rec, err := ex.Extract(html, "https://example.com/pasta")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rec.FullRecipe, "# One Pan Garlic Parmesan Pasta\n"))
}

func TestExtractFindsRecipeInGraph(t *testing.T) {
	t.Parallel()

	graph := map[string]any{
		"@context": "https://schema.org",
		"@graph": []any{
			map[string]any{"@type": "WebPage", "name": "page"},
			func() map[string]any {
				f := fullFields()
				f["@type"] = []string{"Recipe", "NewsArticle"}
				return f
			}(),
		},
	}
	data, err := json.Marshal(graph)
	require.NoError(t, err)

	rec, err := NewExtractor(nil, 0).Extract(page(string(data)), "https://example.com/pasta")
	require.NoError(t, err)
	require.Contains(t, rec.FullRecipe, "• 8 oz spaghetti")
}

func TestExtractFromTopLevelArrayAndCaseInsensitiveType(t *testing.T) {
	t.Parallel()

	html := `<html><head><SCRIPT TYPE="Application/LD+JSON">[{"@type":"Organization"},` +
		recipeJSON(t, fullFields()) + `]</SCRIPT></head><body></body></html>`
	rec, err := NewExtractor(nil, 0).Extract(html, "https://example.com/pasta")
	require.NoError(t, err)
	require.Contains(t, rec.FullRecipe, "⏱️ Prep: 10min | 🔥 Cook: 20min | 🍽️ Serves: 4")
}

func TestExtractFocusKeywordFallsBackToURL(t *testing.T) {
	t.Parallel()

	fields := fullFields()
	delete(fields, "name")
	fields["recipeInstructions"] = []string{"Boil.", "Toss.", "Serve."}
	rec, err := NewExtractor(keyword.New(nil), 0).Extract(
		page(recipeJSON(t, fields)), "https://example.com/easy-lemon-orzo-salad/")
	require.NoError(t, err)
	require.Equal(t, "Lemon Orzo Salad", rec.FocusKeyword)
}

func TestFormatSectionOrder(t *testing.T) {
	t.Parallel()

	var obj Object
	require.NoError(t, json.Unmarshal([]byte(`{
		"@type": "Recipe",
		"name": "Lemon Bars",
		"description": "<p>Tangy.</p>",
		"prepTime": "PT15M",
		"cookTime": "PT1H",
		"recipeYield": ["12", "12 bars"],
		"nutrition": {"@type": "NutritionInformation", "calories": "150"},
		"recipeIngredient": ["1 cup flour", "<b>2</b> lemons"],
		"recipeInstructions": ["Mix.", {"@type": "HowToStep", "text": "Bake."}],
		"recipeNotes": "Chill &amp; serve"
	}`), &obj))

	want := "# Lemon Bars\n" +
		"\n" +
		"Tangy.\n" +
		"\n" +
		"⏱️ Prep: 15min | 🔥 Cook: 1h | 🍽️ Serves: 12\n" +
		"\n" +
		"📊 Calories: 150\n" +
		"\n" +
		"## Ingredients\n• 1 cup flour\n• 2 lemons\n" +
		"\n" +
		"## Instructions\n1. Mix.\n2. Bake.\n" +
		"\n" +
		"## Notes\nChill serve\n"
	assert.Equal(t, want, obj.Format())
}

func TestFormatHowToSections(t *testing.T) {
	t.Parallel()

	var ins Instructions
	require.NoError(t, json.Unmarshal([]byte(`[
		{"@type": "HowToSection", "name": "Crust", "itemListElement": [
			{"@type": "HowToStep", "text": "Press."},
			"Bake 10 min."
		]},
		{"@type": "HowToSection", "name": "Filling", "itemListElement": [{"text": "Whisk."}]}
	]`), &ins))

	require.Len(t, ins, 2)
	require.Equal(t, KindSection, ins[0].Kind)
	assert.Equal(t, "\n**Crust**\n1. Press.\n2. Bake 10 min.\n\n**Filling**\n1. Whisk.", formatInstructions(ins))
}

func TestFormatOmitsAbsentSections(t *testing.T) {
	t.Parallel()

	obj := Object{Name: Text{"Toast"}}
	assert.Equal(t, "# Toast\n", obj.Format())
	assert.Empty(t, (&Object{}).Format())
}
