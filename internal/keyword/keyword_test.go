package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFromTitle(t *testing.T) {
	t.Parallel()

	ex := New(nil)
	testCases := []struct {
		name  string
		title string
		want  string
	}{
		{"stop words removed", "The Best Easy Chocolate Cake Recipe", "Chocolate Cake"},
		{"capped at four tokens", "Slow Cooker Beef Barley Soup With Herbs", "Slow Cooker Beef Barley"},
		{"punctuation and hyphens", "Lemon-Garlic Shrimp (30 Minutes!)", "Lemon Garlic Shrimp"},
		{"short tokens dropped", "My Pho of Oz", "Pho"},
		{"accented letters kept", "Crème Brûlée", "Crème Brûlée"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ex.Extract(tc.title, "https://example.com/ignored"))
		})
	}
}

func TestExtractFromURLSlug(t *testing.T) {
	t.Parallel()

	ex := New(nil)
	assert.Equal(t, "Garlic Butter Salmon", ex.Extract("", "https://example.com/2024/garlic-butter-salmon/"))
	assert.Equal(t, "Banana Bread", ex.Extract("  ", "https://example.com/easy_banana_bread.HTML"))
	assert.Equal(t, "Pad Thai", ex.Extract("", "https://example.com/recipes/pad-thai.htm?utm=x"))
}

func TestExtractFallback(t *testing.T) {
	t.Parallel()

	ex := New(nil)
	assert.Equal(t, Fallback, ex.Extract("", ""))
	assert.Equal(t, Fallback, ex.Extract("The Easy Recipe", ""))
	assert.Equal(t, Fallback, ex.Extract("", "https://example.com/"))
	assert.Equal(t, Fallback, ex.Extract("!!! ?? ..", "https://example.com/x"))
}

func TestCustomStopWords(t *testing.T) {
	t.Parallel()

	ex := New([]string{"Chicken"})
	assert.Equal(t, "Easy Tikka Masala", ex.Extract("Easy Chicken Tikka Masala", ""))
}

func TestExtractDeterministic(t *testing.T) {
	t.Parallel()

	ex := New(nil)
	first := ex.Extract("Grandma's Famous Apple Pie", "")
	for i := 0; i < 10; i++ {
		require.Equal(t, first, ex.Extract("Grandma's Famous Apple Pie", ""))
	}
	require.Equal(t, "Grandma Famous Apple Pie", first)
}

func FuzzExtractNeverEmpty(f *testing.F) {
	f.Add("The Best Cake", "https://example.com/cake")
	f.Add("", "")
	ex := New(nil)
	f.Fuzz(func(t *testing.T, title, rawURL string) {
		if ex.Extract(title, rawURL) == "" {
			t.Errorf("Extract(%q, %q) returned empty", title, rawURL)
		}
	})
}
