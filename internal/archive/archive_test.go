package archive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		prefix string
		url    string
		pos    int
		want   string
	}{
		{"pages", "https://example.com/easy-lemon-bars/", 1, "pages/run-1/01-easy-lemon-bars.html"},
		{"/pages/", "https://example.com/2024/05/Miso_Soup.html", 12, "pages/run-1/12-miso-soup-html.html"},
		{"", "https://example.com/", 3, "run-1/03-example-com.html"},
		{"pages", "::not a url", 4, "pages/run-1/04-page.html"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ObjectPath(tc.prefix, "run-1", tc.pos, tc.url), tc.url)
	}
}

func TestSlugIsBounded(t *testing.T) {
	t.Parallel()

	long := "https://example.com/" + strings.Repeat("ab-", 100)
	assert.LessOrEqual(t, len(slug(long)), maxSlugLen)
}
