// Package archive keeps copies of rendered pages so extraction failures can be replayed.
// Backends live in the memory, local and gcs subpackages.
package archive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// ContentTypeHTML is the content type recorded for archived pages.
const ContentTypeHTML = "text/html; charset=utf-8"

const maxSlugLen = 80

// Archive stores one object and returns a URI that locates it.
type Archive interface {
	PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

// ObjectPath builds "<prefix>/<runID>/<nn>-<slug>.html" where nn is the 1-based candidate
// position and slug comes from the page URL.
func ObjectPath(prefix, runID string, position int, pageURL string) string {
	name := fmt.Sprintf("%02d-%s.html", position, slug(pageURL))
	return path.Join(strings.Trim(prefix, "/"), runID, name)
}

func slug(pageURL string) string {
	base := ""
	if u, err := url.Parse(pageURL); err == nil {
		base = path.Base(strings.TrimRight(u.Path, "/"))
		if base == "." || base == "/" {
			base = u.Hostname()
		}
	}
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "page"
	}
	return s
}
