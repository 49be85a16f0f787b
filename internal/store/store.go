package store

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-ingest/internal/metrics"
	"github.com/JakeFAU/recipe-ingest/internal/recipe"
)

// Store persists normalized recipes.
type Store interface {
	// Save writes one record and returns the store-assigned id.
	Save(ctx context.Context, rec recipe.NormalizedRecipe) (string, error)
	// Exists reports whether a record for normalizedURL is already stored.
	Exists(ctx context.Context, normalizedURL string) (bool, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// NormalizeURL reduces a URL to scheme, host and path. All three are lower-cased, a leading
// "www." is dropped from the host and one trailing slash is stripped. The query string and
// fragment are discarded, so tracking parameters never split one article into two keys.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return normalizeString(trimmed)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return strings.ToLower(u.Scheme) + "://" + host + strings.TrimSuffix(strings.ToLower(u.EscapedPath()), "/")
}

func normalizeString(raw string) string {
	s := strings.ToLower(raw)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.Replace(s, "://www.", "://", 1)
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimSuffix(s, "/")
}

// Guard answers duplicate checks against a Store.
type Guard struct {
	store  Store
	logger *zap.Logger
}

// NewGuard wraps s. A nil logger is replaced with a no-op logger.
func NewGuard(s Store, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: s, logger: logger}
}

// IsDuplicate reports whether rawURL is already stored. Lookup failures are logged and
// reported as not duplicate so a store outage does not stop ingestion.
func (g *Guard) IsDuplicate(ctx context.Context, rawURL string) bool {
	normalized := NormalizeURL(rawURL)
	exists, err := g.store.Exists(ctx, normalized)
	if err != nil {
		metrics.ObserveDuplicateCheckFailure()
		g.logger.Warn("duplicate check failed; treating as new",
			zap.String("url", rawURL),
			zap.String("normalized_url", normalized),
			zap.Error(err))
		return false
	}
	return exists
}
