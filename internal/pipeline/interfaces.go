package pipeline

import (
	"context"
	"time"

	"github.com/JakeFAU/recipe-ingest/internal/feed"
	"github.com/JakeFAU/recipe-ingest/internal/recipe"
)

// FeedSource produces the candidates for one run.
type FeedSource interface {
	Fetch(ctx context.Context) []feed.Candidate
}

// DuplicateGuard reports whether a URL was already ingested.
type DuplicateGuard interface {
	IsDuplicate(ctx context.Context, url string) bool
}

// PageFetcher returns rendered HTML for a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// RecipeExtractor turns rendered HTML into a record.
type RecipeExtractor interface {
	Extract(html, sourceURL string) (*recipe.NormalizedRecipe, error)
}

// RecipeSaver persists a record and returns its id.
type RecipeSaver interface {
	Save(ctx context.Context, rec recipe.NormalizedRecipe) (string, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator issues run ids.
type IDGenerator interface {
	NewID() (string, error)
}
