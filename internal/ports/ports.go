package ports

import (
	"context"
	"time"

	"newsdigest/internal/domain"
)

// FeedFetcher retrieves a feed document and extracts candidate items.
// Implementations are best-effort: fetch or extraction trouble yields an
// empty slice, never an error that would abort the whole collection run.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) []domain.Item
}

// SourceStore reads configured feed sources.
type SourceStore interface {
	ListActive(ctx context.Context) ([]domain.Source, error)
	TouchFetched(ctx context.Context, id string, at time.Time) error
}

// ArticleStore persists deduplicated articles.
type ArticleStore interface {
	ExistsByURL(ctx context.Context, sourceURL string) (bool, error)
	Create(ctx context.Context, article *domain.Article) error
	MarkProcessed(ctx context.Context, id string) error
}

// PostStore manages the outbound post queue.
type PostStore interface {
	Create(ctx context.Context, post *domain.Post) error
	ListPending(ctx context.Context, limit int) ([]domain.Post, error)
	ListFailedSince(ctx context.Context, since time.Time, limit int) ([]domain.Post, error)
	MarkPosted(ctx context.Context, id, tweetID string, at time.Time) error
	MarkFailed(ctx context.Context, id, message string) error
	ResetToPending(ctx context.Context, id string) error
}

// Publisher sends a post body to the external publishing API and returns the
// external post identifier. Rate-limit rejections wrap domain.ErrRateLimited.
type Publisher interface {
	Publish(ctx context.Context, text string) (string, error)
}

// Scheduler drives recurring pipeline invocations.
type Scheduler interface {
	Add(name, spec string, job func(ctx context.Context) error) error
	Start()
	Stop(ctx context.Context) error
}
