package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsdigest/internal/domain"
	"newsdigest/internal/ports"
)

// recencyWindow is how far back an item's publish timestamp may lie and
// still be accepted. The system targets near-real-time posting, not
// archival ingestion.
const recencyWindow = 2 * time.Hour

// pubDateLayouts covers the date formats feeds use in practice.
var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// CollectorDeps wires the driven adapters into the collection workflow.
type CollectorDeps struct {
	Sources  ports.SourceStore
	Articles ports.ArticleStore
	Fetcher  ports.FeedFetcher
	Composer *Composer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Collector runs the fetch → ingest → compose workflow across all sources.
type Collector struct {
	sources  ports.SourceStore
	articles ports.ArticleStore
	fetcher  ports.FeedFetcher
	composer *Composer
	logger   *slog.Logger
	now      func() time.Time
}

// NewCollector constructs the collection component.
func NewCollector(deps CollectorDeps) *Collector {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Collector{
		sources:  deps.Sources,
		articles: deps.Articles,
		fetcher:  deps.Fetcher,
		composer: deps.Composer,
		logger:   deps.Logger,
		now:      now,
	}
}

// Collect fetches every active source in sequence and returns how many
// candidate items were offered to ingestion. Per-item trouble is contained;
// only the initial source listing can fail the invocation.
func (c *Collector) Collect(ctx context.Context) (int, error) {
	sources, err := c.sources.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active sources: %w", err)
	}

	c.logger.Info("collection started", "sources", len(sources))

	total := 0
	for _, src := range sources {
		if src.FeedURL == "" {
			continue
		}

		items := c.fetcher.Fetch(ctx, src.FeedURL)
		c.logger.Info("source fetched", "source", src.Name, "items", len(items))

		for _, item := range items {
			total++
			c.ingest(ctx, item, src)
		}

		if err := c.sources.TouchFetched(ctx, src.ID, c.now()); err != nil {
			c.logger.Warn("touch source", "source", src.Name, "error", err)
		}
	}

	c.logger.Info("collection completed", "items_processed", total)
	return total, nil
}

// ingest deduplicates one candidate item by canonical link, filters it by
// freshness, persists it, and hands it to the composer. Every failure mode
// drops the item; the next fetch cycle re-offers it since nothing was
// recorded.
func (c *Collector) ingest(ctx context.Context, item domain.Item, src domain.Source) {
	exists, err := c.articles.ExistsByURL(ctx, item.Link)
	if err != nil {
		c.logger.Warn("dedup lookup", "link", item.Link, "error", err)
		return
	}
	if exists {
		c.logger.Debug("article already exists, skipping", "link", item.Link)
		return
	}

	now := c.now()
	publishedAt := parsePubDate(item.PubDate, now)
	if publishedAt.Before(now.Add(-recencyWindow)) {
		c.logger.Debug("article too old for real-time posting, skipping",
			"link", item.Link, "published_at", publishedAt)
		return
	}

	article := domain.Article{
		Title:       item.Title,
		Content:     item.Description,
		SourceURL:   item.Link,
		SourceName:  src.Name,
		Category:    src.Category,
		PublishedAt: publishedAt,
		Processed:   false,
	}

	if err := c.articles.Create(ctx, &article); err != nil {
		c.logger.Warn("persist article", "link", item.Link, "error", err)
		return
	}

	c.logger.Info("article ingested", "title", article.Title, "source", src.Name)

	if _, err := c.composer.Compose(ctx, article); err != nil {
		c.logger.Warn("compose post", "article_id", article.ID, "error", err)
	}
}

// parsePubDate resolves the item's publish timestamp. Unparsable or absent
// dates are treated as fresh rather than rejected.
func parsePubDate(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return fallback
}
