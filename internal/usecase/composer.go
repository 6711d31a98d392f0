package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"newsdigest/internal/domain"
	"newsdigest/internal/ports"
)

const (
	maxPostLen = 280
	// Headroom reserved for hashtags and source attribution before the
	// exact suffix lengths are known.
	reservedLen = 60

	tagCount = 3
	ellipsis = "..."
)

// tagRule maps title keywords to a topical tag. Rules are scanned in order
// and matched case-insensitively against the title.
type tagRule struct {
	tag      string
	keywords []string
}

var tagRules = []tagRule{
	{"政治", []string{"政治", "政府", "politics"}},
	{"経済", []string{"経済", "economy", "市場"}},
	{"スポーツ", []string{"スポーツ", "sport"}},
	{"技術", []string{"技術", "tech", "ai"}},
	{"災害", []string{"災害", "地震", "台風"}},
	{"コロナ", []string{"コロナ", "covid"}},
}

var (
	domesticTags      = []string{"日本", "ニュース", "速報"}
	internationalTags = []string{"世界", "ニュース", "海外"}
)

// Composer turns a persisted article into a pending post.
type Composer struct {
	posts    ports.PostStore
	articles ports.ArticleStore
	logger   *slog.Logger
}

// NewComposer constructs the composition component.
func NewComposer(posts ports.PostStore, articles ports.ArticleStore, logger *slog.Logger) *Composer {
	return &Composer{posts: posts, articles: articles, logger: logger}
}

// Compose builds the bounded post body with derived tags, enqueues it as
// pending, and marks the article processed.
func (c *Composer) Compose(ctx context.Context, article domain.Article) (domain.Post, error) {
	tags := deriveTags(article.Category, article.Title)

	post := domain.Post{
		ArticleID: article.ID,
		Content:   buildBody(article.Title, article.SourceName, tags),
		Hashtags:  tags,
		Status:    domain.StatusPending,
	}

	if err := c.posts.Create(ctx, &post); err != nil {
		return domain.Post{}, fmt.Errorf("enqueue post for article %s: %w", article.ID, err)
	}

	if err := c.articles.MarkProcessed(ctx, article.ID); err != nil {
		// The post is already queued; the flag is bookkeeping.
		c.logger.Warn("mark article processed", "article_id", article.ID, "error", err)
	}

	c.logger.Info("post queued", "article_id", article.ID, "length", len([]rune(post.Content)), "tags", tags)
	return post, nil
}

// buildBody assembles "<title> <tags><attribution>" within the 280-rune
// ceiling. The first pass truncates against the reserved headroom; because
// tag text length is data-dependent, a second pass re-truncates the title
// against the actual suffix lengths.
func buildBody(title, sourceName string, tags []string) string {
	text := title
	if runeLen(text) > maxPostLen-reservedLen {
		text = truncateTo(title, maxPostLen-reservedLen-len(ellipsis)) + ellipsis
	}

	hashtagText := hashtagString(tags)
	sourceText := "\n\n📰 " + sourceName

	body := text + " " + hashtagText + sourceText
	if runeLen(body) > maxPostLen {
		available := maxPostLen - runeLen(hashtagText) - runeLen(sourceText) - 1
		text = truncateTo(title, available-len(ellipsis)) + ellipsis
		body = text + " " + hashtagText + sourceText
	}

	return body
}

// deriveTags combines category defaults with keyword-derived topical tags,
// keyword matches taking priority, truncated to exactly tagCount entries.
func deriveTags(category, title string) []string {
	defaults := internationalTags
	if category == "japan" {
		defaults = domesticTags
	}

	lower := strings.ToLower(title)
	var specific []string
	for _, rule := range tagRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				specific = append(specific, rule.tag)
				break
			}
		}
	}

	keep := tagCount - len(specific)
	if keep < 0 {
		keep = 0
	}

	tags := make([]string, 0, tagCount)
	tags = append(tags, defaults[:keep]...)
	tags = append(tags, specific...)
	if len(tags) > tagCount {
		tags = tags[:tagCount]
	}
	return tags
}

func hashtagString(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, "#"+tag)
	}
	return strings.Join(parts, " ")
}

func runeLen(s string) int {
	return len([]rune(s))
}

func truncateTo(s string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
