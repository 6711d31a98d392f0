package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"newsdigest/internal/domain"
	"newsdigest/internal/ports"
)

// psql builds all queries with Postgres placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// SourceStore reads and touches the news_sources collection.
type SourceStore struct {
	db *sql.DB
}

var _ ports.SourceStore = (*SourceStore)(nil)

// NewSourceStore wires a sql.DB implementation.
func NewSourceStore(db *sql.DB) *SourceStore {
	return &SourceStore{db: db}
}

// ListActive returns every source flagged active.
func (s *SourceStore) ListActive(ctx context.Context) ([]domain.Source, error) {
	query, args, err := psql.
		Select("id", "name", "category", "rss_feed", "is_active", "coalesce(last_fetched_at, to_timestamp(0))").
		From("news_sources").
		Where(sq.Eq{"is_active": true}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var src domain.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.Category, &src.FeedURL, &src.Active, &src.LastFetchedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}

	return sources, nil
}

// TouchFetched records when the source's feed was last pulled.
func (s *SourceStore) TouchFetched(ctx context.Context, id string, at time.Time) error {
	query, args, err := psql.
		Update("news_sources").
		Set("last_fetched_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touch source %s: %w", id, err)
	}
	return nil
}

// ArticleStore persists deduplicated articles in news_articles.
type ArticleStore struct {
	db *sql.DB
}

var _ ports.ArticleStore = (*ArticleStore)(nil)

// NewArticleStore wires a sql.DB implementation.
func NewArticleStore(db *sql.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// ExistsByURL reports whether an article with the canonical link exists.
func (s *ArticleStore) ExistsByURL(ctx context.Context, sourceURL string) (bool, error) {
	query, args, err := psql.
		Select("1").
		From("news_articles").
		Where(sq.Eq{"source_url": sourceURL}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query article by url: %w", err)
	}
	return true, nil
}

// Create inserts a new article and fills in its generated identifier.
// The unique index on source_url is the dedup backstop; a conflicting
// insert fails rather than silently duplicating.
func (s *ArticleStore) Create(ctx context.Context, article *domain.Article) error {
	query, args, err := psql.
		Insert("news_articles").
		Columns("title", "content", "source_url", "source_name", "category", "published_at", "processed").
		Values(article.Title, article.Content, article.SourceURL, article.SourceName, article.Category, article.PublishedAt, article.Processed).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build article insert: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&article.ID, &article.CreatedAt); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// MarkProcessed flips the processed flag once a post has been composed.
func (s *ArticleStore) MarkProcessed(ctx context.Context, id string) error {
	query, args, err := psql.
		Update("news_articles").
		Set("processed", true).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build processed update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark article %s processed: %w", id, err)
	}
	return nil
}

// PostStore manages the news_posts queue.
type PostStore struct {
	db *sql.DB
}

var _ ports.PostStore = (*PostStore)(nil)

// NewPostStore wires a sql.DB implementation.
func NewPostStore(db *sql.DB) *PostStore {
	return &PostStore{db: db}
}

// Create enqueues a freshly composed post.
func (s *PostStore) Create(ctx context.Context, post *domain.Post) error {
	query, args, err := psql.
		Insert("news_posts").
		Columns("article_id", "tweet_content", "hashtags", "status").
		Values(post.ArticleID, post.Content, pq.Array(post.Hashtags), post.Status).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build post insert: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// ListPending returns pending posts, newest first. Fresh news outranks
// older queued news.
func (s *PostStore) ListPending(ctx context.Context, limit int) ([]domain.Post, error) {
	return s.listByStatus(ctx, sq.Eq{"status": domain.StatusPending}, limit)
}

// ListFailedSince returns failed posts last updated at or after the cutoff.
func (s *PostStore) ListFailedSince(ctx context.Context, since time.Time, limit int) ([]domain.Post, error) {
	return s.listByStatus(ctx, sq.And{
		sq.Eq{"status": domain.StatusFailed},
		sq.GtOrEq{"updated_at": since},
	}, limit)
}

func (s *PostStore) listByStatus(ctx context.Context, pred sq.Sqlizer, limit int) ([]domain.Post, error) {
	query, args, err := psql.
		Select("id", "article_id", "tweet_content", "hashtags", "status",
			"coalesce(tweet_id, '')", "coalesce(error_message, '')",
			"coalesce(posted_at, to_timestamp(0))", "created_at", "updated_at").
		From("news_posts").
		Where(pred).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build posts query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.ID, &p.ArticleID, &p.Content, pq.Array(&p.Hashtags), &p.Status,
			&p.TweetID, &p.ErrorMessage, &p.PostedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

// MarkPosted records a successful publish with its external identifier.
func (s *PostStore) MarkPosted(ctx context.Context, id, tweetID string, at time.Time) error {
	query, args, err := psql.
		Update("news_posts").
		Set("status", domain.StatusPosted).
		Set("tweet_id", tweetID).
		Set("posted_at", at).
		Set("error_message", nil).
		Set("updated_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build posted update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark post %s posted: %w", id, err)
	}
	return nil
}

// MarkFailed records a hard publish failure with its error description.
func (s *PostStore) MarkFailed(ctx context.Context, id, message string) error {
	query, args, err := psql.
		Update("news_posts").
		Set("status", domain.StatusFailed).
		Set("error_message", message).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build failed update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark post %s failed: %w", id, err)
	}
	return nil
}

// ResetToPending requeues a failed post for another dispatch attempt.
func (s *PostStore) ResetToPending(ctx context.Context, id string) error {
	query, args, err := psql.
		Update("news_posts").
		Set("status", domain.StatusPending).
		Set("error_message", nil).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build requeue update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("reset post %s: %w", id, err)
	}
	return nil
}
