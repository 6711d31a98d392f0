package domain

import (
	"errors"
	"time"
)

// Source is a configured feed the collector polls.
type Source struct {
	ID            string
	Name          string
	Category      string
	FeedURL       string
	Active        bool
	LastFetchedAt time.Time
}

// Item is an ephemeral candidate extracted from a feed document. Items are
// never persisted; only those surviving dedup and freshness become Articles.
type Item struct {
	Title       string
	Description string
	Link        string
	PubDate     string
}

// Article is a deduplicated news item keyed by its canonical link.
type Article struct {
	ID          string
	Title       string
	Content     string
	SourceURL   string
	SourceName  string
	Category    string
	PublishedAt time.Time
	Processed   bool
	CreatedAt   time.Time
}

// PostStatus enumerates the outbound post lifecycle.
type PostStatus string

const (
	StatusPending PostStatus = "pending"
	StatusPosted  PostStatus = "posted"
	StatusFailed  PostStatus = "failed"
)

// Post is a unit of outbound content derived from exactly one Article.
// Invariants: posted implies TweetID set and ErrorMessage empty; failed
// implies ErrorMessage set.
type Post struct {
	ID           string
	ArticleID    string
	Content      string
	Hashtags     []string
	Status       PostStatus
	TweetID      string
	ErrorMessage string
	PostedAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ErrRateLimited marks a publish failure caused by the external API's rate
// limiting. The dispatcher leaves such posts pending instead of failing them.
var ErrRateLimited = errors.New("publishing rate limited")
