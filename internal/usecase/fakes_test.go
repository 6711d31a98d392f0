package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"newsdigest/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSourceStore struct {
	sources []domain.Source
	touched map[string]time.Time
	listErr error
}

func (f *fakeSourceStore) ListActive(ctx context.Context) ([]domain.Source, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sources, nil
}

func (f *fakeSourceStore) TouchFetched(ctx context.Context, id string, at time.Time) error {
	if f.touched == nil {
		f.touched = map[string]time.Time{}
	}
	f.touched[id] = at
	return nil
}

type fakeArticleStore struct {
	byURL     map[string]*domain.Article
	processed map[string]bool
	nextID    int
	createErr error
}

func newFakeArticleStore() *fakeArticleStore {
	return &fakeArticleStore{byURL: map[string]*domain.Article{}, processed: map[string]bool{}}
}

func (f *fakeArticleStore) ExistsByURL(ctx context.Context, sourceURL string) (bool, error) {
	_, ok := f.byURL[sourceURL]
	return ok, nil
}

func (f *fakeArticleStore) Create(ctx context.Context, article *domain.Article) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byURL[article.SourceURL]; ok {
		return errors.New("duplicate source_url")
	}
	f.nextID++
	article.ID = fmt.Sprintf("article-%d", f.nextID)
	article.CreatedAt = time.Now()
	stored := *article
	f.byURL[article.SourceURL] = &stored
	return nil
}

func (f *fakeArticleStore) MarkProcessed(ctx context.Context, id string) error {
	f.processed[id] = true
	return nil
}

type fakePostStore struct {
	posts     []*domain.Post
	nextID    int
	createErr error
}

func (f *fakePostStore) Create(ctx context.Context, post *domain.Post) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	post.ID = fmt.Sprintf("post-%d", f.nextID)
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	post.UpdatedAt = post.CreatedAt
	stored := *post
	f.posts = append(f.posts, &stored)
	return nil
}

func (f *fakePostStore) list(match func(*domain.Post) bool, limit int) []domain.Post {
	var out []domain.Post
	sorted := append([]*domain.Post(nil), f.posts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	for _, p := range sorted {
		if match(p) {
			out = append(out, *p)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func (f *fakePostStore) ListPending(ctx context.Context, limit int) ([]domain.Post, error) {
	return f.list(func(p *domain.Post) bool { return p.Status == domain.StatusPending }, limit), nil
}

func (f *fakePostStore) ListFailedSince(ctx context.Context, since time.Time, limit int) ([]domain.Post, error) {
	return f.list(func(p *domain.Post) bool {
		return p.Status == domain.StatusFailed && !p.UpdatedAt.Before(since)
	}, limit), nil
}

func (f *fakePostStore) find(id string) *domain.Post {
	for _, p := range f.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (f *fakePostStore) MarkPosted(ctx context.Context, id, tweetID string, at time.Time) error {
	p := f.find(id)
	if p == nil {
		return errors.New("post not found")
	}
	p.Status = domain.StatusPosted
	p.TweetID = tweetID
	p.PostedAt = at
	p.ErrorMessage = ""
	p.UpdatedAt = at
	return nil
}

func (f *fakePostStore) MarkFailed(ctx context.Context, id, message string) error {
	p := f.find(id)
	if p == nil {
		return errors.New("post not found")
	}
	p.Status = domain.StatusFailed
	p.ErrorMessage = message
	p.UpdatedAt = time.Now()
	return nil
}

func (f *fakePostStore) ResetToPending(ctx context.Context, id string) error {
	p := f.find(id)
	if p == nil {
		return errors.New("post not found")
	}
	p.Status = domain.StatusPending
	p.ErrorMessage = ""
	p.UpdatedAt = time.Now()
	return nil
}

type fakeFetcher struct {
	items map[string][]domain.Item
}

func (f *fakeFetcher) Fetch(ctx context.Context, feedURL string) []domain.Item {
	return f.items[feedURL]
}

type fakePublisher struct {
	sent []string
	errs []error
	ids  []string
}

func (f *fakePublisher) Publish(ctx context.Context, text string) (string, error) {
	call := len(f.sent)
	f.sent = append(f.sent, text)
	if call < len(f.errs) && f.errs[call] != nil {
		return "", f.errs[call]
	}
	if call < len(f.ids) {
		return f.ids[call], nil
	}
	return fmt.Sprintf("tweet-%d", call+1), nil
}
