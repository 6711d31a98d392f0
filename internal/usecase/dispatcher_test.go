package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"newsdigest/internal/domain"
)

func pendingPost(id string, createdAt time.Time) *domain.Post {
	return &domain.Post{
		ID:        id,
		Content:   "content " + id,
		Status:    domain.StatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func newTestDispatcher(posts *fakePostStore, pub *fakePublisher, pace time.Duration, now time.Time) *Dispatcher {
	return NewDispatcher(DispatcherDeps{
		Posts:     posts,
		Publisher: pub,
		Logger:    discardLogger(),
		Pace:      pace,
		Now:       func() time.Time { return now },
	})
}

func TestProcessPendingBatchSuccess(t *testing.T) {
	t.Parallel()

	now := time.Now()
	posts := &fakePostStore{posts: []*domain.Post{
		pendingPost("old", now.Add(-3*time.Minute)),
		pendingPost("mid", now.Add(-2*time.Minute)),
		pendingPost("new", now.Add(-1*time.Minute)),
		pendingPost("oldest", now.Add(-4*time.Minute)),
	}}
	pub := &fakePublisher{ids: []string{"t1", "t2", "t3"}}

	d := newTestDispatcher(posts, pub, time.Millisecond, now)
	result, err := d.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}

	// Newest first, capped at the batch size.
	if len(pub.sent) != batchSize {
		t.Fatalf("expected %d sends, got %d", batchSize, len(pub.sent))
	}
	if pub.sent[0] != "content new" || pub.sent[1] != "content mid" || pub.sent[2] != "content old" {
		t.Fatalf("unexpected send order: %v", pub.sent)
	}

	for _, id := range []string{"new", "mid", "old"} {
		p := posts.find(id)
		if p.Status != domain.StatusPosted {
			t.Fatalf("post %s not marked posted: %s", id, p.Status)
		}
		if p.TweetID == "" {
			t.Fatalf("post %s missing tweet id", id)
		}
		if p.ErrorMessage != "" {
			t.Fatalf("posted post %s carries error: %q", id, p.ErrorMessage)
		}
	}
	if posts.find("oldest").Status != domain.StatusPending {
		t.Fatal("post beyond batch size must stay pending")
	}

	if len(result.Results) != batchSize {
		t.Fatalf("expected %d results, got %d", batchSize, len(result.Results))
	}
}

func TestProcessPendingRateLimitSoftFailure(t *testing.T) {
	t.Parallel()

	now := time.Now()
	posts := &fakePostStore{posts: []*domain.Post{pendingPost("p1", now)}}
	pub := &fakePublisher{errs: []error{fmt.Errorf("twitter 429: %w", domain.ErrRateLimited)}}

	d := newTestDispatcher(posts, pub, time.Millisecond, now)
	result, err := d.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}

	p := posts.find("p1")
	if p.Status != domain.StatusPending {
		t.Fatalf("rate-limited post must stay pending, got %s", p.Status)
	}
	if p.ErrorMessage != "" {
		t.Fatalf("rate-limited post must not record an error, got %q", p.ErrorMessage)
	}
	if !result.Results[0].Retry {
		t.Fatal("result should flag the soft failure for retry")
	}
}

func TestProcessPendingHardFailure(t *testing.T) {
	t.Parallel()

	now := time.Now()
	posts := &fakePostStore{posts: []*domain.Post{pendingPost("p1", now)}}
	pub := &fakePublisher{errs: []error{errors.New("twitter 401 Unauthorized: bad token")}}

	d := newTestDispatcher(posts, pub, time.Millisecond, now)
	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}

	p := posts.find("p1")
	if p.Status != domain.StatusFailed {
		t.Fatalf("hard failure must mark post failed, got %s", p.Status)
	}
	if p.ErrorMessage == "" {
		t.Fatal("failed post must carry the error description")
	}
}

func TestProcessPendingEmptyQueue(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(&fakePostStore{}, &fakePublisher{}, time.Millisecond, time.Now())
	result, err := d.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}
	if result.Message != "No pending posts to process" {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}

func TestProcessPendingPacing(t *testing.T) {
	t.Parallel()

	const pace = 150 * time.Millisecond
	now := time.Now()

	// A single post must not wait out the pacing interval.
	single := &fakePostStore{posts: []*domain.Post{pendingPost("only", now)}}
	d := newTestDispatcher(single, &fakePublisher{}, pace, now)

	start := time.Now()
	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= pace {
		t.Fatalf("sole post should not be paced, took %v", elapsed)
	}

	// Two posts wait exactly one interval between the sends.
	double := &fakePostStore{posts: []*domain.Post{
		pendingPost("a", now.Add(-time.Minute)),
		pendingPost("b", now),
	}}
	d = newTestDispatcher(double, &fakePublisher{}, pace, now)

	start = time.Now()
	if _, err := d.ProcessPending(context.Background()); err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < pace {
		t.Fatalf("expected pacing between two sends, took only %v", elapsed)
	}
}

func TestProcessImmediate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	posts := &fakePostStore{posts: []*domain.Post{
		pendingPost("older", now.Add(-time.Minute)),
		pendingPost("newest", now),
	}}
	pub := &fakePublisher{ids: []string{"t-imm"}}

	d := newTestDispatcher(posts, pub, time.Hour, now)
	result, err := d.ProcessImmediate(context.Background())
	if err != nil {
		t.Fatalf("ProcessImmediate error: %v", err)
	}

	if !result.Posted || result.TweetID != "t-imm" {
		t.Fatalf("unexpected immediate result: %+v", result)
	}
	if len(pub.sent) != 1 || pub.sent[0] != "content newest" {
		t.Fatalf("immediate mode must send only the newest post: %v", pub.sent)
	}
	if posts.find("older").Status != domain.StatusPending {
		t.Fatal("older post must remain pending")
	}
}

func TestProcessImmediateEmptyQueue(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(&fakePostStore{}, &fakePublisher{}, time.Hour, time.Now())
	result, err := d.ProcessImmediate(context.Background())
	if err != nil {
		t.Fatalf("ProcessImmediate error: %v", err)
	}
	if result.Posted {
		t.Fatal("nothing should be posted from an empty queue")
	}
	if result.Message != "No pending posts for immediate posting" {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}

func TestProcessImmediateHardFailure(t *testing.T) {
	t.Parallel()

	now := time.Now()
	posts := &fakePostStore{posts: []*domain.Post{pendingPost("p1", now)}}
	pub := &fakePublisher{errs: []error{errors.New("twitter 500: boom")}}

	d := newTestDispatcher(posts, pub, time.Hour, now)
	if _, err := d.ProcessImmediate(context.Background()); err == nil {
		t.Fatal("expected error from failed immediate dispatch")
	}
	if posts.find("p1").Status != domain.StatusFailed {
		t.Fatal("hard immediate failure must mark the post failed")
	}
}

func TestRetryRecentFailuresWindow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	recent := pendingPost("recent", now.Add(-59*time.Minute))
	recent.Status = domain.StatusFailed
	recent.ErrorMessage = "boom"
	recent.UpdatedAt = now.Add(-59 * time.Minute)

	stale := pendingPost("stale", now.Add(-61*time.Minute))
	stale.Status = domain.StatusFailed
	stale.ErrorMessage = "boom"
	stale.UpdatedAt = now.Add(-61 * time.Minute)

	posts := &fakePostStore{posts: []*domain.Post{recent, stale}}
	d := newTestDispatcher(posts, &fakePublisher{}, time.Hour, now)

	result, err := d.RetryRecentFailures(context.Background())
	if err != nil {
		t.Fatalf("RetryRecentFailures error: %v", err)
	}

	if result.Requeued != 1 {
		t.Fatalf("expected 1 requeued post, got %d", result.Requeued)
	}

	requeued := posts.find("recent")
	if requeued.Status != domain.StatusPending {
		t.Fatalf("recent failure not requeued: %s", requeued.Status)
	}
	if requeued.ErrorMessage != "" {
		t.Fatalf("requeued post must have its error cleared, got %q", requeued.ErrorMessage)
	}

	if posts.find("stale").Status != domain.StatusFailed {
		t.Fatal("failure outside the window must stay abandoned")
	}
}

func TestRetryRecentFailuresLimit(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var stored []*domain.Post
	for i := 0; i < 4; i++ {
		p := pendingPost(fmt.Sprintf("f%d", i), now.Add(-time.Duration(i+1)*time.Minute))
		p.Status = domain.StatusFailed
		p.ErrorMessage = "boom"
		p.UpdatedAt = p.CreatedAt
		stored = append(stored, p)
	}

	posts := &fakePostStore{posts: stored}
	d := newTestDispatcher(posts, &fakePublisher{}, time.Hour, now)

	result, err := d.RetryRecentFailures(context.Background())
	if err != nil {
		t.Fatalf("RetryRecentFailures error: %v", err)
	}
	if result.Requeued != retryLimit {
		t.Fatalf("expected %d requeued posts, got %d", retryLimit, result.Requeued)
	}
}
