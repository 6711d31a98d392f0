package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"newsdigest/internal/domain"
	"newsdigest/internal/ports"
)

const (
	// batchSize keeps each cycle small to stay under the publishing API's
	// burst limits.
	batchSize    = 3
	paceInterval = 10 * time.Second

	retryLimit  = 2
	retryWindow = time.Hour
)

// PostResult reports the outcome of one publish attempt.
type PostResult struct {
	Success bool   `json:"success"`
	PostID  string `json:"post_id"`
	TweetID string `json:"tweet_id,omitempty"`
	Error   string `json:"error,omitempty"`
	Retry   bool   `json:"retry,omitempty"`
}

// BatchResult summarizes a batch dispatch cycle.
type BatchResult struct {
	Message string       `json:"message"`
	Results []PostResult `json:"results,omitempty"`
}

// RetryResult summarizes a requeue pass over recent failures.
type RetryResult struct {
	Message  string `json:"message"`
	Requeued int    `json:"requeued"`
}

// ImmediateResult reports a single-post immediate dispatch.
type ImmediateResult struct {
	Posted  bool   `json:"posted"`
	Message string `json:"message"`
	TweetID string `json:"tweet_id,omitempty"`
}

// DispatcherDeps wires the driven adapters into the posting workflow.
type DispatcherDeps struct {
	Posts     ports.PostStore
	Publisher ports.Publisher
	Logger    *slog.Logger
	// Pace overrides the inter-post interval; zero keeps the default.
	Pace time.Duration
	Now  func() time.Time
}

// Dispatcher drains the pending queue through the signed publishing API,
// enforcing strict sequencing with fixed pacing between sends.
type Dispatcher struct {
	posts     ports.PostStore
	publisher ports.Publisher
	logger    *slog.Logger
	pace      time.Duration
	now       func() time.Time
}

// NewDispatcher constructs the posting component.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	pace := deps.Pace
	if pace <= 0 {
		pace = paceInterval
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		posts:     deps.Posts,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		pace:      pace,
		now:       now,
	}
}

// ProcessPending attempts up to batchSize pending posts, newest first.
// A fresh limiter with a single burst token paces the batch: the first send
// proceeds immediately, each subsequent send waits out the interval, and
// nothing waits after the last send.
func (d *Dispatcher) ProcessPending(ctx context.Context) (BatchResult, error) {
	posts, err := d.posts.ListPending(ctx, batchSize)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list pending posts: %w", err)
	}

	if len(posts) == 0 {
		return BatchResult{Message: "No pending posts to process"}, nil
	}

	d.logger.Info("batch dispatch started", "posts", len(posts))

	pacer := rate.NewLimiter(rate.Every(d.pace), 1)
	results := make([]PostResult, 0, len(posts))
	for _, post := range posts {
		if err := pacer.Wait(ctx); err != nil {
			return BatchResult{}, fmt.Errorf("pacing interrupted: %w", err)
		}
		results = append(results, d.attempt(ctx, post))
	}

	return BatchResult{
		Message: fmt.Sprintf("Processed %d posts", len(results)),
		Results: results,
	}, nil
}

// ProcessImmediate attempts only the single newest pending post, with no
// pacing, for low-latency on-demand triggering.
func (d *Dispatcher) ProcessImmediate(ctx context.Context) (ImmediateResult, error) {
	posts, err := d.posts.ListPending(ctx, 1)
	if err != nil {
		return ImmediateResult{}, fmt.Errorf("list pending posts: %w", err)
	}
	if len(posts) == 0 {
		return ImmediateResult{Message: "No pending posts for immediate posting"}, nil
	}

	result := d.attempt(ctx, posts[0])
	if !result.Success {
		if result.Retry {
			return ImmediateResult{Message: "Rate limited - post left pending"}, nil
		}
		return ImmediateResult{}, fmt.Errorf("immediate posting failed: %s", result.Error)
	}

	return ImmediateResult{
		Posted:  true,
		Message: "Immediate tweet posted successfully",
		TweetID: result.TweetID,
	}, nil
}

// attempt publishes one post and transitions its status. A rate-limit
// rejection is a soft failure: the post stays pending for a later cycle.
func (d *Dispatcher) attempt(ctx context.Context, post domain.Post) PostResult {
	tweetID, err := d.publisher.Publish(ctx, post.Content)
	if err == nil {
		if markErr := d.posts.MarkPosted(ctx, post.ID, tweetID, d.now()); markErr != nil {
			d.logger.Error("record posted status", "post_id", post.ID, "error", markErr)
		}
		d.logger.Info("tweet posted", "post_id", post.ID, "tweet_id", tweetID)
		return PostResult{Success: true, PostID: post.ID, TweetID: tweetID}
	}

	if errors.Is(err, domain.ErrRateLimited) {
		d.logger.Warn("rate limit hit, post left pending", "post_id", post.ID)
		return PostResult{PostID: post.ID, Error: "Rate limit - will retry", Retry: true}
	}

	d.logger.Warn("tweet failed", "post_id", post.ID, "error", err)
	if markErr := d.posts.MarkFailed(ctx, post.ID, err.Error()); markErr != nil {
		d.logger.Error("record failed status", "post_id", post.ID, "error", markErr)
	}
	return PostResult{PostID: post.ID, Error: err.Error()}
}

// RetryRecentFailures requeues up to retryLimit posts that failed within the
// retry window. Older failures are permanently abandoned by this mechanism.
func (d *Dispatcher) RetryRecentFailures(ctx context.Context) (RetryResult, error) {
	cutoff := d.now().Add(-retryWindow)

	failed, err := d.posts.ListFailedSince(ctx, cutoff, retryLimit)
	if err != nil {
		return RetryResult{}, fmt.Errorf("list failed posts: %w", err)
	}
	if len(failed) == 0 {
		return RetryResult{Message: "No failed posts to retry"}, nil
	}

	requeued := 0
	for _, post := range failed {
		if err := d.posts.ResetToPending(ctx, post.ID); err != nil {
			d.logger.Warn("requeue failed post", "post_id", post.ID, "error", err)
			continue
		}
		d.logger.Info("post requeued for retry", "post_id", post.ID)
		requeued++
	}

	return RetryResult{
		Message:  fmt.Sprintf("Retry process completed for %d posts", requeued),
		Requeued: requeued,
	}, nil
}
