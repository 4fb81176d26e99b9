package social

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/raysh454/coinpilot/internal/history"
	"github.com/raysh454/coinpilot/internal/logging"
)

// DefaultPostDelay is the pause between consecutive posts.
const DefaultPostDelay = 60 * time.Second

// StatusPoster publishes one message. *Client implements it.
type StatusPoster interface {
	PostStatus(ctx context.Context, text string) (*Tweet, error)
}

// PostRecorder stores post attempts. *history.Store implements it.
type PostRecorder interface {
	RecordPost(ctx context.Context, post history.Post) (history.Post, error)
}

// ReadTweets returns the trimmed non-empty lines of path.
func ReadTweets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read tweets: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tweets: %w", err)
	}
	return out, nil
}

// PostSummary counts outcomes of PostAll.
type PostSummary struct {
	Posted int
	Failed int
}

// Poster publishes a list of messages one at a time with a fixed spacing.
type Poster struct {
	client   StatusPoster
	delay    time.Duration
	recorder PostRecorder
	logger   logging.Logger
}

// NewPoster returns a Poster. delay < 0 means DefaultPostDelay; 0 disables pacing.
func NewPoster(client StatusPoster, delay time.Duration, recorder PostRecorder, logger logging.Logger) *Poster {
	if delay < 0 {
		delay = DefaultPostDelay
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Poster{
		client:   client,
		delay:    delay,
		recorder: recorder,
		logger:   logger.With(logging.Field{Key: "component", Value: "poster"}),
	}
}

// PostAll posts tweets in order. A failed post is logged and recorded and
// the next one is still attempted. Only context cancellation stops the loop.
func (p *Poster) PostAll(ctx context.Context, tweets []string) (PostSummary, error) {
	var sum PostSummary
	limit := rate.Inf
	if p.delay > 0 {
		limit = rate.Every(p.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i, text := range tweets {
		if err := limiter.Wait(ctx); err != nil {
			return sum, err
		}
		idx := logging.Field{Key: "index", Value: i + 1}

		rec := history.Post{Text: text, PostedAt: time.Now()}
		tweet, err := p.client.PostStatus(ctx, text)
		if err != nil {
			sum.Failed++
			rec.Status, rec.Error = history.StatusFailed, err.Error()
			p.logger.Error("post failed", idx, logging.Field{Key: "error", Value: err})
		} else {
			sum.Posted++
			rec.Status, rec.TweetID = history.StatusPosted, tweet.IDStr
			p.logger.Info("posted", idx, logging.Field{Key: "tweet_id", Value: tweet.IDStr})
		}

		if p.recorder != nil {
			if _, err := p.recorder.RecordPost(context.WithoutCancel(ctx), rec); err != nil {
				p.logger.Warn("failed to record post", idx, logging.Field{Key: "error", Value: err})
			}
		}
	}
	return sum, nil
}
