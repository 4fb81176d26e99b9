package social

import (
	"context"
	"fmt"
	"time"

	"github.com/raysh454/coinpilot/internal/logging"
)

// DefaultReadLimit bounds both the reply search and the DM listing.
const DefaultReadLimit = 50

type Reply struct {
	ID        int64  `json:"id"`
	User      string `json:"user"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type DirectMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// Inbox is the content of replies_and_dms.json.
type Inbox struct {
	Replies []Reply         `json:"replies"`
	DMs     []DirectMessage `json:"dms"`
}

// ReadAPI is the read side of the API. *Client implements it.
type ReadAPI interface {
	VerifyCredentials(ctx context.Context) (*User, error)
	SearchTweets(ctx context.Context, query string, limit int) ([]Tweet, error)
	ListDirectMessages(ctx context.Context, limit int) ([]DirectMessageEvent, error)
}

type Reader struct {
	api    ReadAPI
	limit  int
	logger logging.Logger
}

func NewReader(api ReadAPI, limit int, logger logging.Logger) *Reader {
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Reader{api: api, limit: limit, logger: logger.With(logging.Field{Key: "component", Value: "reader"})}
}

// Collect fetches replies addressed to the authenticated user and the
// latest direct messages. A failing call is logged and leaves its part of the
// inbox empty; only cancellation of ctx is returned as an error.
func (r *Reader) Collect(ctx context.Context) (*Inbox, error) {
	inbox := &Inbox{Replies: []Reply{}, DMs: []DirectMessage{}}

	me, err := r.api.VerifyCredentials(ctx)
	if err != nil {
		r.logger.Error("verify credentials failed, skipping replies", logging.Field{Key: "error", Value: err})
	} else if replies, err := r.FetchReplies(ctx, me.ScreenName); err != nil {
		r.logger.Error("fetching replies failed", logging.Field{Key: "error", Value: err})
	} else {
		inbox.Replies = replies
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if dms, err := r.FetchDMs(ctx); err != nil {
		r.logger.Error("fetching direct messages failed", logging.Field{Key: "error", Value: err})
	} else {
		inbox.DMs = dms
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return inbox, nil
}

// FetchReplies searches mentions of screenName and keeps only direct replies.
func (r *Reader) FetchReplies(ctx context.Context, screenName string) ([]Reply, error) {
	r.logger.Info("fetching replies", logging.Field{Key: "screen_name", Value: screenName})
	tweets, err := r.api.SearchTweets(ctx, "@"+screenName, r.limit)
	if err != nil {
		return nil, fmt.Errorf("search replies: %w", err)
	}
	out := []Reply{}
	for _, t := range tweets {
		if t.InReplyToScreenName != screenName {
			continue
		}
		created := t.CreatedAt
		if ts, err := t.CreatedTime(); err == nil {
			created = ts.UTC().Format(time.RFC3339)
		}
		out = append(out, Reply{ID: t.ID, User: t.User.ScreenName, Text: t.Body(), CreatedAt: created})
	}
	return out, nil
}

func (r *Reader) FetchDMs(ctx context.Context) ([]DirectMessage, error) {
	r.logger.Info("fetching direct messages")
	events, err := r.api.ListDirectMessages(ctx, r.limit)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	out := make([]DirectMessage, 0, len(events))
	for _, ev := range events {
		out = append(out, DirectMessage{
			ID:        ev.ID,
			Sender:    ev.MessageCreate.SenderID,
			Text:      ev.MessageCreate.MessageData.Text,
			CreatedAt: ev.CreatedTimestamp,
		})
	}
	return out, nil
}
