// Package social posts to and reads from the social network's v1.1 REST API.
package social

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/webclient"
)

const DefaultAPIURL = "https://api.twitter.com/1.1"

var ErrMissingCredentials = errors.New("social: missing credentials")

// Credentials are the four OAuth 1.0a user-context secrets.
type Credentials struct {
	APIKey            string
	APISecretKey      string
	AccessToken       string
	AccessTokenSecret string
}

// Missing lists the names of unset fields.
func (c Credentials) Missing() []string {
	var out []string
	for _, f := range []struct{ name, v string }{
		{"TWITTER_API_KEY", c.APIKey},
		{"TWITTER_API_SECRET_KEY", c.APISecretKey},
		{"TWITTER_ACCESS_TOKEN", c.AccessToken},
		{"TWITTER_ACCESS_TOKEN_SECRET", c.AccessTokenSecret},
	} {
		if strings.TrimSpace(f.v) == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// APIError carries a non-2xx response.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("social %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

type User struct {
	ID         int64  `json:"id"`
	ScreenName string `json:"screen_name"`
}

type Tweet struct {
	ID                  int64  `json:"id"`
	IDStr               string `json:"id_str"`
	Text                string `json:"text"`
	FullText            string `json:"full_text"`
	CreatedAt           string `json:"created_at"`
	InReplyToScreenName string `json:"in_reply_to_screen_name"`
	User                User   `json:"user"`
}

// Body prefers the extended text.
func (t Tweet) Body() string {
	if t.FullText != "" {
		return t.FullText
	}
	return t.Text
}

// CreatedTime parses the API's created_at layout.
func (t Tweet) CreatedTime() (time.Time, error) {
	return time.Parse(time.RubyDate, t.CreatedAt)
}

type DirectMessageEvent struct {
	ID               string `json:"id"`
	CreatedTimestamp string `json:"created_timestamp"`
	MessageCreate    struct {
		SenderID    string `json:"sender_id"`
		MessageData struct {
			Text string `json:"text"`
		} `json:"message_data"`
	} `json:"message_create"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	wc      webclient.WebClient
	logger  logging.Logger
}

// NewClient builds a client whose requests are signed with creds.
func NewClient(ctx context.Context, baseURL string, creds Credentials, logger logging.Logger) (*Client, error) {
	if missing := creds.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	config := oauth1.NewConfig(creds.APIKey, creds.APISecretKey)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	httpClient := config.Client(ctx, token)
	httpClient.Timeout = 30 * time.Second

	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, logger, httpClient)
	if err != nil {
		return nil, err
	}
	return NewClientWithWebClient(baseURL, wc, logger), nil
}

// NewClientWithWebClient uses wc as is. Signing is the caller's concern.
func NewClientWithWebClient(baseURL string, wc webclient.WebClient, logger logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		wc:      wc,
		logger:  logger.With(logging.Field{Key: "component", Value: "social"}),
	}
}

func (c *Client) Close() error { return c.wc.Close() }

func (c *Client) do(ctx context.Context, req *webclient.Request, endpoint string, out any) error {
	resp, err := c.wc.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("social %s: %w", endpoint, err)
	}
	if !resp.OK() {
		apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(resp.Body))}
		c.logger.Error("social api error",
			logging.Field{Key: "endpoint", Value: endpoint},
			logging.Field{Key: "status", Value: resp.StatusCode})
		return apiErr
	}
	if out == nil {
		return nil
	}
	return resp.DecodeJSON(out)
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return c.do(ctx, &webclient.Request{Method: http.MethodGet, URL: u}, endpoint, out)
}

// VerifyCredentials returns the authenticated user.
func (c *Client) VerifyCredentials(ctx context.Context) (*User, error) {
	var u User
	if err := c.get(ctx, "/account/verify_credentials.json", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// PostStatus publishes text.
func (c *Client) PostStatus(ctx context.Context, text string) (*Tweet, error) {
	form := url.Values{"status": {text}}
	req := &webclient.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/statuses/update.json",
		Headers: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:    []byte(form.Encode()),
	}
	var t Tweet
	if err := c.do(ctx, req, "/statuses/update.json", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

const searchPageSize = 100

// SearchTweets pages backwards through results with max_id until limit
// tweets are collected or the results run out.
func (c *Client) SearchTweets(ctx context.Context, query string, limit int) ([]Tweet, error) {
	var out []Tweet
	var maxID int64
	for len(out) < limit {
		q := url.Values{
			"q":          {query},
			"tweet_mode": {"extended"},
			"count":      {strconv.Itoa(min(searchPageSize, limit-len(out)))},
		}
		if maxID > 0 {
			q.Set("max_id", strconv.FormatInt(maxID, 10))
		}
		var page struct {
			Statuses []Tweet `json:"statuses"`
		}
		if err := c.get(ctx, "/search/tweets.json", q, &page); err != nil {
			return out, err
		}
		if len(page.Statuses) == 0 {
			break
		}
		for _, t := range page.Statuses {
			if len(out) == limit {
				break
			}
			out = append(out, t)
			if maxID == 0 || t.ID <= maxID {
				maxID = t.ID - 1
			}
		}
	}
	return out, nil
}

// ListDirectMessages follows next_cursor until limit events are collected.
func (c *Client) ListDirectMessages(ctx context.Context, limit int) ([]DirectMessageEvent, error) {
	var out []DirectMessageEvent
	cursor := ""
	for len(out) < limit {
		q := url.Values{"count": {strconv.Itoa(min(50, limit-len(out)))}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page struct {
			Events     []DirectMessageEvent `json:"events"`
			NextCursor string               `json:"next_cursor"`
		}
		if err := c.get(ctx, "/direct_messages/events/list.json", q, &page); err != nil {
			return out, err
		}
		for _, ev := range page.Events {
			if len(out) == limit {
				break
			}
			out = append(out, ev)
		}
		if page.NextCursor == "" || len(page.Events) == 0 {
			break
		}
		cursor = page.NextCursor
	}
	return out, nil
}
