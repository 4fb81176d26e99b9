// Package steel talks to the Steel browser service: the cloud session API used
// to obtain a remote browser, and the self-hosted scrape/screenshot endpoints.
package steel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/webclient"
)

var (
	// ErrMissingAPIKey is returned by NewClient when no key is configured.
	ErrMissingAPIKey = errors.New("steel: missing API key")
	// ErrSessionCreation wraps every failure to open a session.
	ErrSessionCreation = errors.New("steel: session creation failed")
)

const (
	DefaultAPIURL     = "https://api.steel.dev"
	DefaultConnectURL = "wss://connect.steel.dev"

	apiKeyHeader = "steel-api-key"
)

// Session is one remote browser session.
type Session struct {
	ID        string `json:"id"`
	ViewerURL string `json:"session_viewer_url"`
	// ConnectURL is the DevTools WebSocket endpoint for the session.
	ConnectURL string `json:"connect_url"`
}

type Config struct {
	APIKey     string
	APIURL     string
	ConnectURL string
}

// Client creates and releases cloud sessions.
type Client struct {
	apiKey     string
	apiURL     string
	connectURL string
	wc         webclient.WebClient
	logger     logging.Logger
}

// NewClient validates the credential without touching the network.
func NewClient(cfg Config, wc webclient.WebClient, logger logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if wc == nil {
		return nil, errors.New("steel: nil webclient")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	connectURL := cfg.ConnectURL
	if connectURL == "" {
		connectURL = DefaultConnectURL
	}
	return &Client{
		apiKey:     cfg.APIKey,
		apiURL:     apiURL,
		connectURL: connectURL,
		wc:         wc,
		logger:     logger.With(logging.Field{Key: "component", Value: "steel"}),
	}, nil
}

type createResponse struct {
	ID               string `json:"id"`
	SessionViewerURL string `json:"sessionViewerUrl"`
	ViewerURLSnake   string `json:"session_viewer_url"`
	WebsocketURL     string `json:"websocketUrl"`
}

// Create opens a session. Any transport error, non-2xx status or malformed
// body is reported as ErrSessionCreation.
func (c *Client) Create(ctx context.Context) (*Session, error) {
	req, err := webclient.NewJSONRequest(http.MethodPost, c.apiURL+"/v1/sessions", map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreation, err)
	}
	req.Headers.Set(apiKeyHeader, c.apiKey)

	resp, err := c.wc.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}
	if !resp.OK() {
		c.logger.Error("session create rejected",
			logging.Field{Key: "status", Value: resp.StatusCode},
			logging.Field{Key: "body", Value: string(resp.Body)})
		return nil, fmt.Errorf("%w: status %d", ErrSessionCreation, resp.StatusCode)
	}

	var body createResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}
	if body.ID == "" {
		return nil, fmt.Errorf("%w: response carried no session id", ErrSessionCreation)
	}

	viewer := body.SessionViewerURL
	if viewer == "" {
		viewer = body.ViewerURLSnake
	}
	sess := &Session{
		ID:         body.ID,
		ViewerURL:  viewer,
		ConnectURL: c.ConnectURLFor(body.ID),
	}
	c.logger.Info("session created",
		logging.Field{Key: "session_id", Value: sess.ID},
		logging.Field{Key: "viewer_url", Value: sess.ViewerURL})
	return sess, nil
}

// ConnectURLFor builds the DevTools endpoint for a session id.
func (c *Client) ConnectURLFor(id string) string {
	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("sessionId", id)
	return c.connectURL + "?" + q.Encode()
}

// Release ends a session. Callers invoke it at most once per session.
func (c *Client) Release(ctx context.Context, id string) error {
	req, err := webclient.NewJSONRequest(http.MethodPost,
		c.apiURL+"/v1/sessions/"+url.PathEscape(id)+"/release", nil)
	if err != nil {
		return err
	}
	req.Headers.Set(apiKeyHeader, c.apiKey)

	resp, err := c.wc.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("release session %s: %w", id, err)
	}
	if !resp.OK() {
		return fmt.Errorf("release session %s: status %d", id, resp.StatusCode)
	}
	c.logger.Info("session released", logging.Field{Key: "session_id", Value: id})
	return nil
}
