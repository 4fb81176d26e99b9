// Package coinapi wraps the coin platform's management REST API.
package coinapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/webclient"
)

const DefaultBaseURL = "https://api.pump.fun"

var ErrMissingAPIKey = errors.New("coinapi: missing API key")

// APIError is returned for any status other than 200.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coinapi %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Details is the mutable part of a coin listing.
type Details struct {
	Description string `json:"description,omitempty" yaml:"description"`
	Website     string `json:"website,omitempty" yaml:"website"`
	Twitter     string `json:"twitter,omitempty" yaml:"twitter"`
	Telegram    string `json:"telegram,omitempty" yaml:"telegram"`
}

type Client struct {
	baseURL string
	apiKey  string
	wc      webclient.WebClient
	logger  logging.Logger
}

func NewClient(baseURL, apiKey string, wc webclient.WebClient, logger logging.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		wc:      wc,
		logger:  logger.With(logging.Field{Key: "component", Value: "coinapi"}),
	}, nil
}

// UpdateCoinDetails issues PUT /coins/{ticker}.
func (c *Client) UpdateCoinDetails(ctx context.Context, ticker string, details Details) (json.RawMessage, error) {
	return c.call(ctx, "update", http.MethodPut, c.coinURL(ticker), details)
}

// FetchCoinStats issues GET /coins/{ticker}/stats.
func (c *Client) FetchCoinStats(ctx context.Context, ticker string) (json.RawMessage, error) {
	return c.call(ctx, "stats", http.MethodGet, c.coinURL(ticker)+"/stats", nil)
}

// PromoteCoin issues POST /coins/{ticker}/promote.
func (c *Client) PromoteCoin(ctx context.Context, ticker string) (json.RawMessage, error) {
	return c.call(ctx, "promote", http.MethodPost, c.coinURL(ticker)+"/promote", nil)
}

func (c *Client) coinURL(ticker string) string {
	return c.baseURL + "/coins/" + url.PathEscape(ticker)
}

func (c *Client) call(ctx context.Context, op, method, url string, body any) (json.RawMessage, error) {
	req, err := webclient.NewJSONRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.Headers.Set("Authorization", "Bearer "+c.apiKey)
	req.Headers.Set("Content-Type", "application/json")

	c.logger.Info("coin api request", logging.Field{Key: "op", Value: op}, logging.Field{Key: "url", Value: url})
	resp, err := c.wc.Do(ctx, req)
	if err != nil {
		c.logger.Error("coin api request failed", logging.Field{Key: "op", Value: op}, logging.Field{Key: "error", Value: err})
		return nil, fmt.Errorf("coinapi %s: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(resp.Body))}
		c.logger.Error(fmt.Sprintf("coin api %s returned status %d", op, resp.StatusCode),
			logging.Field{Key: "op", Value: op},
			logging.Field{Key: "status", Value: resp.StatusCode},
			logging.Field{Key: "body", Value: apiErr.Body})
		return nil, apiErr
	}
	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("coinapi %s: response is not JSON", op)
	}
	return json.RawMessage(resp.Body), nil
}
