package steel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/webclient"
)

const DefaultLocalURL = "http://0.0.0.0:3000/v1"

// LocalClient calls a self-hosted Steel instance's scrape and screenshot endpoints.
type LocalClient struct {
	baseURL string
	wc      webclient.WebClient
	logger  logging.Logger
}

func NewLocalClient(baseURL string, wc webclient.WebClient, logger logging.Logger) *LocalClient {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultLocalURL
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &LocalClient{
		baseURL: baseURL,
		wc:      wc,
		logger:  logger.With(logging.Field{Key: "component", Value: "steel-local"}),
	}
}

// Scrape returns the service's JSON body unchanged.
func (c *LocalClient) Scrape(ctx context.Context, url string, waitFor int) (json.RawMessage, error) {
	resp, err := c.post(ctx, "/scrape", map[string]any{"url": url, "waitFor": waitFor})
	if err != nil {
		return nil, err
	}
	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("scrape %s: service returned non-JSON body", url)
	}
	return json.RawMessage(resp.Body), nil
}

// Screenshot returns the raw image bytes.
func (c *LocalClient) Screenshot(ctx context.Context, url string, fullPage bool) ([]byte, error) {
	resp, err := c.post(ctx, "/screenshot", map[string]any{"url": url, "fullPage": fullPage})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *LocalClient) post(ctx context.Context, path string, payload any) (*webclient.Response, error) {
	req, err := webclient.NewJSONRequest(http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.wc.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("steel %s: %w", path, err)
	}
	if !resp.OK() {
		c.logger.Error("steel request failed",
			logging.Field{Key: "path", Value: path},
			logging.Field{Key: "status", Value: resp.StatusCode})
		return nil, fmt.Errorf("steel %s: status %d", path, resp.StatusCode)
	}
	return resp, nil
}
