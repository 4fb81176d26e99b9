// Package scrape fetches pages for the /init and /screenshot endpoints.
// Two backends exist: "steel" delegates to a self-hosted Steel instance and
// "render" fetches through a webclient and screenshots with a local browser.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raysh454/coinpilot/internal/browser"
	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/steel"
	"github.com/raysh454/coinpilot/internal/webclient"
)

const (
	BackendSteel  = "steel"
	BackendRender = "render"
)

// Result is what /init returns.
type Result struct {
	URL     string          `json:"url"`
	Data    json.RawMessage `json:"data,omitempty"`
	Summary *Summary        `json:"summary,omitempty"`
}

type Scraper interface {
	Scrape(ctx context.Context, url string, waitFor time.Duration) (*Result, error)
	// Screenshot writes a PNG to path and returns path.
	Screenshot(ctx context.Context, url string, fullPage bool, path string) (string, error)
}

// SteelScraper forwards to Steel's /scrape and /screenshot.
type SteelScraper struct {
	client *steel.LocalClient
	logger logging.Logger
}

func NewSteelScraper(client *steel.LocalClient, logger logging.Logger) *SteelScraper {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &SteelScraper{client: client, logger: logger.With(logging.Field{Key: "component", Value: "scrape-steel"})}
}

func (s *SteelScraper) Scrape(ctx context.Context, url string, waitFor time.Duration) (*Result, error) {
	raw, err := s.client.Scrape(ctx, url, int(waitFor/time.Millisecond))
	if err != nil {
		return nil, err
	}
	res := &Result{URL: url, Data: raw}
	if page := htmlFromSteel(raw); page != "" {
		if sum, err := Summarize([]byte(page), url); err == nil {
			res.Summary = sum
		} else {
			s.logger.Warn("summary failed", logging.Field{Key: "url", Value: url}, logging.Field{Key: "error", Value: err})
		}
	}
	return res, nil
}

// htmlFromSteel digs the page HTML out of a scrape response, which nests it
// under content.html in current Steel releases and at the top level in older ones.
func htmlFromSteel(raw json.RawMessage) string {
	var body struct {
		HTML    string `json:"html"`
		Content struct {
			HTML string `json:"html"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Content.HTML != "" {
		return body.Content.HTML
	}
	return body.HTML
}

func (s *SteelScraper) Screenshot(ctx context.Context, url string, fullPage bool, path string) (string, error) {
	img, err := s.client.Screenshot(ctx, url, fullPage)
	if err != nil {
		return "", err
	}
	if err := writeImage(path, img); err != nil {
		return "", err
	}
	return path, nil
}

func writeImage(path string, img []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return fmt.Errorf("write screenshot %s: %w", path, err)
	}
	return nil
}

// RenderScraper fetches with wc and screenshots with a local Chrome started
// per call.
type RenderScraper struct {
	wc         webclient.WebClient
	browserCfg browser.Config
	logger     logging.Logger
}

func NewRenderScraper(wc webclient.WebClient, browserCfg browser.Config, logger logging.Logger) *RenderScraper {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &RenderScraper{wc: wc, browserCfg: browserCfg, logger: logger.With(logging.Field{Key: "component", Value: "scrape-render"})}
}

func (r *RenderScraper) Scrape(ctx context.Context, url string, waitFor time.Duration) (*Result, error) {
	resp, err := r.wc.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	if waitFor > 0 {
		select {
		case <-time.After(waitFor):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	sum, err := Summarize(resp.Body, url)
	if err != nil {
		return nil, err
	}
	data, _ := json.Marshal(map[string]any{
		"status":       resp.StatusCode,
		"content_type": resp.Headers.Get("Content-Type"),
		"html":         string(resp.Body),
	})
	return &Result{URL: url, Data: data, Summary: sum}, nil
}

func (r *RenderScraper) Screenshot(ctx context.Context, url string, fullPage bool, path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	conn := browser.NewConnector(r.browserCfg, r.logger)
	defer conn.Close()

	page, err := conn.Launch(ctx)
	if err != nil {
		return "", err
	}
	if err := page.Navigate(ctx, url); err != nil {
		return "", err
	}
	if fullPage {
		err = page.Screenshot(ctx, path)
	} else {
		err = page.ScreenshotViewport(ctx, path)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}
