package scrape_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/coinpilot/internal/browser"
	"github.com/raysh454/coinpilot/internal/scrape"
	"github.com/raysh454/coinpilot/internal/steel"
	"github.com/raysh454/coinpilot/internal/webclient"
)

const createPage = `<!doctype html>
<html><head>
<title> Create a coin </title>
<meta name="description" content="Launch your token in seconds">
<style>.x{color:red}</style>
</head><body>
<a href="/board">Board</a> <a href="https://t.me/x#top">tg</a> <a href="/board">dup</a> <a href="#">skip</a>
<form method="post" action="/api/create">
  <input name="name"><input name="ticker"><textarea name="description"></textarea>
  <input type="file" name="image"><input type="submit" value="go">
</form>
<script>var hidden = "not counted";</script>
<p>Fair launch for everyone</p>
</body></html>`

func TestSummarize(t *testing.T) {
	t.Parallel()
	sum, err := scrape.Summarize([]byte(createPage), "https://sandbox.local/create")
	require.NoError(t, err)

	assert.Equal(t, "Create a coin", sum.Title)
	assert.Equal(t, "Launch your token in seconds", sum.Description)
	assert.Equal(t, []string{"https://sandbox.local/board", "https://t.me/x"}, sum.Links)
	require.Len(t, sum.Forms, 1)
	assert.Equal(t, "POST", sum.Forms[0].Method)
	assert.Equal(t, []string{"name", "ticker", "description", "image"}, sum.Forms[0].Fields)
	assert.Contains(t, sum.Excerpt, "Fair launch for everyone")
	assert.NotContains(t, sum.Excerpt, "not counted")
	assert.NotContains(t, sum.Excerpt, "color")
}

func TestSteelScraper(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/scrape":
			_, _ = io.WriteString(w, `{"content":{"html":"<title>Steel page</title><a href='/x'>x</a>"},"metadata":{"statusCode":200}}`)
		case "/v1/screenshot":
			_, _ = w.Write([]byte("\x89PNG-steel"))
		}
	}))
	defer srv.Close()

	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, nil, nil)
	require.NoError(t, err)
	s := scrape.NewSteelScraper(steel.NewLocalClient(srv.URL+"/v1", wc, nil), nil)

	res, err := s.Scrape(context.Background(), "https://example.com/a/", time.Second)
	require.NoError(t, err)
	require.NotNil(t, res.Summary)
	assert.Equal(t, "Steel page", res.Summary.Title)
	assert.Equal(t, []string{"https://example.com/x"}, res.Summary.Links)
	assert.Contains(t, string(res.Data), "metadata")

	path := filepath.Join(t.TempDir(), "shots", "screenshot.png")
	got, err := s.Screenshot(context.Background(), "https://example.com", true, path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "\x89PNG-steel", string(data))
}

func TestRenderScraper_ScrapeWithNetHTTP(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, createPage)
	}))
	defer srv.Close()

	wc, err := webclient.NewWebClient(webclient.Config{Client: webclient.ClientNetHTTP}, nil)
	require.NoError(t, err)
	r := scrape.NewRenderScraper(wc, browser.DefaultConfig(), nil)

	res, err := r.Scrape(context.Background(), srv.URL+"/create", 0)
	require.NoError(t, err)
	assert.Equal(t, "Create a coin", res.Summary.Title)
	assert.Contains(t, string(res.Data), `"status":200`)

	_, err = r.Scrape(context.Background(), srv.URL+"/missing", 0)
	require.Error(t, err)
}

func TestRenderScraper_Screenshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, createPage)
	}))
	defer srv.Close()

	cfg := browser.DefaultConfig()
	cfg.IdleAfter = 100 * time.Millisecond
	r := scrape.NewRenderScraper(nil, cfg, nil)

	path := filepath.Join(t.TempDir(), "screenshot.png")
	_, err := r.Screenshot(context.Background(), srv.URL, false, path)
	if errors.Is(err, browser.ErrConnection) {
		t.Skipf("Skipping render screenshot test (environment does not support chromedp): %v", err)
	}
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(data[:4]))
}
