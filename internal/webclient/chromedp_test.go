package webclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raysh454/coinpilot/internal/webclient"
)

func newChromedpOrSkip(t *testing.T) *webclient.ChromedpClient {
	t.Helper()
	client, err := webclient.NewChromedpClient(webclient.Config{Client: webclient.ClientChromedp}, &noopLogger{})
	if err != nil {
		t.Skipf("Skipping chromedp test (environment does not support chromedp): %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// TestChromedpClient_RendersScriptOutput verifies the rendered DOM, not the raw body, is returned
func TestChromedpClient_RendersScriptOutput(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body><div id="out"></div><script>document.getElementById("out").textContent = "rendered-by-js";</script></body></html>`)
	}))
	defer ts.Close()

	client := newChromedpOrSkip(t)

	resp, err := client.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Body), "rendered-by-js") {
		t.Errorf("expected rendered text in body, got %q", resp.Body)
	}
}

// TestChromedpClient_DoRejectsNonGET verifies that Do() returns error for non-GET methods
func TestChromedpClient_DoRejectsNonGET(t *testing.T) {
	client := newChromedpOrSkip(t)

	_, err := client.Do(context.Background(), &webclient.Request{
		Method: "POST",
		URL:    "http://example.com",
	})
	if err == nil {
		t.Fatal("Expected error for POST request, got nil")
	}
	if !strings.Contains(err.Error(), "not supported") {
		t.Errorf("Expected error about method not supported, got: %v", err)
	}
}
