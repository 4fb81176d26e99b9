package browser_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/coinpilot/internal/browser"
)

const formPage = `<!doctype html><html><body>
<form id="f">
  <input name="name"><input name="ticker"><textarea name="description"></textarea>
  <input type="file" name="image">
  <button type="button" id="go">Create Coin</button>
</form>
<div id="result" style="display:none"><span>Transaction hash</span><div id="tx"></div></div>
<script>
document.getElementById('go').addEventListener('click', function() {
  var f = document.querySelector('input[name=image]').files[0];
  var v = document.querySelector('input[name=name]').value + '|' +
          document.querySelector('input[name=ticker]').value + '|' + (f ? f.name : 'nofile');
  document.getElementById('tx').textContent = v;
  document.getElementById('result').style.display = 'block';
});
</script>
</body></html>`

func newPageOrSkip(t *testing.T, cfg browser.Config) (*browser.Page, *browser.Connector) {
	t.Helper()
	conn := browser.NewConnector(cfg, nil)
	page, err := conn.Launch(context.Background())
	if err != nil {
		t.Skipf("Skipping browser test (environment does not support chromedp): %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return page, conn
}

func testConfig() browser.Config {
	cfg := browser.DefaultConfig()
	cfg.ImplicitWait = 2 * time.Second
	cfg.IdleAfter = 100 * time.Millisecond
	cfg.ProbeTimeout = time.Second
	return cfg
}

func TestSelectors(t *testing.T) {
	t.Parallel()
	if got := browser.CSS(`input[name="x"]`).String(); got != `input[name="x"]` {
		t.Errorf("CSS String: %q", got)
	}
	txt := browser.Text("  Create   COIN ")
	if !txt.XPath || !strings.Contains(txt.Query, `"create coin"`) {
		t.Errorf("Text should lower-case and collapse the needle, got %q", txt.Query)
	}
	quoted := browser.Text(`say "hi"`)
	if !strings.Contains(quoted.Query, `'say "hi"'`) {
		t.Errorf("expected single-quoted literal, got %q", quoted.Query)
	}
	both := browser.Text(`it's "x"`)
	if !strings.Contains(both.Query, "concat(") {
		t.Errorf("expected concat literal, got %q", both.Query)
	}
	sib := browser.FollowingSibling("Transaction hash", "div")
	if !strings.HasSuffix(sib.Query, "/following-sibling::div[1]") {
		t.Errorf("unexpected sibling xpath %q", sib.Query)
	}
}

func TestConnector_ConnectFailureAndCloseNoop(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.ConnectTimeout = 3 * time.Second
	conn := browser.NewConnector(cfg, nil)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close before connect: %v", err)
	}
	_, err := conn.Connect(context.Background(), "ws://127.0.0.1:1/devtools/browser/none")
	if !errors.Is(err, browser.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close after failed connect: %v", err)
	}
}

func TestPage_FormInteractions(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, formPage)
	}))
	defer ts.Close()

	page, conn := newPageOrSkip(t, testConfig())
	ctx := context.Background()

	if _, err := conn.Launch(ctx); !errors.Is(err, browser.ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}

	if err := page.Navigate(ctx, ts.URL); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	dir := t.TempDir()
	shot := filepath.Join(dir, "page.png")
	if err := page.Screenshot(ctx, shot); err != nil {
		t.Fatalf("Screenshot: %v", err)
	}
	if info, err := os.Stat(shot); err != nil || info.Size() == 0 {
		t.Fatalf("screenshot not written: %v", err)
	}

	if err := page.Fill(ctx, browser.CSS(`input[name="name"]`), "Moon Cat"); err != nil {
		t.Fatalf("Fill name: %v", err)
	}
	if err := page.Fill(ctx, browser.CSS(`input[name="ticker"]`), "MCAT"); err != nil {
		t.Fatalf("Fill ticker: %v", err)
	}
	img := filepath.Join(dir, "coin.png")
	if err := os.WriteFile(img, []byte("\x89PNG"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := page.Upload(ctx, browser.CSS(`input[name="image"]`), img); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := page.Upload(ctx, browser.Text("x"), img); !errors.Is(err, browser.ErrUnsupportedSelector) {
		t.Errorf("expected ErrUnsupportedSelector, got %v", err)
	}
	if err := page.Click(ctx, browser.Text("create coin")); err != nil {
		t.Fatalf("Click: %v", err)
	}

	got, err := page.SiblingText(ctx, "Transaction hash")
	if err != nil {
		t.Fatalf("SiblingText: %v", err)
	}
	if got != "Moon Cat|MCAT|coin.png" {
		t.Errorf("unexpected result text %q", got)
	}

	err = page.Click(ctx, browser.CSS("#does-not-exist"))
	if !errors.Is(err, browser.ErrElementNotFound) {
		t.Errorf("expected ErrElementNotFound, got %v", err)
	}
}
