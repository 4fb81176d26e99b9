package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/coinpilot/internal/logging"
)

// Page is the single open tab of a Connector.
type Page struct {
	ctx    context.Context
	cfg    Config
	logger logging.Logger
}

// bind derives a context from the tab that also ends when ctx ends.
func (p *Page) bind(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Navigate loads url and waits until the network has been idle for IdleAfter.
func (p *Page) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := p.bind(ctx, p.cfg.NavigationTimeout)
	defer cancel()

	idle, arm := WaitNetworkIdle(runCtx, p.cfg.IdleAfter)
	if err := chromedp.Run(runCtx, network.Enable(), chromedp.Navigate(url)); err != nil {
		return p.classify(ctx, err, "navigate to "+url)
	}
	arm()

	select {
	case <-idle:
		p.logger.Debug("page idle", logging.Field{Key: "url", Value: url})
		return nil
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: network never went idle on %s", ErrInteractionTimeout, url)
	}
}

// Screenshot captures the full page as PNG and writes it to path.
func (p *Page) Screenshot(ctx context.Context, path string) error {
	runCtx, cancel := p.bind(ctx, p.cfg.ImplicitWait)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return p.classify(ctx, err, "screenshot")
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot %s: %w", path, err)
	}
	p.logger.Info("screenshot saved", logging.Field{Key: "path", Value: path}, logging.Field{Key: "bytes", Value: len(buf)})
	return nil
}

// ScreenshotViewport captures only the visible viewport.
func (p *Page) ScreenshotViewport(ctx context.Context, path string) error {
	runCtx, cancel := p.bind(ctx, p.cfg.ImplicitWait)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return p.classify(ctx, err, "screenshot")
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot %s: %w", path, err)
	}
	return nil
}

// Fill replaces the value of the input matched by sel, typing value so that
// input listeners fire.
func (p *Page) Fill(ctx context.Context, sel Selector, value string) error {
	if err := p.waitFor(ctx, sel); err != nil {
		return err
	}
	return p.run(ctx, "fill "+sel.String(),
		chromedp.SetValue(sel.Query, "", sel.queryOpts()...),
		chromedp.SendKeys(sel.Query, value, sel.queryOpts()...),
	)
}

// Click clicks the first element matched by sel.
func (p *Page) Click(ctx context.Context, sel Selector) error {
	if err := p.waitFor(ctx, sel); err != nil {
		return err
	}
	return p.run(ctx, "click "+sel.String(), chromedp.Click(sel.Query, sel.queryOpts()...))
}

const attachFileJS = `(function(sel, name, type, data) {
	const el = document.querySelector(sel);
	if (!el) { return false; }
	const bin = atob(data);
	const bytes = new Uint8Array(bin.length);
	for (let i = 0; i < bin.length; i++) { bytes[i] = bin.charCodeAt(i); }
	const dt = new DataTransfer();
	dt.items.add(new File([bytes], name, { type: type }));
	el.files = dt.files;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s, %s, %s, %s)`

// Upload attaches the local file at path to the file input matched by sel.
// The bytes are shipped through the page, so it also works when the browser
// runs on another host. sel must be a CSS selector.
func (p *Page) Upload(ctx context.Context, sel Selector, path string) error {
	if sel.XPath {
		return fmt.Errorf("upload %s: %w", sel, ErrUnsupportedSelector)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read upload file: %w", err)
	}
	if err := p.waitFor(ctx, sel); err != nil {
		return err
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	args := make([]any, 0, 4)
	for _, v := range []string{sel.Query, filepath.Base(path), contentType, base64.StdEncoding.EncodeToString(data)} {
		enc, _ := json.Marshal(v)
		args = append(args, string(enc))
	}

	var attached bool
	if err := p.run(ctx, "upload "+sel.String(), chromedp.Evaluate(fmt.Sprintf(attachFileJS, args...), &attached)); err != nil {
		return err
	}
	if !attached {
		return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
	}
	p.logger.Debug("file attached", logging.Field{Key: "selector", Value: sel.String()}, logging.Field{Key: "path", Value: path})
	return nil
}

// Text returns the trimmed text content of the element matched by sel.
func (p *Page) Text(ctx context.Context, sel Selector) (string, error) {
	if err := p.waitFor(ctx, sel); err != nil {
		return "", err
	}
	var text string
	if err := p.run(ctx, "read "+sel.String(), chromedp.TextContent(sel.Query, &text, sel.queryOpts()...)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// SiblingText finds the element labelled label and returns the text of the
// div that follows it.
func (p *Page) SiblingText(ctx context.Context, label string) (string, error) {
	return p.Text(ctx, FollowingSibling(label, "div"))
}

func (p *Page) run(ctx context.Context, what string, actions ...chromedp.Action) error {
	runCtx, cancel := p.bind(ctx, p.cfg.ImplicitWait)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return p.classify(ctx, err, what)
	}
	return nil
}

// waitFor waits for sel to be ready. When the wait window runs out it probes
// once more to tell a missing element from an unresponsive page.
func (p *Page) waitFor(ctx context.Context, sel Selector) error {
	waitCtx, cancel := p.bind(ctx, p.cfg.ImplicitWait)
	defer cancel()

	err := chromedp.Run(waitCtx, chromedp.WaitReady(sel.Query, sel.queryOpts()...))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("wait for %s: %w", sel, err)
	}

	probeCtx, cancelProbe := p.bind(ctx, p.cfg.ProbeTimeout)
	defer cancelProbe()
	var nodes []*cdp.Node
	perr := chromedp.Run(probeCtx, chromedp.Nodes(sel.Query, &nodes, sel.queryOpts(chromedp.AtLeast(0))...))
	if perr != nil || len(nodes) == 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
	}
	return fmt.Errorf("%w: %s not ready within %s", ErrInteractionTimeout, sel, p.cfg.ImplicitWait)
}

func (p *Page) classify(ctx context.Context, err error, what string) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", what, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrInteractionTimeout, what)
	}
	return fmt.Errorf("%s: %w", what, err)
}
