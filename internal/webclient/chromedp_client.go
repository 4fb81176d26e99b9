package webclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/coinpilot/internal/browser"
	"github.com/raysh454/coinpilot/internal/logging"
)

// ChromedpClient renders pages in a local headless Chrome. Only GET is supported.
type ChromedpClient struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	idleAfter     time.Duration
	timeout       time.Duration
	logger        logging.Logger
}

// NewChromedpClient starts the browser eagerly so a missing Chrome surfaces here.
func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromedpClient, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	idleAfter := cfg.IdleAfter
	if idleAfter <= 0 {
		idleAfter = 2 * time.Second
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headless != nil && !*cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	c := &ChromedpClient{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		idleAfter:     idleAfter,
		timeout:       cfg.timeout(),
		logger:        logger.With(logging.Field{Key: "backend", Value: "chromedp"}),
	}
	c.logger.Debug("created chromedp webclient", logging.Field{Key: "idle_after", Value: idleAfter.String()})
	return c, nil
}

// Do opens a fresh tab, navigates, waits for network idle and returns the
// rendered HTML.
func (cdc *ChromedpClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if m := strings.ToUpper(req.Method); m != "" && m != http.MethodGet {
		return nil, fmt.Errorf("method %s not supported by chromedp backend", m)
	}

	tabCtx, tabCancel := chromedp.NewContext(cdc.browserCtx)
	defer tabCancel()
	// The tab's first Run must not carry a timeout; see browser.Connector.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}

	runCtx, cancel := context.WithTimeout(tabCtx, cdc.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	idle, arm := browser.WaitNetworkIdle(runCtx, cdc.idleAfter)
	navResp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(req.URL))
	if err != nil {
		return nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}
	arm()

	select {
	case <-idle:
	case <-runCtx.Done():
		cdc.logger.Warn("network did not go idle", logging.Field{Key: "url", Value: req.URL})
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}

	resp := &Response{
		Request:    req,
		Body:       []byte(html),
		Headers:    http.Header{},
		StatusCode: http.StatusOK,
		FetchedAt:  time.Now(),
	}
	if navResp != nil {
		resp.StatusCode = int(navResp.Status)
		for k, v := range navResp.Headers {
			resp.Headers.Set(k, fmt.Sprint(v))
		}
	}
	return resp, nil
}

func (cdc *ChromedpClient) Get(ctx context.Context, url string) (*Response, error) {
	return cdc.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}

func (cdc *ChromedpClient) Close() error {
	cdc.browserCancel()
	cdc.allocCancel()
	return nil
}
