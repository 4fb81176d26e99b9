package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/raysh454/coinpilot/internal/logging"
)

// Connector owns one browser attachment and the single tab opened on it.
type Connector struct {
	cfg    Config
	logger logging.Logger

	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	page        *Page
}

// NewConnector returns an unattached Connector.
func NewConnector(cfg Config, logger logging.Logger) *Connector {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Connector{
		cfg:    cfg.withDefaults(),
		logger: logger.With(logging.Field{Key: "component", Value: "browser"}),
	}
}

// Connect attaches to a remote browser over its DevTools WebSocket URL and
// opens one tab.
func (c *Connector) Connect(ctx context.Context, wsURL string) (*Page, error) {
	if c.page != nil {
		return nil, ErrAlreadyConnected
	}
	// The allocator must outlive ctx; Close tears it down.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), wsURL, chromedp.NoModifyURL)
	return c.open(ctx, allocCtx, allocCancel, "remote")
}

// Launch starts a local Chrome and opens one tab. Used by the render scrape
// backend and tests.
func (c *Connector) Launch(ctx context.Context, opts ...chromedp.ExecAllocatorOption) (*Page, error) {
	if c.page != nil {
		return nil, ErrAlreadyConnected
	}
	all := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !c.cfg.Headless {
		all = append(all, chromedp.Flag("headless", false))
	}
	all = append(all, opts...)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), all...)
	return c.open(ctx, allocCtx, allocCancel, "local")
}

func (c *Connector) open(ctx context.Context, allocCtx context.Context, allocCancel context.CancelFunc, mode string) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	c.allocCancel = allocCancel
	c.tabCancel = tabCancel

	// The first Run allocates the tab; it must run on tabCtx itself, since a
	// cancelled child context here would take the whole browser down with it.
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx) }()

	timer := time.NewTimer(c.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case err := <-errc:
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
	case <-timer.C:
		c.Close()
		return nil, fmt.Errorf("%w: no response within %s", ErrConnection, c.cfg.ConnectTimeout)
	case <-ctx.Done():
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
	}

	c.page = &Page{ctx: tabCtx, cfg: c.cfg, logger: c.logger}
	c.logger.Info("browser attached", logging.Field{Key: "mode", Value: mode})
	return c.page, nil
}

// Close detaches from the browser and closes the tab. It is a no-op when
// Connect never succeeded or Close already ran.
func (c *Connector) Close() error {
	if c.tabCancel == nil && c.allocCancel == nil {
		return nil
	}
	if c.tabCancel != nil {
		c.tabCancel()
		c.tabCancel = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
	if c.page != nil {
		c.page = nil
		c.logger.Info("browser detached")
	}
	return nil
}
