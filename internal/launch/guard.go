package launch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/coinpilot/internal/browser"
	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/steel"
)

// ErrGuardUsed is returned when Run is called on a guard that already ran.
var ErrGuardUsed = errors.New("launch: guard already used")

// State is the lifecycle position of one run.
type State string

const (
	StateIdle        State = "idle"
	StateSessionOpen State = "session_open"
	StatePageOpen    State = "page_open"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// SessionProvider opens and releases remote browser sessions.
// *steel.Client implements it.
type SessionProvider interface {
	Create(ctx context.Context) (*steel.Session, error)
	Release(ctx context.Context, id string) error
}

// Connector attaches to a session's DevTools endpoint.
type Connector interface {
	Connect(ctx context.Context, connectURL string) (PageDriver, error)
	Close() error
}

// NewChromeConnector adapts browser.Connector to Connector.
func NewChromeConnector(cfg browser.Config, logger logging.Logger) Connector {
	return &chromeConnector{c: browser.NewConnector(cfg, logger)}
}

type chromeConnector struct {
	c *browser.Connector
}

func (cc *chromeConnector) Connect(ctx context.Context, url string) (PageDriver, error) {
	page, err := cc.c.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (cc *chromeConnector) Close() error { return cc.c.Close() }

const cleanupTimeout = 30 * time.Second

// Guard owns the session and the page connection of a single run and makes
// sure both are released exactly once, whatever the outcome.
type Guard struct {
	sessions     SessionProvider
	newConnector func() Connector
	logger       logging.Logger
	onState      func(State, *steel.Session)

	mu      sync.Mutex
	state   State
	session *steel.Session
}

func NewGuard(sessions SessionProvider, newConnector func() Connector, logger logging.Logger) *Guard {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Guard{
		sessions:     sessions,
		newConnector: newConnector,
		logger:       logger.With(logging.Field{Key: "component", Value: "launch-guard"}),
		state:        StateIdle,
	}
}

// OnState registers a callback fired on every transition. Set before Run.
func (g *Guard) OnState(fn func(State, *steel.Session)) {
	g.onState = fn
}

// State returns the current lifecycle state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Session returns the session once created.
func (g *Guard) Session() *steel.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

func (g *Guard) transition(s State) {
	g.mu.Lock()
	g.state = s
	sess := g.session
	g.mu.Unlock()
	g.logger.Debug("launch state", logging.Field{Key: "state", Value: string(s)})
	if g.onState != nil {
		g.onState(s, sess)
	}
}

// Run opens a session, attaches a page and hands it to work. Cleanup runs on
// a context detached from ctx so cancellation still releases remote resources.
func (g *Guard) Run(ctx context.Context, work func(ctx context.Context, page PageDriver) error) (err error) {
	g.mu.Lock()
	if g.state != StateIdle {
		g.mu.Unlock()
		return ErrGuardUsed
	}
	g.mu.Unlock()

	var conn Connector
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("launch panicked: %v", r)
		}
		if err != nil {
			g.transition(StateFailed)
		} else {
			g.transition(StateCompleted)
		}
		g.cleanup(context.WithoutCancel(ctx), conn)
	}()

	sess, err := g.sessions.Create(ctx)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.session = sess
	g.mu.Unlock()
	g.transition(StateSessionOpen)

	g.logger.Info("session open",
		logging.Field{Key: "session_id", Value: sess.ID},
		logging.Field{Key: "viewer_url", Value: sess.ViewerURL})

	conn = g.newConnector()
	page, err := conn.Connect(ctx, sess.ConnectURL)
	if err != nil {
		return err
	}
	g.transition(StatePageOpen)

	return work(ctx, page)
}

func (g *Guard) cleanup(ctx context.Context, conn Connector) {
	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	if conn != nil {
		if err := conn.Close(); err != nil {
			g.logger.Warn("browser close failed", logging.Field{Key: "error", Value: err})
		}
	}

	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	if sess == nil {
		return
	}
	if err := g.sessions.Release(ctx, sess.ID); err != nil {
		g.logger.Warn("session release failed",
			logging.Field{Key: "session_id", Value: sess.ID},
			logging.Field{Key: "error", Value: err})
		return
	}
	g.logger.Info("session released", logging.Field{Key: "session_id", Value: sess.ID})
}
