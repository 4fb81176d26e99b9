package launch_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/coinpilot/internal/browser"
	"github.com/raysh454/coinpilot/internal/history"
	"github.com/raysh454/coinpilot/internal/launch"
	"github.com/raysh454/coinpilot/internal/steel"
	"github.com/raysh454/coinpilot/internal/testutil"
)

// fakePage records every interaction and fails the call whose description
// contains failOn.
type fakePage struct {
	mu     sync.Mutex
	calls  []string
	failOn string
	hash   string
}

func (p *fakePage) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	if p.failOn != "" && strings.Contains(call, p.failOn) {
		return browser.ErrElementNotFound
	}
	return nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error { return p.record("navigate " + url) }
func (p *fakePage) Screenshot(_ context.Context, path string) error {
	if err := p.record("screenshot"); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("png"), 0o644)
}
func (p *fakePage) Fill(_ context.Context, sel browser.Selector, v string) error {
	return p.record("fill " + sel.Query + "=" + v)
}
func (p *fakePage) Upload(_ context.Context, sel browser.Selector, path string) error {
	return p.record("upload " + sel.Query + " " + filepath.Base(path))
}
func (p *fakePage) Click(_ context.Context, sel browser.Selector) error {
	return p.record("click " + sel.String())
}
func (p *fakePage) SiblingText(_ context.Context, label string) (string, error) {
	if err := p.record("read " + label); err != nil {
		return "", err
	}
	return p.hash, nil
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type fakeSessions struct {
	mu        sync.Mutex
	createErr error
	created   int
	released  []string
}

func (s *fakeSessions) Create(context.Context) (*steel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created++
	return &steel.Session{ID: "sess-1", ViewerURL: "https://viewer/sess-1", ConnectURL: "wss://connect/sess-1"}, nil
}

func (s *fakeSessions) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, id)
	return nil
}

type fakeConnector struct {
	page       launch.PageDriver
	connectErr error
	connected  string
	closes     int
}

func (c *fakeConnector) Connect(_ context.Context, url string) (launch.PageDriver, error) {
	c.connected = url
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	return c.page, nil
}

func (c *fakeConnector) Close() error {
	c.closes++
	return nil
}

type fakeRecorder struct {
	runs []history.Run
}

func (r *fakeRecorder) RecordRun(_ context.Context, run history.Run) (history.Run, error) {
	r.runs = append(r.runs, run)
	return run, nil
}

func testPayload(t *testing.T) launch.FormPayload {
	t.Helper()
	img := filepath.Join(t.TempDir(), "coin.png")
	require.NoError(t, os.WriteFile(img, []byte("img"), 0o644))
	return launch.FormPayload{
		Name:        "Moon Cat",
		Ticker:      "MCAT",
		Description: "the cat that went to the moon",
		ImagePath:   img,
		Website:     "https://mooncat.example",
		Telegram:    "https://t.me/mooncat",
	}
}

func TestFormPayload_Validate(t *testing.T) {
	t.Parallel()
	err := launch.FormPayload{Description: "x"}.Validate()
	require.ErrorIs(t, err, launch.ErrInvalidPayload)
	assert.Contains(t, err.Error(), "name, ticker, image")

	err = launch.FormPayload{Name: "a", Ticker: "b", ImagePath: filepath.Join(t.TempDir(), "missing.png")}.Validate()
	require.ErrorIs(t, err, launch.ErrInvalidPayload)

	require.NoError(t, testPayload(t).Validate())
}

func TestRunner_StepOrderSkipsEmptyLinks(t *testing.T) {
	t.Parallel()
	page := &fakePage{hash: "5xTx"}
	runner := launch.NewRunner(launch.RunnerConfig{CreateURL: "http://sandbox/create", ScreenshotPath: filepath.Join(t.TempDir(), "pump.png")}, nil)

	var events []string
	hash, err := runner.Run(context.Background(), page, testPayload(t), func(name string, status launch.StepStatus, _ error) {
		events = append(events, name+":"+string(status))
	})
	require.NoError(t, err)
	assert.Equal(t, "5xTx", hash)

	calls := page.Calls()
	want := []string{
		"navigate http://sandbox/create",
		"screenshot",
		`fill input[name="name"]=Moon Cat`,
		`fill input[name="ticker"]=MCAT`,
		`fill textarea[name="description"]=the cat that went to the moon`,
		`upload input[name="image"] coin.png`,
		`fill input[name="website"]=https://mooncat.example`,
		`fill input[name="telegram"]=https://t.me/mooncat`,
	}
	require.GreaterOrEqual(t, len(calls), len(want)+4)
	assert.Equal(t, want, calls[:len(want)])

	tail := calls[len(want):]
	assert.True(t, strings.HasPrefix(tail[0], "click xpath="), tail[0])
	assert.Equal(t, `fill input[name="amount"]=1`, tail[1])
	assert.Equal(t, tail[0], tail[2], "submit and confirm click the same label")
	assert.Equal(t, "read Transaction hash", tail[3])

	assert.Equal(t, "navigate:started", events[0])
	assert.Equal(t, "read transaction hash:done", events[len(events)-1])
}

func TestRunner_FirstFailureAborts(t *testing.T) {
	t.Parallel()
	page := &fakePage{failOn: "ticker"}
	runner := launch.NewRunner(launch.RunnerConfig{ScreenshotPath: filepath.Join(t.TempDir(), "pump.png")}, nil)

	_, err := runner.Run(context.Background(), page, testPayload(t), nil)

	var se *launch.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fill ticker", se.Step)
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
	assert.Len(t, page.Calls(), 4, "no step runs after the failing one")
}

// cancelOnFill cancels the run when the named field is filled.
type cancelOnFill struct {
	*fakePage
	field  string
	cancel context.CancelFunc
}

func (p *cancelOnFill) Fill(ctx context.Context, sel browser.Selector, v string) error {
	if strings.Contains(sel.Query, p.field) {
		p.cancel()
	}
	return p.fakePage.Fill(ctx, sel, v)
}

func TestRunner_CancelBetweenStepsIsNotStepFailure(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	page := &cancelOnFill{fakePage: &fakePage{}, field: "name", cancel: cancel}
	runner := launch.NewRunner(launch.RunnerConfig{ScreenshotPath: filepath.Join(t.TempDir(), "pump.png")}, nil)

	_, err := runner.Run(ctx, page, testPayload(t), nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, launch.IsStepFailure(err))
	assert.Len(t, page.Calls(), 3, "no step starts after cancellation")
}

func TestRunner_StepFailingOnCancelReturnsContextError(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	page := &cancelOnFill{fakePage: &fakePage{failOn: "ticker"}, field: "ticker", cancel: cancel}
	runner := launch.NewRunner(launch.RunnerConfig{ScreenshotPath: filepath.Join(t.TempDir(), "pump.png")}, nil)

	_, err := runner.Run(ctx, page, testPayload(t), nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, launch.IsStepFailure(err))
}

func TestGuard_ReleasesExactlyOnceOnStepFailure(t *testing.T) {
	t.Parallel()
	sessions := &fakeSessions{}
	conn := &fakeConnector{page: &fakePage{}}
	guard := launch.NewGuard(sessions, func() launch.Connector { return conn }, testutil.NewDummyLogger())

	var states []launch.State
	guard.OnState(func(s launch.State, _ *steel.Session) { states = append(states, s) })

	stepErr := &launch.StepError{Step: "fill name", Err: browser.ErrElementNotFound}
	err := guard.Run(context.Background(), func(context.Context, launch.PageDriver) error { return stepErr })

	require.ErrorIs(t, err, browser.ErrElementNotFound)
	assert.Equal(t, []string{"sess-1"}, sessions.released)
	assert.Equal(t, 1, conn.closes)
	assert.Equal(t, "wss://connect/sess-1", conn.connected)
	assert.Equal(t, []launch.State{launch.StateSessionOpen, launch.StatePageOpen, launch.StateFailed}, states)

	require.ErrorIs(t, guard.Run(context.Background(), nil), launch.ErrGuardUsed)
	assert.Len(t, sessions.released, 1)
}

func TestGuard_NoReleaseWhenSessionNeverCreated(t *testing.T) {
	t.Parallel()
	sessions := &fakeSessions{createErr: steel.ErrSessionCreation}
	connectorBuilt := false
	guard := launch.NewGuard(sessions, func() launch.Connector {
		connectorBuilt = true
		return &fakeConnector{}
	}, nil)

	err := guard.Run(context.Background(), func(context.Context, launch.PageDriver) error { return nil })
	require.ErrorIs(t, err, steel.ErrSessionCreation)
	assert.Empty(t, sessions.released)
	assert.False(t, connectorBuilt)
	assert.Equal(t, launch.StateFailed, guard.State())
}

func TestGuard_ConnectFailureStillReleases(t *testing.T) {
	t.Parallel()
	sessions := &fakeSessions{}
	conn := &fakeConnector{connectErr: browser.ErrConnection}
	guard := launch.NewGuard(sessions, func() launch.Connector { return conn }, nil)

	worked := false
	err := guard.Run(context.Background(), func(context.Context, launch.PageDriver) error { worked = true; return nil })
	require.ErrorIs(t, err, browser.ErrConnection)
	assert.False(t, worked)
	assert.Equal(t, 1, conn.closes)
	assert.Equal(t, []string{"sess-1"}, sessions.released)
}

func TestGuard_CancelledContextStillReleases(t *testing.T) {
	t.Parallel()
	sessions := &fakeSessions{}
	conn := &fakeConnector{page: &fakePage{}}
	guard := launch.NewGuard(sessions, func() launch.Connector { return conn }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := guard.Run(ctx, func(ctx context.Context, _ launch.PageDriver) error {
		cancel()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"sess-1"}, sessions.released)
}

func TestFlow_SuccessWritesTransaction(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	sessions := &fakeSessions{}
	page := &fakePage{hash: "4vJ9Tx"}
	rec := &fakeRecorder{}
	flow := launch.NewFlow(launch.FlowConfig{OutputDir: dir}, sessions,
		func() launch.Connector { return &fakeConnector{page: page} }, rec, testutil.NewDummyLogger())

	var mu sync.Mutex
	var events []launch.Event
	flow.OnEvent(func(ev launch.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	res, err := flow.Run(context.Background(), testPayload(t))
	require.NoError(t, err)
	assert.Equal(t, launch.StateCompleted, res.State)
	assert.Equal(t, "4vJ9Tx", res.TransactionHash)
	assert.Equal(t, "sess-1", res.SessionID)

	data, err := os.ReadFile(filepath.Join(dir, "transaction.json"))
	require.NoError(t, err)
	var record launch.Record
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, launch.Record{TransactionHash: "4vJ9Tx"}, record)

	assert.FileExists(t, filepath.Join(dir, "pump.png"))
	assert.NoFileExists(t, filepath.Join(dir, "error.log"))

	require.Len(t, rec.runs, 1)
	assert.Equal(t, history.StatusCompleted, rec.runs[0].Status)
	assert.Equal(t, res.RunID, rec.runs[0].ID)

	mu.Lock()
	defer mu.Unlock()
	last := events[len(events)-1]
	assert.Equal(t, "state", last.Kind)
	assert.Equal(t, launch.StateCompleted, last.State)
}

func TestFlow_FailureAppendsErrorLog(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	sessions := &fakeSessions{}
	page := &fakePage{failOn: "Transaction hash"}
	rec := &fakeRecorder{}
	flow := launch.NewFlow(launch.FlowConfig{OutputDir: dir}, sessions,
		func() launch.Connector { return &fakeConnector{page: page} }, rec, nil)

	res, err := flow.Run(context.Background(), testPayload(t))
	require.Error(t, err)
	assert.True(t, launch.IsStepFailure(err))
	assert.Equal(t, launch.StateFailed, res.State)
	assert.Equal(t, []string{"sess-1"}, sessions.released)

	logData, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] step "read transaction hash": `, string(logData))

	var record launch.Record
	data, err := os.ReadFile(filepath.Join(dir, "transaction.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Empty(t, record.TransactionHash)
	assert.NotEmpty(t, record.ErrorMessage)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, history.StatusFailed, rec.runs[0].Status)
}

func TestFlow_InvalidPayloadOpensNoSession(t *testing.T) {
	t.Parallel()
	sessions := &fakeSessions{}
	flow := launch.NewFlow(launch.FlowConfig{OutputDir: t.TempDir()}, sessions,
		func() launch.Connector { return &fakeConnector{} }, nil, nil)

	_, err := flow.Run(context.Background(), launch.FormPayload{Name: "x"})
	require.ErrorIs(t, err, launch.ErrInvalidPayload)
	assert.Zero(t, sessions.created)
	assert.False(t, errors.Is(err, steel.ErrSessionCreation))
}
