// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// Entry is one recorded log call.
type Entry struct {
	Level  string
	Msg    string
	Fields []logging.Field
}

// Field returns the value of the first field named key.
func (e Entry) Field(key string) (any, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// DummyLogger implements logging.Logger with in-memory recording.
// Children created with With share the parent's record.
type DummyLogger struct {
	mu      *sync.Mutex
	entries *[]Entry
	fields  []logging.Field

	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

// NewDummyLogger returns an empty recording logger.
func NewDummyLogger() *DummyLogger {
	return &DummyLogger{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (l *DummyLogger) lazyInit() {
	if l.mu == nil {
		l.mu = &sync.Mutex{}
		l.entries = &[]Entry{}
	}
}

func (l *DummyLogger) record(level, msg string, fields []logging.Field) {
	all := append(append([]logging.Field(nil), l.fields...), fields...)
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, Entry{Level: level, Msg: msg, Fields: all})
	switch level {
	case "debug":
		l.Debugs = append(l.Debugs, msg)
	case "info":
		l.Infos = append(l.Infos, msg)
	case "warn":
		l.Warns = append(l.Warns, msg)
	case "error":
		l.Errors = append(l.Errors, msg)
	}
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.lazyInit()
	l.record("debug", msg, fields)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.lazyInit()
	l.record("info", msg, fields)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.lazyInit()
	l.record("warn", msg, fields)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.lazyInit()
	l.record("error", msg, fields)
}

// With returns a child that records into the same entry list. The level
// slices (Errors, Infos, ...) are only populated on the logger they were
// written through; use Entries for the combined view.
func (l *DummyLogger) With(fields ...logging.Field) logging.Logger {
	l.lazyInit()
	return &DummyLogger{
		mu:      l.mu,
		entries: l.entries,
		fields:  append(append([]logging.Field(nil), l.fields...), fields...),
	}
}

// Entries returns a copy of every call recorded through this logger or its children.
func (l *DummyLogger) Entries() []Entry {
	l.lazyInit()
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), (*l.entries)...)
}

// EntriesAt filters Entries by level.
func (l *DummyLogger) EntriesAt(level string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Contains reports whether any recorded message at level contains substr.
func (l *DummyLogger) Contains(level, substr string) bool {
	for _, e := range l.EntriesAt(level) {
		if strings.Contains(e.Msg, substr) {
			return true
		}
	}
	return false
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// By default it returns body "ok:<url>" with status 200.
// Set FailURLs[url] = true to force an error for a specific URL, or
// Responses[url] to serve a canned body.
type DummyWebClient struct {
	ResponseDelay time.Duration
	FailURLs      map[string]bool
	Responses     map[string]*webclient.Response
	mu            sync.Mutex
	Requests      []*webclient.Request
	Closed        bool
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[req.URL] {
		return nil, errors.New("dummy fetch fail for " + req.URL)
	}
	if canned, ok := d.Responses[req.URL]; ok {
		resp := *canned
		resp.Request = req
		if resp.FetchedAt.IsZero() {
			resp.FetchedAt = time.Now()
		}
		return &resp, nil
	}

	return &webclient.Response{
		Request:    req,
		Body:       []byte("ok:" + req.URL),
		StatusCode: 200,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

// RequestCount returns how many requests were issued.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}
