package steel_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/coinpilot/internal/steel"
	"github.com/raysh454/coinpilot/internal/testutil"
	"github.com/raysh454/coinpilot/internal/webclient"
)

func newHTTP(t *testing.T) webclient.WebClient {
	t.Helper()
	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, nil, nil)
	require.NoError(t, err)
	return wc
}

func TestNewClient_MissingKeyMakesNoRequest(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{}

	c, err := steel.NewClient(steel.Config{APIKey: "  "}, wc, nil)
	require.ErrorIs(t, err, steel.ErrMissingAPIKey)
	assert.Nil(t, c)
	assert.Zero(t, wc.RequestCount())
}

func TestClient_CreateAndRelease(t *testing.T) {
	t.Parallel()
	var released atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("steel-api-key"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/sessions":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id":               "sess-1",
				"sessionViewerUrl": "https://app.steel.dev/sessions/sess-1",
			})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/sessions/sess-1/release":
			released.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := steel.NewClient(steel.Config{APIKey: "secret", APIURL: srv.URL}, newHTTP(t), testutil.NewDummyLogger())
	require.NoError(t, err)

	sess, err := c.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, "https://app.steel.dev/sessions/sess-1", sess.ViewerURL)

	u, err := url.Parse(sess.ConnectURL)
	require.NoError(t, err)
	assert.Equal(t, "wss", u.Scheme)
	assert.Equal(t, "connect.steel.dev", u.Host)
	assert.Equal(t, "secret", u.Query().Get("apiKey"))
	assert.Equal(t, "sess-1", u.Query().Get("sessionId"))

	require.NoError(t, c.Release(context.Background(), sess.ID))
	assert.EqualValues(t, 1, released.Load())
}

func TestClient_CreateRejected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	logger := testutil.NewDummyLogger()
	c, err := steel.NewClient(steel.Config{APIKey: "bad", APIURL: srv.URL}, newHTTP(t), logger)
	require.NoError(t, err)

	sess, err := c.Create(context.Background())
	require.ErrorIs(t, err, steel.ErrSessionCreation)
	assert.Nil(t, sess)

	errs := logger.EntriesAt("error")
	require.Len(t, errs, 1)
	status, ok := errs[0].Field("status")
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestClient_CreateUnreachable(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{FailURLs: map[string]bool{"http://steel.invalid/v1/sessions": true}}
	c, err := steel.NewClient(steel.Config{APIKey: "k", APIURL: "http://steel.invalid"}, wc, nil)
	require.NoError(t, err)

	_, err = c.Create(context.Background())
	require.ErrorIs(t, err, steel.ErrSessionCreation)
}

func TestLocalClient_ScrapeAndScreenshot(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/v1/scrape":
			assert.Equal(t, "https://example.com", body["url"])
			assert.EqualValues(t, 1500, body["waitFor"])
			_, _ = w.Write([]byte(`{"content":{"html":"<title>x</title>"}}`))
		case "/v1/screenshot":
			assert.Equal(t, false, body["fullPage"])
			_, _ = w.Write([]byte("\x89PNG"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := steel.NewLocalClient(srv.URL+"/v1/", newHTTP(t), nil)

	raw, err := c.Scrape(context.Background(), "https://example.com", 1500)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":{"html":"<title>x</title>"}}`, string(raw))

	img, err := c.Screenshot(context.Background(), "https://example.com", false)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), img)
}

func TestLocalClient_Non2xx(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := steel.NewLocalClient(srv.URL+"/v1", newHTTP(t), nil)
	_, err := c.Scrape(context.Background(), "https://example.com", 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
