package coinapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/coinpilot/internal/coinapi"
	"github.com/raysh454/coinpilot/internal/testutil"
	"github.com/raysh454/coinpilot/internal/webclient"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	statsErr bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	statsErr := f.statsErr
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer key-1" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	switch r.Method + " " + r.URL.Path {
	case "PUT /coins/MCAT":
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte(`{"updated":true,"received":` + string(body) + `}`))
	case "GET /coins/MCAT/stats":
		if statsErr {
			http.Error(w, "upstream down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"holders":42,"market_cap":1234.5}`))
	case "POST /coins/MCAT/promote":
		w.Write([]byte(`{"promoted":"未来"}`))
	default:
		http.NotFound(w, r)
	}
}

func newClient(t *testing.T, srv *httptest.Server, logger *testutil.DummyLogger) *coinapi.Client {
	t.Helper()
	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, nil, nil)
	require.NoError(t, err)
	c, err := coinapi.NewClient(srv.URL, "key-1", wc, logger)
	require.NoError(t, err)
	return c
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Parallel()
	_, err := coinapi.NewClient("", "", &testutil.DummyWebClient{}, nil)
	require.ErrorIs(t, err, coinapi.ErrMissingAPIKey)
}

func TestClient_Non200YieldsNilAndLogsStatus(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{statsErr: true}
	srv := httptest.NewServer(api)
	defer srv.Close()

	logger := testutil.NewDummyLogger()
	c := newClient(t, srv, logger)

	stats, err := c.FetchCoinStats(context.Background(), "MCAT")
	assert.Nil(t, stats)

	var apiErr *coinapi.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "upstream down", apiErr.Body)

	assert.True(t, logger.Contains("error", "503"))
	errs := logger.EntriesAt("error")
	require.Len(t, errs, 1)
	status, _ := errs[0].Field("status")
	assert.Equal(t, 503, status)
}

func TestManager_RunSavesResultsAndContinues(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{statsErr: true}
	srv := httptest.NewServer(api)
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "coin_management_results.json")
	logger := testutil.NewDummyLogger()
	m := coinapi.NewManager(newClient(t, srv, logger), out, logger)

	res, err := m.Run(context.Background(), "MCAT", coinapi.Details{Description: "future of finance", Website: "https://example.com"})
	require.NoError(t, err)
	assert.Nil(t, res.Stats)
	assert.NotNil(t, res.UpdateResponse)
	assert.NotNil(t, res.PromotionResponse)

	api.mu.Lock()
	assert.Equal(t, []string{"PUT /coins/MCAT", "GET /coins/MCAT/stats", "POST /coins/MCAT/promote"}, api.requests)
	api.mu.Unlock()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var saved map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, "null", string(saved["stats"]))
	assert.Contains(t, string(data), "未来", "non-ASCII is written verbatim")
	assert.JSONEq(t, `{"updated":true,"received":{"description":"future of finance","website":"https://example.com"}}`, string(saved["update_response"]))
}

func TestManager_LogsDiffAgainstPreviousRun(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{statsErr: true}
	srv := httptest.NewServer(api)
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "results.json")
	logger := testutil.NewDummyLogger()
	m := coinapi.NewManager(newClient(t, srv, logger), out, logger)

	_, err := m.Run(context.Background(), "MCAT", coinapi.Details{})
	require.NoError(t, err)
	assert.False(t, logger.Contains("info", "results changed"))

	api.mu.Lock()
	api.statsErr = false
	api.mu.Unlock()

	res, err := m.Run(context.Background(), "MCAT", coinapi.Details{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"holders":42,"market_cap":1234.5}`, string(res.Stats))
	assert.True(t, logger.Contains("info", "results changed since last run"))
}
