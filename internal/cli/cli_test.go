package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/coinpilot/internal/app"
	"github.com/raysh454/coinpilot/internal/cli"
	"github.com/raysh454/coinpilot/internal/demoserver"
)

type harness struct {
	dir    string
	env    map[string]string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{
		dir: dir,
		env: map[string]string{
			"COINPILOT_DATA_DIR": dir,
			"LOG_LEVEL":          "error",
		},
	}
}

func (h *harness) run(t *testing.T, args ...string) int {
	t.Helper()
	envFile := filepath.Join(h.dir, "empty.env")
	require.NoError(t, os.WriteFile(envFile, nil, 0o644))
	return cli.Execute(context.Background(), cli.Options{
		Args:   append([]string{"--env-file", envFile}, args...),
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		LookupEnv: func(k string) (string, bool) {
			v, ok := h.env[k]
			return v, ok
		},
	})
}

func TestLaunch_MissingSteelKey(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	code := h.run(t, "launch")
	assert.Equal(t, app.ExitMissingCredential, code)
	assert.Contains(t, h.stderr.String(), "STEEL_API_KEY")
}

func TestPost_MissingTwitterCredentials(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.env["TWITTER_API_KEY"] = "k"

	code := h.run(t, "post")
	assert.Equal(t, app.ExitMissingCredential, code)
	assert.Contains(t, h.stderr.String(), "TWITTER_ACCESS_TOKEN_SECRET")
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	assert.Equal(t, app.ExitFailure, h.run(t, "nonsense"))
}

func TestGenerate_WritesPosts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	var calls atomic.Int32
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": "To the moon\nwith MoonCat"},
				"finish_reason": "stop",
			}},
		})
	}))
	defer llmSrv.Close()
	h.env["LLM_BASE_URL"] = llmSrv.URL + "/v1"

	coinData := filepath.Join(h.dir, app.FileCoinData)
	require.NoError(t, os.WriteFile(coinData, []byte(`{"name":"MoonCat","ticker":"MCAT","description":"cats"}`), 0o644))

	code := h.run(t, "generate")
	require.Equal(t, app.ExitOK, code, h.stderr.String())
	assert.Equal(t, int32(5), calls.Load())

	data, err := os.ReadFile(filepath.Join(h.dir, app.FileTweets))
	require.NoError(t, err)
	posts := strings.Split(strings.TrimSpace(string(data)), "\n\n")
	assert.Len(t, posts, 5)
	assert.Equal(t, "To the moon with MoonCat", posts[0])
	assert.Contains(t, h.stdout.String(), "saved 5 posts")
}

func TestManage_AgainstSandbox(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ds := demoserver.NewDemoServer(demoserver.DefaultConfig())
	ts := httptest.NewServer(ds.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/create", "application/json",
		strings.NewReader(`{"name":"MoonCat","ticker":"MCAT","image":"cat.png","amount":"1"}`))
	require.NoError(t, err)
	resp.Body.Close()

	h.env["PUMP_FUN_API_URL"] = ts.URL
	h.env["PUMP_FUN_API_KEY"] = demoserver.DefaultConfig().APIKey
	h.env["COIN_TICKER"] = "MCAT"
	h.env["COIN_WEBSITE"] = "https://mooncat.example"

	code := h.run(t, "manage")
	require.Equal(t, app.ExitOK, code, h.stderr.String())

	data, err := os.ReadFile(filepath.Join(h.dir, app.FileCoinResults))
	require.NoError(t, err)
	var res map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &res))
	assert.JSONEq(t, `{"promoted":true,"promotions":1}`, string(res["promotion_response"]))
	assert.Equal(t, "https://mooncat.example", ds.Coins()[0].Website)
}
