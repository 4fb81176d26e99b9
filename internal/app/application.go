package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/raysh454/coinpilot/internal/coinapi"
	"github.com/raysh454/coinpilot/internal/history"
	"github.com/raysh454/coinpilot/internal/launch"
	"github.com/raysh454/coinpilot/internal/llm"
	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/persist"
	"github.com/raysh454/coinpilot/internal/promo"
	"github.com/raysh454/coinpilot/internal/scrape"
	"github.com/raysh454/coinpilot/internal/social"
	"github.com/raysh454/coinpilot/internal/steel"
	"github.com/raysh454/coinpilot/internal/webclient"
)

// Output file names, relative to Config.DataDir.
const (
	FileScreenshot  = "screenshot.png"
	FileCoinResults = "coin_management_results.json"
	FileCoinData    = "coin_data.json"
	FileTweets      = "generated_tweets.txt"
	FileInbox       = "replies_and_dms.json"
	FileHistory     = "coinpilot.db"
)

// Exit codes returned by ExitCode.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitMissingCredential = 2
	ExitStepFailure       = 3
)

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var mc *MissingCredentialError
	switch {
	case errors.As(err, &mc),
		errors.Is(err, steel.ErrMissingAPIKey),
		errors.Is(err, coinapi.ErrMissingAPIKey),
		errors.Is(err, social.ErrMissingCredentials):
		return ExitMissingCredential
	case launch.IsStepFailure(err):
		return ExitStepFailure
	default:
		return ExitFailure
	}
}

// NewLogger builds the logger selected by cfg.Log.
func NewLogger(cfg LogConfig) (logging.Logger, error) {
	switch strings.ToLower(cfg.Format) {
	case "stdout":
		return logging.NewStdoutLogger("coinpilot"), nil
	default:
		return logging.NewZapLogger(cfg.Level, cfg.Format)
	}
}

// Application holds the configuration and the clients shared by commands.
// Clients are built on first use so a command only needs the credentials it
// actually uses.
type Application struct {
	Config *Config
	Logger logging.Logger

	mu      sync.Mutex
	history *history.Store
	wc      webclient.WebClient
}

// NewApplication constructs an Application from already-loaded parts.
func NewApplication(cfg *Config, logger logging.Logger) *Application {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Application{Config: cfg, Logger: logger}
}

// Path resolves name inside the data directory.
func (a *Application) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(a.Config.DataDir, name)
}

// History opens the run history database once.
func (a *Application) History() (*history.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.history != nil {
		return a.history, nil
	}
	if err := os.MkdirAll(a.Config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := history.Open(a.Path(FileHistory), a.Logger)
	if err != nil {
		return nil, err
	}
	a.history = store
	return store, nil
}

// WebClient returns the shared plain HTTP client for REST calls.
func (a *Application) WebClient() (webclient.WebClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.wc != nil {
		return a.wc, nil
	}
	wc, err := webclient.NewWebClient(webclient.Config{Client: webclient.ClientNetHTTP}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.wc = wc
	return wc, nil
}

// Close releases shared clients.
func (a *Application) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
		a.history = nil
	}
	if a.wc != nil {
		errs = append(errs, a.wc.Close())
		a.wc = nil
	}
	return errors.Join(errs...)
}

// LaunchFlow builds a flow for one launch run.
func (a *Application) LaunchFlow() (*launch.Flow, error) {
	if err := a.Config.RequireSteel(); err != nil {
		return nil, err
	}
	wc, err := a.WebClient()
	if err != nil {
		return nil, err
	}
	sessions, err := steel.NewClient(steel.Config{
		APIKey:     a.Config.Steel.APIKey,
		APIURL:     a.Config.Steel.APIURL,
		ConnectURL: a.Config.Steel.ConnectURL,
	}, wc, a.Logger)
	if err != nil {
		return nil, err
	}
	store, err := a.History()
	if err != nil {
		return nil, err
	}

	bcfg := a.Config.BrowserSettings()
	return launch.NewFlow(launch.FlowConfig{
		Runner: launch.RunnerConfig{
			CreateURL:      a.Config.Launch.CreateURL,
			ScreenshotPath: a.Path("pump.png"),
			Amount:         a.Config.Launch.Amount,
		},
		OutputDir: a.Config.DataDir,
	}, sessions, func() launch.Connector {
		return launch.NewChromeConnector(bcfg, a.Logger)
	}, store, a.Logger), nil
}

// Launch runs one launch with the configured coin payload.
func (a *Application) Launch(ctx context.Context, onEvent func(launch.Event)) (*launch.Result, error) {
	flow, err := a.LaunchFlow()
	if err != nil {
		return nil, err
	}
	if onEvent != nil {
		flow.OnEvent(onEvent)
	}
	return flow.Run(ctx, a.Config.Coin)
}

// CoinManager builds the coin API manager.
func (a *Application) CoinManager() (*coinapi.Manager, error) {
	if err := a.Config.RequireCoinAPI(); err != nil {
		return nil, err
	}
	wc, err := a.WebClient()
	if err != nil {
		return nil, err
	}
	client, err := coinapi.NewClient(a.Config.CoinAPI.BaseURL, a.Config.CoinAPI.APIKey, wc, a.Logger)
	if err != nil {
		return nil, err
	}
	return coinapi.NewManager(client, a.Path(FileCoinResults), a.Logger), nil
}

// Manage updates, inspects and promotes the configured coin.
func (a *Application) Manage(ctx context.Context) (*coinapi.Results, error) {
	m, err := a.CoinManager()
	if err != nil {
		return nil, err
	}
	details := a.Config.CoinAPI.Details
	if details.Description == "" {
		details.Description = a.Config.Coin.Description
	}
	if details.Website == "" {
		details.Website = a.Config.Coin.Website
	}
	if details.Twitter == "" {
		details.Twitter = a.Config.Coin.Twitter
	}
	if details.Telegram == "" {
		details.Telegram = a.Config.Coin.Telegram
	}
	return m.Run(ctx, a.Config.Coin.Ticker, details)
}

// Generator returns the language model client.
func (a *Application) Generator() llm.Generator {
	return llm.NewOpenAIGenerator(a.Config.LLM, a.Logger)
}

// GenerateTweets reads coinDataPath (default coin_data.json), generates the
// promotional posts and saves them. It returns the output path.
func (a *Application) GenerateTweets(ctx context.Context, coinDataPath string) (string, []string, error) {
	if coinDataPath == "" {
		coinDataPath = a.Path(FileCoinData)
	}
	cd, err := promo.LoadCoinData(coinDataPath)
	if err != nil {
		return "", nil, err
	}
	tweets, err := promo.NewTweetGenerator(a.Generator(), a.Logger).Generate(ctx, promo.Prompts(cd))
	if err != nil {
		return "", nil, err
	}
	out := a.Path(FileTweets)
	if err := promo.SaveTweets(tweets, out); err != nil {
		return "", nil, err
	}
	a.Logger.Info("tweets saved", logging.Field{Key: "path", Value: out}, logging.Field{Key: "count", Value: len(tweets)})
	return out, tweets, nil
}

func (a *Application) socialClient(ctx context.Context) (*social.Client, error) {
	if err := a.Config.RequireTwitter(); err != nil {
		return nil, err
	}
	return social.NewClient(ctx, a.Config.Twitter.APIURL, a.Config.Twitter.Credentials(), a.Logger)
}

// PostTweets posts every non-empty line of tweetsPath (default generated_tweets.txt).
func (a *Application) PostTweets(ctx context.Context, tweetsPath string) (social.PostSummary, error) {
	client, err := a.socialClient(ctx)
	if err != nil {
		return social.PostSummary{}, err
	}
	defer client.Close()

	if tweetsPath == "" {
		tweetsPath = a.Path(FileTweets)
	}
	tweets, err := social.ReadTweets(tweetsPath)
	if err != nil {
		return social.PostSummary{}, err
	}
	if len(tweets) == 0 {
		a.Logger.Info("no tweets to post", logging.Field{Key: "path", Value: tweetsPath})
		return social.PostSummary{}, nil
	}
	store, err := a.History()
	if err != nil {
		return social.PostSummary{}, err
	}
	return social.NewPoster(client, a.Config.Twitter.PostDelay, store, a.Logger).PostAll(ctx, tweets)
}

// ReadInbox collects replies and direct messages and saves them.
func (a *Application) ReadInbox(ctx context.Context) (*social.Inbox, error) {
	client, err := a.socialClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	inbox, err := social.NewReader(client, a.Config.Twitter.ReadLimit, a.Logger).Collect(ctx)
	if err != nil {
		return nil, err
	}
	if err := persist.Save(inbox, a.Path(FileInbox)); err != nil {
		return nil, err
	}
	return inbox, nil
}

// Scraper returns the backend selected by Server.ScrapeBackend.
func (a *Application) Scraper() (scrape.Scraper, error) {
	switch a.Config.Server.ScrapeBackend {
	case "", scrape.BackendSteel:
		wc, err := a.WebClient()
		if err != nil {
			return nil, err
		}
		return scrape.NewSteelScraper(steel.NewLocalClient(a.Config.Steel.LocalURL, wc, a.Logger), a.Logger), nil
	case scrape.BackendRender:
		wc, err := webclient.NewWebClient(webclient.Config{Client: a.Config.WebClient}, a.Logger)
		if err != nil {
			return nil, err
		}
		return scrape.NewRenderScraper(wc, a.Config.BrowserSettings(), a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown scrape backend %q", a.Config.Server.ScrapeBackend)
	}
}
