package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/raysh454/coinpilot/internal/browser"
	"github.com/raysh454/coinpilot/internal/coinapi"
	"github.com/raysh454/coinpilot/internal/launch"
	"github.com/raysh454/coinpilot/internal/llm"
	"github.com/raysh454/coinpilot/internal/scrape"
	"github.com/raysh454/coinpilot/internal/social"
	"github.com/raysh454/coinpilot/internal/steel"
	"github.com/raysh454/coinpilot/internal/webclient"
)

// Config is the full runtime configuration. Every command reads the parts it
// needs; Require* checks run before any client is built.
type Config struct {
	// DataDir receives every output file and the history database.
	DataDir string `yaml:"data_dir"`

	Log       LogConfig          `yaml:"log"`
	Server    ServerConfig       `yaml:"server"`
	Steel     SteelConfig        `yaml:"steel"`
	Browser   BrowserConfig      `yaml:"browser"`
	Coin      launch.FormPayload `yaml:"coin"`
	Launch    LaunchConfig       `yaml:"launch"`
	CoinAPI   CoinAPIConfig      `yaml:"coin_api"`
	Twitter   TwitterConfig      `yaml:"twitter"`
	LLM       llm.Config         `yaml:"llm"`
	WebClient webclient.Client   `yaml:"webclient"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "json" or "console" (zap), or "stdout" for the plain JSON-lines logger.
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	ScrapeBackend string `yaml:"scrape_backend"`
	// AllowedOrigins gates CORS and websocket upgrades. Empty allows any
	// origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type SteelConfig struct {
	APIKey     string `yaml:"api_key"`
	APIURL     string `yaml:"api_url"`
	ConnectURL string `yaml:"connect_url"`
	LocalURL   string `yaml:"local_url"`
}

type BrowserConfig struct {
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ImplicitWait      time.Duration `yaml:"implicit_wait"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	IdleAfter         time.Duration `yaml:"idle_after"`
}

type LaunchConfig struct {
	CreateURL string `yaml:"create_url"`
	Amount    string `yaml:"amount"`
}

type CoinAPIConfig struct {
	APIKey  string          `yaml:"api_key"`
	BaseURL string          `yaml:"base_url"`
	Details coinapi.Details `yaml:"details"`
}

type TwitterConfig struct {
	APIKey            string        `yaml:"api_key"`
	APISecretKey      string        `yaml:"api_secret_key"`
	AccessToken       string        `yaml:"access_token"`
	AccessTokenSecret string        `yaml:"access_token_secret"`
	APIURL            string        `yaml:"api_url"`
	PostDelay         time.Duration `yaml:"post_delay"`
	ReadLimit         int           `yaml:"read_limit"`
}

// Credentials returns the OAuth secrets as a social.Credentials.
func (t TwitterConfig) Credentials() social.Credentials {
	return social.Credentials{
		APIKey:            t.APIKey,
		APISecretKey:      t.APISecretKey,
		AccessToken:       t.AccessToken,
		AccessTokenSecret: t.AccessTokenSecret,
	}
}

// DefaultConfig returns a Config populated with working defaults. Credentials
// are always empty.
func DefaultConfig() *Config {
	b := browser.DefaultConfig()
	return &Config{
		DataDir: ".",
		Log:     LogConfig{Level: "info", Format: "console"},
		Server:  ServerConfig{Addr: ":5000", ScrapeBackend: scrape.BackendSteel},
		Steel: SteelConfig{
			APIURL:     steel.DefaultAPIURL,
			ConnectURL: steel.DefaultConnectURL,
			LocalURL:   steel.DefaultLocalURL,
		},
		Browser: BrowserConfig{
			ConnectTimeout:    b.ConnectTimeout,
			ImplicitWait:      b.ImplicitWait,
			NavigationTimeout: b.NavigationTimeout,
			IdleAfter:         b.IdleAfter,
		},
		Launch:    LaunchConfig{CreateURL: launch.DefaultCreateURL, Amount: launch.DefaultAmount},
		CoinAPI:   CoinAPIConfig{BaseURL: coinapi.DefaultBaseURL},
		Twitter:   TwitterConfig{APIURL: social.DefaultAPIURL, PostDelay: social.DefaultPostDelay, ReadLimit: social.DefaultReadLimit},
		LLM:       llm.Config{BaseURL: llm.DefaultBaseURL, Model: llm.DefaultModel, MaxTokens: 120, Temperature: 0.8},
		WebClient: webclient.ClientNetHTTP,
	}
}

// BrowserSettings converts the browser section for the browser package.
func (c *Config) BrowserSettings() browser.Config {
	b := browser.DefaultConfig()
	b.ConnectTimeout = c.Browser.ConnectTimeout
	b.ImplicitWait = c.Browser.ImplicitWait
	b.NavigationTimeout = c.Browser.NavigationTimeout
	b.IdleAfter = c.Browser.IdleAfter
	return b
}

// MissingCredentialError names the unset variable.
type MissingCredentialError struct {
	Name string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s is not set", e.Name)
}

func requireValue(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return &MissingCredentialError{Name: name}
	}
	return nil
}

// RequireSteel checks the cloud browser credential.
func (c *Config) RequireSteel() error {
	return requireValue("STEEL_API_KEY", c.Steel.APIKey)
}

// RequireCoinAPI checks the coin platform credential and the ticker it acts on.
func (c *Config) RequireCoinAPI() error {
	if err := requireValue("PUMP_FUN_API_KEY", c.CoinAPI.APIKey); err != nil {
		return err
	}
	return requireValue("COIN_TICKER", c.Coin.Ticker)
}

// RequireTwitter checks all four OAuth secrets.
func (c *Config) RequireTwitter() error {
	if missing := c.Twitter.Credentials().Missing(); len(missing) > 0 {
		return &MissingCredentialError{Name: strings.Join(missing, ", ")}
	}
	return nil
}

// LoadOptions controls where Load looks. Zero values fall back to
// COINPILOT_CONFIG, ./.env and the process environment.
type LoadOptions struct {
	ConfigPath string
	EnvFile    string
	LookupEnv  func(string) (string, bool)
}

// Load layers defaults, the YAML file, the .env file and the environment, in
// that order of increasing precedence. Values from .env never override the
// real environment.
func Load(opts LoadOptions) (*Config, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	envFile := opts.EnvFile
	explicitEnv := envFile != ""
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		if explicitEnv || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
		dotenv = map[string]string{}
	}
	// Set but empty counts as unset at both layers.
	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok && strings.TrimSpace(v) != ""
	}

	cfg := DefaultConfig()

	path := opts.ConfigPath
	if path == "" {
		path, _ = get("COINPILOT_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, get); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, get func(string) (string, bool)) error {
	strs := map[string]*string{
		"STEEL_API_KEY":               &cfg.Steel.APIKey,
		"STEEL_API_URL":               &cfg.Steel.APIURL,
		"STEEL_CONNECT_URL":           &cfg.Steel.ConnectURL,
		"STEEL_LOCAL_URL":             &cfg.Steel.LocalURL,
		"COIN_NAME":                   &cfg.Coin.Name,
		"COIN_TICKER":                 &cfg.Coin.Ticker,
		"COIN_DESCRIPTION":            &cfg.Coin.Description,
		"COIN_IMAGE":                  &cfg.Coin.ImagePath,
		"COIN_WEBSITE":                &cfg.Coin.Website,
		"COIN_TWITTER":                &cfg.Coin.Twitter,
		"COIN_TELEGRAM":               &cfg.Coin.Telegram,
		"PUMP_FUN_API_KEY":            &cfg.CoinAPI.APIKey,
		"PUMP_FUN_API_URL":            &cfg.CoinAPI.BaseURL,
		"PUMP_FUN_CREATE_URL":         &cfg.Launch.CreateURL,
		"TWITTER_API_KEY":             &cfg.Twitter.APIKey,
		"TWITTER_API_SECRET_KEY":      &cfg.Twitter.APISecretKey,
		"TWITTER_ACCESS_TOKEN":        &cfg.Twitter.AccessToken,
		"TWITTER_ACCESS_TOKEN_SECRET": &cfg.Twitter.AccessTokenSecret,
		"TWITTER_API_URL":             &cfg.Twitter.APIURL,
		"LLM_BASE_URL":                &cfg.LLM.BaseURL,
		"LLM_MODEL":                   &cfg.LLM.Model,
		"LLM_API_KEY":                 &cfg.LLM.APIKey,
		"SERVER_ADDR":                 &cfg.Server.Addr,
		"SCRAPE_BACKEND":              &cfg.Server.ScrapeBackend,
		"COINPILOT_DATA_DIR":          &cfg.DataDir,
		"LOG_LEVEL":                   &cfg.Log.Level,
		"LOG_FORMAT":                  &cfg.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	if v, ok := get("TWITTER_POST_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TWITTER_POST_DELAY: %w", err)
		}
		cfg.Twitter.PostDelay = d
	}
	if v, ok := get("TWITTER_READ_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TWITTER_READ_LIMIT: %w", err)
		}
		cfg.Twitter.ReadLimit = n
	}
	if v, ok := get("CORS_ALLOWED_ORIGINS"); ok {
		cfg.Server.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, o)
			}
		}
	}
	if v, ok := get("WEBCLIENT"); ok {
		cfg.WebClient = webclient.Client(v)
	}
	return nil
}
