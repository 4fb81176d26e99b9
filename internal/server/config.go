package server

import (
	"context"

	"github.com/raysh454/coinpilot/internal/app"
	"github.com/raysh454/coinpilot/internal/history"
	"github.com/raysh454/coinpilot/internal/launch"
	"github.com/raysh454/coinpilot/internal/llm"
	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/scrape"
)

// RunLister is the read side of the run history.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]history.Run, error)
}

type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string
	// ScreenshotPath is where /screenshot writes its image.
	ScreenshotPath string
	// AllowedOrigins lists the browser origins allowed by CORS and the
	// websocket upgrader. Empty or "*" allows any origin.
	AllowedOrigins []string

	Scraper   scrape.Scraper
	Generator llm.Generator
	Runs      RunLister

	// Launch runs one launch job; nil disables the /jobs endpoints.
	Launch app.LaunchFunc
	// DefaultPayload is launched when POST /jobs/launch has no body.
	DefaultPayload launch.FormPayload

	Logger logging.Logger
}

// ConfigFromApplication wires the server to the application's clients.
func ConfigFromApplication(a *app.Application) (Config, error) {
	sc, err := a.Scraper()
	if err != nil {
		return Config{}, err
	}
	store, err := a.History()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ListenAddr:     a.Config.Server.Addr,
		ScreenshotPath: a.Path(app.FileScreenshot),
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		Scraper:        sc,
		Generator:      a.Generator(),
		Runs:           store,
		Launch:         app.ApplicationLaunchFunc(a),
		DefaultPayload: a.Config.Coin,
		Logger:         a.Logger,
	}, nil
}
