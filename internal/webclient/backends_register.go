package webclient

import (
	"github.com/raysh454/coinpilot/internal/logging"
)

// RegisterDefaultBackends registers the nethttp and chromedp backends. It runs
// from init; calling it again restores the defaults.
func RegisterDefaultBackends() {
	RegisterBackend(string(ClientNetHTTP), func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewNetHTTPClient(cfg, logger, nil)
	})

	RegisterBackend(string(ClientChromedp), func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewChromedpClient(cfg, logger)
	})
}
