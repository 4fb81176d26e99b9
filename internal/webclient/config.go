package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// Config is the minimal set of options required for constructing a WebClient.
type Config struct {
	Client Client

	// Timeout bounds one request. Zero means 30s.
	Timeout time.Duration

	// IdleAfter is the chromedp network idle window. Zero means 2s.
	IdleAfter time.Duration

	// Headless only applies to the chromedp backend; nil means true.
	Headless *bool

	UserAgent string

	// MaxBodyBytes caps how much of a response body is read. Zero means 10 MiB.
	MaxBodyBytes int64
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

func (c Config) maxBody() int64 {
	if c.MaxBodyBytes > 0 {
		return c.MaxBodyBytes
	}
	return 10 << 20
}
