package browser

import "time"

// Config controls connection and page wait behavior.
type Config struct {
	// ConnectTimeout bounds attaching to the browser and opening the tab.
	ConnectTimeout time.Duration

	// ImplicitWait is how long a page step waits for its element.
	ImplicitWait time.Duration

	// NavigationTimeout bounds a navigation including the network idle wait.
	NavigationTimeout time.Duration

	// IdleAfter is the quiet period with no requests in flight that counts as network idle.
	IdleAfter time.Duration

	// ProbeTimeout bounds the existence check run after a wait times out.
	ProbeTimeout time.Duration

	// Headless only applies to locally launched browsers.
	Headless bool
}

// DefaultConfig returns the wait windows used by the launch flow.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    30 * time.Second,
		ImplicitWait:      30 * time.Second,
		NavigationTimeout: 60 * time.Second,
		IdleAfter:         500 * time.Millisecond,
		ProbeTimeout:      2 * time.Second,
		Headless:          true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ImplicitWait <= 0 {
		c.ImplicitWait = d.ImplicitWait
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = d.NavigationTimeout
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = d.IdleAfter
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	return c
}
