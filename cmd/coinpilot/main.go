// Command coinpilot launches, manages and promotes a token.
// Usage: coinpilot [--config file] [--env-file file] <serve|launch|manage|generate|post|read>
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raysh454/coinpilot/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.Options{})
	stop()
	os.Exit(code)
}
