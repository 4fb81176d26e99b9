// Package cli builds the coinpilot command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/raysh454/coinpilot/internal/app"
	"github.com/raysh454/coinpilot/internal/launch"
	"github.com/raysh454/coinpilot/internal/logging"
	"github.com/raysh454/coinpilot/internal/server"
)

// Options are the process inputs. Zero values mean os.Args[1:], the standard
// streams and the process environment.
type Options struct {
	Args      []string
	Stdout    io.Writer
	Stderr    io.Writer
	LookupEnv func(string) (string, bool)
}

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

// Execute runs the command named in opts.Args and returns the process exit code.
func Execute(ctx context.Context, opts Options) int {
	if opts.Args == nil {
		opts.Args = os.Args[1:]
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	root := NewRootCommand(opts)
	root.SetArgs(opts.Args)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "error: %v\n", err)
	}
	return app.ExitCode(err)
}

// NewRootCommand returns the root command with every subcommand attached.
func NewRootCommand(opts Options) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "coinpilot",
		Short:         "Launch, manage and promote a token",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML config file (default $COINPILOT_CONFIG)")
	pf.StringVar(&g.envFile, "env-file", "", "dotenv file (default ./.env when present)")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&g.logFormat, "log-format", "", "json, console or stdout")

	root.AddCommand(
		serveCmd(g, opts),
		launchCmd(g, opts),
		manageCmd(g, opts),
		generateCmd(g, opts),
		postCmd(g, opts),
		readCmd(g, opts),
	)
	return root
}

func newApplication(g *globalFlags, opts Options) (*app.Application, error) {
	cfg, err := app.Load(app.LoadOptions{
		ConfigPath: g.configPath,
		EnvFile:    g.envFile,
		LookupEnv:  opts.LookupEnv,
	})
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return app.NewApplication(cfg, logger), nil
}

// withApp builds the application, runs fn and closes it.
func withApp(g *globalFlags, opts Options, fn func(cmd *cobra.Command, a *app.Application) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApplication(g, opts)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(); cerr != nil {
				a.Logger.Warn("closing application", logging.Field{Key: "error", Value: cerr})
			}
			if s, ok := a.Logger.(interface{ Sync() error }); ok {
				_ = s.Sync()
			}
		}()
		return fn(cmd, a)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd(g *globalFlags, opts Options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service (scrape, screenshot, model and launch jobs)",
		RunE: withApp(g, opts, func(cmd *cobra.Command, a *app.Application) error {
			if addr != "" {
				a.Config.Server.Addr = addr
			}
			scfg, err := server.ConfigFromApplication(a)
			if err != nil {
				return err
			}
			srv, err := server.NewServer(scfg)
			if err != nil {
				return err
			}
			defer srv.Close()

			httpSrv := srv.HTTPServer()
			errCh := make(chan error, 1)
			go func() { errCh <- httpSrv.ListenAndServe() }()
			a.Logger.Info("server listening", logging.Field{Key: "addr", Value: httpSrv.Addr})

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				a.Logger.Info("shutting down server")
				return httpSrv.Shutdown(shutdownCtx)
			}
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $SERVER_ADDR or :5000)")
	return cmd
}

func launchCmd(g *globalFlags, opts Options) *cobra.Command {
	var coin launch.FormPayload
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Create the token through a remote browser session",
		RunE: withApp(g, opts, func(cmd *cobra.Command, a *app.Application) error {
			overrideCoin(&a.Config.Coin, coin)
			out := cmd.OutOrStdout()
			res, err := a.Launch(cmd.Context(), func(ev launch.Event) {
				switch ev.Kind {
				case "state":
					if ev.ViewerURL != "" {
						fmt.Fprintf(out, "state: %s (watch at %s)\n", ev.State, ev.ViewerURL)
						return
					}
					fmt.Fprintf(out, "state: %s\n", ev.State)
				case "step":
					if ev.Error != "" {
						fmt.Fprintf(out, "step %s: %s (%s)\n", ev.Step, ev.Status, ev.Error)
						return
					}
					fmt.Fprintf(out, "step %s: %s\n", ev.Step, ev.Status)
				}
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "transaction hash: %s\n", res.TransactionHash)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&coin.Name, "name", "", "coin name (default $COIN_NAME)")
	f.StringVar(&coin.Ticker, "ticker", "", "coin ticker (default $COIN_TICKER)")
	f.StringVar(&coin.Description, "description", "", "coin description")
	f.StringVar(&coin.ImagePath, "image", "", "path to the coin image")
	f.StringVar(&coin.Website, "website", "", "website link")
	f.StringVar(&coin.Twitter, "twitter", "", "twitter link")
	f.StringVar(&coin.Telegram, "telegram", "", "telegram link")
	return cmd
}

func overrideCoin(dst *launch.FormPayload, src launch.FormPayload) {
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&dst.Name, src.Name},
		{&dst.Ticker, src.Ticker},
		{&dst.Description, src.Description},
		{&dst.ImagePath, src.ImagePath},
		{&dst.Website, src.Website},
		{&dst.Twitter, src.Twitter},
		{&dst.Telegram, src.Telegram},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
}

func manageCmd(g *globalFlags, opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "manage",
		Short: "Update details, fetch stats and promote the coin",
		RunE: withApp(g, opts, func(cmd *cobra.Command, a *app.Application) error {
			res, err := a.Manage(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
}

func generateCmd(g *globalFlags, opts Options) *cobra.Command {
	var coinData string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate promotional posts with the language model",
		RunE: withApp(g, opts, func(cmd *cobra.Command, a *app.Application) error {
			path, tweets, err := a.GenerateTweets(cmd.Context(), coinData)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, t := range tweets {
				fmt.Fprintf(out, "%d. %s\n", i+1, t)
			}
			fmt.Fprintf(out, "saved %d posts to %s\n", len(tweets), path)
			return nil
		}),
	}
	cmd.Flags().StringVar(&coinData, "coin-data", "", "coin description file (default <data_dir>/coin_data.json)")
	return cmd
}

func postCmd(g *globalFlags, opts Options) *cobra.Command {
	var (
		file  string
		delay time.Duration
	)
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post each generated line to the social account",
		RunE: withApp(g, opts, func(cmd *cobra.Command, a *app.Application) error {
			if cmd.Flags().Changed("delay") {
				a.Config.Twitter.PostDelay = delay
			}
			sum, err := a.PostTweets(cmd.Context(), file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "posted %d, failed %d\n", sum.Posted, sum.Failed)
			return nil
		}),
	}
	cmd.Flags().StringVar(&file, "file", "", "posts file (default <data_dir>/generated_tweets.txt)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause between posts (default $TWITTER_POST_DELAY or 60s)")
	return cmd
}

func readCmd(g *globalFlags, opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Collect replies and direct messages",
		RunE: withApp(g, opts, func(cmd *cobra.Command, a *app.Application) error {
			inbox, err := a.ReadInbox(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d replies and %d direct messages to %s\n",
				len(inbox.Replies), len(inbox.DMs), a.Path(app.FileInbox))
			return nil
		}),
	}
}
