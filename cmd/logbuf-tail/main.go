package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericbosch/kettle-logbuffer/internal/config"
	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
	"github.com/ericbosch/kettle-logbuffer/internal/tailview"
)

func main() {
	var (
		opts        tailOptions
		tokenFile   string
		jsonOut     bool
		noColor     bool
		showChannel bool
		utc         bool
	)
	root := &cobra.Command{
		Use:          "logbuf-tail",
		Short:        "Tail a logbuf-host over WebSocket",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
				return err
			}
			if cmd.Flags().Changed("token") {
				cfg.Token = opts.Token
			}
			if cmd.Flags().Changed("token-file") {
				cfg.TokenFile = tokenFile
			}
			token, err := cfg.ResolveToken()
			if err != nil {
				if errors.Is(err, config.ErrNoToken) {
					return errors.New("no token: use --token, --token-file or LOGBUF_TOKEN")
				}
				return err
			}
			opts.Token = token

			var render tailview.Renderer
			if jsonOut {
				render = tailview.NewJSONRenderer(cmd.OutOrStdout())
			} else {
				layout := logbuffer.Layout{}
				if utc {
					layout.Location = time.UTC
				}
				render = tailview.NewTextRenderer(cmd.OutOrStdout(), layout, showChannel, noColor)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return newTailer(opts, render, cmd.ErrOrStderr()).run(ctx)
		},
	}
	f := root.Flags()
	f.StringVar(&opts.Base, "url", "http://127.0.0.1:8787", "Host base URL")
	f.StringVar(&opts.Token, "token", "", "Bearer token (overrides LOGBUF_TOKEN)")
	f.StringVar(&tokenFile, "token-file", "", "Read the token from this file")
	f.IntVar(&opts.LastN, "last-n", 50, "Replay this many lines before following")
	f.Uint64Var(&opts.FromLine, "from-line", 0, "Replay lines after this line number instead of --last-n")
	f.StringVar(&opts.Channels, "channel", "", "Comma-separated channel IDs to show")
	f.BoolVar(&opts.General, "general", false, "With --channel, also show general lines")
	f.StringVar(&opts.Level, "level", "", "Show lines at or above this Kettle level (Error, Minimal, Basic, Detailed, Debug, Rowlevel)")
	f.StringVar(&opts.Filter, "filter", "", "CEL filter, e.g. 'message.contains(\"ERROR\")'")
	f.BoolVarP(&opts.Follow, "follow", "f", true, "Keep streaming new lines and reconnect on failure")
	f.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "HTTP and handshake timeout")
	f.BoolVar(&jsonOut, "json", false, "Print JSON lines instead of text")
	f.BoolVar(&noColor, "no-color", false, "Disable colors")
	f.BoolVar(&showChannel, "show-channel", true, "Prefix lines with their channel")
	f.BoolVar(&utc, "utc", false, "Print timestamps in UTC")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
