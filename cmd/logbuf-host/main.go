package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ericbosch/kettle-logbuffer/internal/capture"
	"github.com/ericbosch/kettle-logbuffer/internal/config"
	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
	"github.com/ericbosch/kettle-logbuffer/internal/logging"
	"github.com/ericbosch/kettle-logbuffer/internal/metrics"
	"github.com/ericbosch/kettle-logbuffer/internal/policy"
	"github.com/ericbosch/kettle-logbuffer/internal/server"
)

// hostChannel is the buffer channel the host's own log records go to.
const hostChannel = "logbuf-host"

func tokenSHA256Hex(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func main() {
	root := &cobra.Command{
		Use:          "logbuf-host",
		Short:        "Central log buffer host",
		SilenceUsage: true,
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the central log buffer over HTTP and WebSocket",
		RunE:  runServe,
	}
	f := serveCmd.Flags()
	f.String("config", "", "YAML config file")
	f.String("bind", "", "Bind address (default 127.0.0.1; 0.0.0.0 exposes the host to the network)")
	f.String("port", "", "Port (default 8787)")
	f.String("token", "", "Bearer token for API/WS auth (overrides LOGBUF_TOKEN)")
	f.String("token-file", "", "Token file, read when no token is given (overrides LOGBUF_TOKEN_FILE)")
	f.Bool("generate-dev-token", false, "Write a fresh token to --token-file if none is set")
	f.String("web-dir", "", "Serve a static log viewer from this directory at /")
	f.Int("max-lines", 0, "Buffer capacity in lines; 0 keeps the configured value, negative means unbounded")
	f.Duration("max-age", 0, "Drop lines older than this (overrides KETTLE_MAX_LOG_TIMEOUT_IN_MINUTES)")
	f.String("spool", "", "Append every line to this JSONL file and restore from it on start")
	f.Int64("spool-max-bytes", 0, "Rotate the spool file at this size (default 64MiB; negative disables)")
	f.String("capture-log-dir", "", "Keep raw output of captured processes in this directory")
	f.String("log-level", "", "Host log level: debug, info, warn, error")
	f.String("log-format", "", "Host log format: text or json")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("bind", &cfg.Bind)
	str("port", &cfg.Port)
	str("token", &cfg.Token)
	str("token-file", &cfg.TokenFile)
	str("web-dir", &cfg.WebDir)
	str("spool", &cfg.Spool.Path)
	str("capture-log-dir", &cfg.Capture.LogDir)
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	if flags.Changed("max-lines") {
		cfg.Buffer.MaxLines, _ = flags.GetInt("max-lines")
	}
	if flags.Changed("spool-max-bytes") {
		cfg.Spool.MaxBytes, _ = flags.GetInt64("spool-max-bytes")
	}
	if flags.Changed("max-age") {
		cfg.Buffer.MaxAge, _ = flags.GetDuration("max-age")
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	handler, err := logging.NewHandler(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	// base never writes into the buffer; the buffer and spool report through
	// it so their own diagnostics cannot feed back into themselves.
	base := slog.New(handler)

	m := metrics.New()
	buf := logbuffer.NewBuffer(cfg.Buffer.MaxLines,
		logbuffer.WithLogger(base.With("component", "logbuffer")),
		logbuffer.WithMetrics(m),
	)

	logger := base
	if cfg.Log.Buffer {
		level, _ := logging.ParseLevel(cfg.Log.Level)
		logger = slog.New(logging.Tee(handler, logging.NewBufferHandler(buf, hostChannel, "logbuf-host", level)))
	}
	slog.SetDefault(logger)

	token, err := cfg.ResolveToken()
	if errors.Is(err, config.ErrNoToken) {
		generate, _ := cmd.Flags().GetBool("generate-dev-token")
		if generate && cfg.TokenFile != "" {
			token, err = server.GenerateAndWriteDevToken(cfg.TokenFile)
			if err == nil {
				logger.Info("dev token written; use it as the Bearer token", "file", cfg.TokenFile, "len", len(token), "sha256", tokenSHA256Hex(token))
			}
		}
	}
	if err != nil {
		return fmt.Errorf("%w: use --token/LOGBUF_TOKEN, --token-file/LOGBUF_TOKEN_FILE, or --generate-dev-token with --token-file", err)
	}

	if cfg.Spool.Path != "" {
		spool, err := openSpool(cfg, buf, base)
		if err != nil {
			return err
		}
		defer spool.Close()
	}

	if _, removed := policy.CaptureEnv(os.Environ()); len(removed) > 0 {
		logger.Warn("secret env vars will be hidden from captured processes", "count", len(removed))
	}
	if cfg.Bind == "0.0.0.0" {
		logger.Warn("binding to 0.0.0.0: the log host is exposed to the network; use only on a trusted LAN or VPN")
	}

	captures := capture.NewManager(buf, cfg.Capture.LogDir, logger.With("component", "capture"))
	captures.OnStart = m.CaptureStarted
	defer captures.Shutdown()

	srv := server.New(server.Config{
		Bind:          cfg.Bind,
		Port:          cfg.Port,
		Token:         token,
		WebDir:        cfg.WebDir,
		MaxAge:        cfg.Buffer.MaxAge,
		SweepInterval: cfg.Buffer.SweepInterval,
	}, buf, captures, m, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("log host starting", "max_lines", cfg.Buffer.MaxLines, "max_age", cfg.Buffer.MaxAge.String())
	return srv.Run(ctx)
}

// openSpool restores the spool tail into buf and then starts appending to
// it, so restored lines are not written twice.
func openSpool(cfg config.Config, buf *logbuffer.Buffer, logger *slog.Logger) (*logbuffer.JSONLSpool, error) {
	if cfg.Spool.Restore > 0 {
		evs, err := logbuffer.LoadSpoolTail(cfg.Spool.Path, cfg.Spool.Restore)
		if err != nil {
			return nil, fmt.Errorf("restore spool: %w", err)
		}
		logbuffer.Restore(buf, evs)
		if len(evs) > 0 {
			logger.Info("restored lines from spool", "path", cfg.Spool.Path, "lines", len(evs))
		}
	}
	spool, err := logbuffer.NewJSONLSpool(cfg.Spool.Path, logger.With("component", "spool"),
		logbuffer.WithMaxBytes(cfg.Spool.MaxBytes))
	if err != nil {
		return nil, err
	}
	buf.AddListener(spool)
	return spool, nil
}
