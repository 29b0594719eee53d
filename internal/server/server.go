package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericbosch/kettle-logbuffer/internal/capture"
	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
)

// Config holds server configuration.
type Config struct {
	Bind   string
	Port   string
	Token  string
	WebDir string

	// MaxAge > 0 enables the timeout sweeper in Run.
	MaxAge        time.Duration
	SweepInterval time.Duration
}

// Metrics is the part of the metrics registry the server exposes.
type Metrics interface {
	Handler() http.Handler
	TailDropped()
}

// Server is the HTTP and WebSocket front of one log buffer.
type Server struct {
	cfg      Config
	buf      *logbuffer.Buffer
	captures *capture.Manager
	metrics  Metrics
	logger   *slog.Logger
	layout   logbuffer.Layout
	tickets  *wsTicketManager
	mux      *http.ServeMux
}

// New creates a server. captures and metrics may be nil.
func New(cfg Config, buf *logbuffer.Buffer, captures *capture.Manager, metrics Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		buf:      buf,
		captures: captures,
		metrics:  metrics,
		logger:   logger,
		tickets:  newWSTicketManager(),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/buffer", s.handleBufferStats)
	api.HandleFunc("POST /api/events", s.handleAddEvents)
	api.HandleFunc("GET /api/lines", s.handleLines)
	api.HandleFunc("DELETE /api/lines", s.handleRemoveLines)
	api.HandleFunc("GET /api/log", s.handleLogText)
	api.HandleFunc("DELETE /api/channels/{id}", s.handleRemoveChannel)
	api.HandleFunc("GET /api/captures", s.handleListCaptures)
	api.HandleFunc("POST /api/captures", s.handleCreateCapture)
	api.HandleFunc("POST /api/captures/{id}/terminate", s.handleTerminateCapture)
	api.HandleFunc("POST /api/ws-ticket", s.issueWSTicket)
	api.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, "not_found", "no such endpoint", "")
	})
	s.mux.Handle("/api/", s.authMiddleware(false, api))
	s.mux.Handle("GET /ws/tail", s.authMiddleware(true, http.HandlerFunc(s.handleWSTail)))

	if s.cfg.WebDir != "" {
		s.mux.Handle("/", spaFileServer(s.cfg.WebDir))
	} else {
		s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("logbuf-host: use /api/lines, /api/log and /ws/tail\n"))
		})
	}
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// Run serves HTTP and sweeps expired lines until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Bind, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", "http://"+addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sw := &logbuffer.Sweeper{
			Buffer:   s.buf,
			MaxAge:   s.cfg.MaxAge,
			Interval: s.cfg.SweepInterval,
			Logger:   s.logger,
		}
		return sw.Run(ctx)
	})
	return g.Wait()
}
