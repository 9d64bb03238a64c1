/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/looplearn/internal/api"
	"github.com/friendsincode/looplearn/internal/config"
	"github.com/friendsincode/looplearn/internal/db"
	"github.com/friendsincode/looplearn/internal/editor"
	"github.com/friendsincode/looplearn/internal/eventbus"
	"github.com/friendsincode/looplearn/internal/events"
	"github.com/friendsincode/looplearn/internal/library"
	"github.com/friendsincode/looplearn/internal/logbuffer"
	"github.com/friendsincode/looplearn/internal/playback"
	"github.com/friendsincode/looplearn/internal/player"
	"github.com/friendsincode/looplearn/internal/telemetry"
)

//go:embed assets/player.html
var assetsFS embed.FS

// connector is implemented by players that need the HTTP server up before
// they can attach (the YouTube player loads /player).
type connector interface {
	Connect(ctx context.Context) error
}

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	bus       *events.Bus
	forwarder eventbus.Forwarder
	player    player.Player
	scheduler *playback.Scheduler
	store     library.Store
	watcher   *library.Watcher
	session   *editor.Session
	api       *api.API
	logBuffer *logbuffer.Buffer

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("looplearn-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The event stream is long lived; everything else gets a deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the event stream; the middleware timeout
		// covers regular routes.
		IdleTimeout: 60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		// The player page pulls the IFrame API and its iframe from YouTube.
		w.Header().Set("Content-Security-Policy", "default-src 'self' 'unsafe-inline' https:; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request through zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			event := logger.Debug()
			if ww.Status() >= http.StatusInternalServerError {
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

func (s *Server) initDependencies() error {
	fwd, err := eventbus.Open(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("open event bus: %w", err)
	}
	var publisher events.Publisher = s.bus
	if fwd != nil {
		s.forwarder = fwd
		s.DeferClose(fwd.Close)
		publisher = events.Fanout{s.bus, fwd}
	}

	p, err := s.newPlayer()
	if err != nil {
		return err
	}
	s.player = p
	s.DeferClose(p.Close)

	s.scheduler = playback.New(p, publisher, playback.Config{
		PollInterval: s.cfg.PollInterval(),
		PlaybackRate: s.cfg.PlaybackRate,
		SkipStep:     s.cfg.SkipStep,
	}, s.logger)
	s.DeferClose(func() error {
		s.scheduler.Close()
		return nil
	})

	store, err := s.newStore(publisher)
	if err != nil {
		return err
	}
	s.store = store

	var checker library.Checker
	if c, ok := store.(library.Checker); ok {
		checker = c
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.CheckAccess(ctx); err != nil {
			// Reported by /api/v1/health; the editor still works without saving.
			s.logger.Warn().Err(err).Str("backend", s.cfg.LibraryBackend).Msg("library not accessible")
		}
		cancel()
	}

	s.session = editor.New(s.scheduler, store, publisher, s.logger)
	s.api = api.New(s.session, s.bus, checker, s.logger)
	if s.logBuffer != nil {
		s.api.SetLogBuffer(s.logBuffer)
	}
	return nil
}

func (s *Server) newPlayer() (player.Player, error) {
	switch s.cfg.PlayerBackend {
	case config.PlayerSimulated:
		return player.NewSimulated(s.cfg.SimDurationSecs, s.logger), nil
	case config.PlayerMPV:
		mc := player.DefaultMPVConfig()
		mc.SocketPath = s.cfg.MPVSocket
		ctx, cancel := context.WithTimeout(context.Background(), mc.DialTimeout)
		defer cancel()
		mp, err := player.DialMPV(ctx, mc, s.logger)
		if err != nil {
			return nil, fmt.Errorf("connect mpv: %w", err)
		}
		return mp, nil
	case config.PlayerYouTube:
		return player.NewYouTube(player.YouTubeConfig{
			PageURL:    s.cfg.PublicURL() + "/player",
			ControlURL: s.cfg.BrowserControlURL,
			Headless:   s.cfg.BrowserHeadless,
		}, s.logger), nil
	default:
		return nil, fmt.Errorf("unknown player backend: %s", s.cfg.PlayerBackend)
	}
}

func (s *Server) newStore(bus events.Publisher) (library.Store, error) {
	switch s.cfg.LibraryBackend {
	case config.LibraryFolder:
		if err := os.MkdirAll(s.cfg.LibraryDir, 0o755); err != nil {
			s.logger.Warn().Err(err).Str("dir", s.cfg.LibraryDir).Msg("create library dir")
		}
		if s.cfg.LibraryWatch {
			s.watcher = library.NewWatcher(s.cfg.LibraryDir, bus, s.logger)
		}
		return library.Instrument(library.NewFolderStore(s.cfg.LibraryDir, s.logger), library.BackendFolder), nil
	case config.LibraryDatabase:
		database, err := db.Connect(s.cfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		s.db = database
		s.DeferClose(func() error { return db.Close(database) })
		if err := db.Migrate(database); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return library.Instrument(library.NewSQLStore(database, s.logger), library.BackendDatabase), nil
	default:
		return nil, fmt.Errorf("unknown library backend: %s", s.cfg.LibraryBackend)
	}
}

// Router exposes the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Session returns the editing session.
func (s *Server) Session() *editor.Session {
	return s.session
}

// ListenAndServe binds the listener, then attaches players that load pages
// from this server. It blocks until the server stops.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")

	if c, ok := s.player.(connector); ok {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			connectCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
			defer cancel()
			if err := c.Connect(connectCtx); err != nil {
				s.logger.Error().Err(err).Msg("player connect failed")
				return
			}
			// Cue the current video once the page is up.
			if list := s.session.List(); list.VideoID != "" {
				_ = s.scheduler.LoadMedia(connectCtx, list.VideoID)
			}
		}()
	}

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.scheduler.WatchPlayer(ctx)
	}()

	if s.watcher != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("library watcher exited")
			}
		}()
	}

	if s.forwarder != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.forwarder.Relay(ctx, s.bus); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("event relay exited")
			}
		}()
	}

	// Start database metrics updater
	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			db.UpdateConnectionMetrics(s.db)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","mode":%q}`, s.scheduler.State().Mode)
	})

	if s.cfg.MetricsEnabled {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.router.Get("/player", func(w http.ResponseWriter, r *http.Request) {
		page, err := assetsFS.ReadFile("assets/player.html")
		if err != nil {
			http.Error(w, "player page missing", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(page)
	})

	s.api.Routes(s.router)
}
