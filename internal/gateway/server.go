// Package gateway ties the assistant together: channel adapters feed the
// dispatcher, the cron scheduler injects synthetic messages, agent events
// fan out to canvas WebSocket clients, and an HTTP surface exposes the
// bridge, health, and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/aide/internal/auth"
	"github.com/haasonsaas/aide/internal/canvas"
	"github.com/haasonsaas/aide/internal/channels"
	"github.com/haasonsaas/aide/internal/config"
	"github.com/haasonsaas/aide/internal/cron"
	"github.com/haasonsaas/aide/internal/observability"
	"github.com/haasonsaas/aide/internal/sessions"
	"github.com/haasonsaas/aide/pkg/models"
)

// Options carries the components the server composes. Config, Sessions,
// and Loop are required; the rest default to working in-process values.
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Auth     *auth.Service
	Sessions *sessions.Manager
	Template sessions.Template
	Loop     Runner
	Channels *channels.Registry
	Canvas   *canvas.Manager
	Now      func() time.Time
}

// Server is the long-running gateway process.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	auth       *auth.Service
	sessions   *sessions.Manager
	router     *sessions.Router
	channels   *channels.Registry
	canvas     *canvas.Manager
	scheduler  *cron.Scheduler
	dispatcher *Dispatcher
	events     *EventHub
	template   sessions.Template
	upgrader   websocket.Upgrader
	nowFn      func() time.Time

	httpServer   *http.Server
	httpListener net.Listener
	startTime    time.Time

	mu      sync.Mutex
	runCtx  context.Context
	runStop context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewServer wires a server from its components.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if opts.Loop == nil {
		return nil, errors.New("agent loop is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.Default()
	}
	registry := opts.Channels
	if registry == nil {
		registry = channels.NewRegistry()
	}
	canvasManager := opts.Canvas
	if canvasManager == nil {
		canvasManager = canvas.NewManager(canvas.Config{
			MaxComponents: opts.Config.Canvas.MaxComponents,
			Logger:        logger,
		})
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	s := &Server{
		cfg:      opts.Config,
		logger:   logger.With("component", "gateway"),
		metrics:  metrics,
		auth:     opts.Auth,
		sessions: opts.Sessions,
		channels: registry,
		canvas:   canvasManager,
		events:   NewEventHub(),
		template: opts.Template,
		nowFn:    nowFn,
	}
	s.router = sessions.NewRouter(opts.Sessions, opts.Template, logger)

	dispatcher, err := NewDispatcher(DispatcherConfig{
		Router:   s.router,
		Loop:     opts.Loop,
		Registry: registry,
		Events:   s.events,
		Logger:   logger,
		Metrics:  metrics,
		Now:      nowFn,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	s.dispatcher = dispatcher

	s.scheduler = cron.NewScheduler(s.triggerCronJob,
		cron.WithLogger(logger),
		cron.WithMetrics(metrics),
		cron.WithNow(nowFn),
	)

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
		CheckOrigin:     s.checkOrigin,
	}

	// Ended sessions take their canvas and route entries with them.
	opts.Sessions.OnEnd(func(sess *sessions.Session) {
		s.canvas.Remove(sess.ID())
		s.router.EvictStale()
	})

	return s, nil
}

// Scheduler exposes the cron scheduler for job administration.
func (s *Server) Scheduler() *cron.Scheduler { return s.scheduler }

// Events exposes the agent event hub.
func (s *Server) Events() *EventHub { return s.events }

// Dispatcher exposes the message dispatcher.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Router exposes the session router.
func (s *Server) Router() *sessions.Router { return s.router }

// Start brings up channel adapters, the inbound pump, the scheduler, the
// idle-session sweeper, and the HTTP surface. It does not block.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true
	s.runCtx, s.runStop = context.WithCancel(ctx)
	s.startTime = s.nowFn()
	runCtx := s.runCtx
	s.mu.Unlock()

	if err := s.channels.StartAll(runCtx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	s.wg.Add(1)
	go s.processMessages(runCtx)

	if s.cfg.Cron.Enabled {
		if err := s.loadCronJobs(runCtx); err != nil {
			s.logger.Warn("load cron jobs failed", "error", err)
		}
		s.scheduler.Start(runCtx)
	}

	if expiry := s.cfg.Sessions.IdleExpiryMinutes; expiry > 0 {
		interval := time.Duration(s.cfg.Sessions.SweepIntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = time.Minute
		}
		s.sessions.StartSweeper(runCtx, interval, time.Duration(expiry)*time.Minute)
	}

	if s.cfg.Gateway.Enabled {
		if err := s.startHTTPServer(); err != nil {
			return err
		}
	}

	s.logger.Info("gateway started",
		"channels", len(s.channels.All()),
		"cron", s.cfg.Cron.Enabled,
		"http", s.cfg.Gateway.Enabled,
	)
	return nil
}

// Stop shuts the server down: HTTP first so no new work arrives, then the
// scheduler and adapters, then in-flight runs, then the sessions.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	runStop := s.runStop
	s.mu.Unlock()

	s.logger.Info("stopping gateway")
	s.stopHTTPServer(ctx)
	s.scheduler.Stop()
	if err := s.channels.StopAll(ctx); err != nil {
		s.logger.Error("stop channels", "error", err)
	}
	if runStop != nil {
		runStop()
	}
	s.dispatcher.Close()
	s.sessions.EndAll(ctx)
	s.wg.Wait()
	return nil
}

// processMessages pumps adapter messages into the dispatcher. Dispatch is
// non-blocking, so one pump goroutine serves every channel.
func (s *Server) processMessages(ctx context.Context) {
	defer s.wg.Done()
	messages := s.channels.AggregateMessages(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := s.dispatcher.HandleInbound(ctx, msg); err != nil {
				s.logger.Warn("inbound message rejected",
					"channel", msg.From.ChannelID, "error", err)
				s.metrics.RecordError("gateway", "dispatch")
			}
		}
	}
}

// triggerCronJob injects one due job as a synthetic inbound message on the
// cron channel. Each job routes to its own session.
func (s *Server) triggerCronJob(ctx context.Context, job models.CronJob) error {
	userID := job.UserID
	if userID == "" {
		userID = string(models.ChannelCron)
	}
	msg := &models.InboundMessage{
		ID:        uuid.NewString(),
		ChannelID: "cron:" + job.Name,
		From: models.Sender{
			ChannelID: string(models.ChannelCron),
			UserID:    userID,
		},
		Text:      job.Message,
		Timestamp: s.nowFn(),
	}
	return s.dispatcher.HandleInbound(ctx, msg)
}

// loadCronJobs seeds the scheduler from the job file and, when configured,
// keeps it in sync with file edits.
func (s *Server) loadCronJobs(ctx context.Context) error {
	path := s.cfg.Cron.JobsFile
	if path == "" {
		return nil
	}
	store := cron.NewFileStore(path, s.logger)
	listed, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list cron jobs: %w", err)
	}
	jobs := make([]models.CronJob, 0, len(listed))
	for _, job := range listed {
		jobs = append(jobs, *job)
	}
	if err := s.scheduler.ReplaceJobs(jobs); err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}
	if s.cfg.Cron.Watch {
		if _, err := store.Watch(ctx, func(updated []models.CronJob) {
			if err := s.scheduler.ReplaceJobs(updated); err != nil {
				s.logger.Warn("reload cron jobs failed", "error", err)
			}
		}); err != nil {
			s.logger.Warn("watch cron jobs failed", "error", err)
		}
	}
	return nil
}

// ensureSession returns the live session with the id, creating it from the
// router template when absent. Concurrent creators converge on one session.
func (s *Server) ensureSession(ctx context.Context, id string) (*sessions.Session, error) {
	if sess, ok := s.sessions.Get(id); ok {
		return sess, nil
	}
	sess, err := s.sessions.Create(ctx, models.Session{
		ID:           id,
		ChannelID:    id,
		EngineID:     s.template.EngineID,
		Provider:     s.template.Provider,
		Model:        s.template.Model,
		SystemPrompt: s.template.SystemPrompt,
	})
	if errors.Is(err, sessions.ErrSessionExists) {
		if existing, ok := s.sessions.Get(id); ok {
			return existing, nil
		}
	}
	return sess, err
}

func (s *Server) now() time.Time { return s.nowFn() }

// runContext is the lifetime of the running server; agent runs inherit it
// rather than any single connection's context.
func (s *Server) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

// checkOrigin enforces the configured origin allowlist. An empty list
// admits same-host and non-browser clients only.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		if origin == "" {
			return true
		}
		parsed, err := url.Parse(origin)
		return err == nil && strings.EqualFold(parsed.Host, r.Host)
	}
	for _, entry := range allowed {
		if entry == "*" || strings.EqualFold(entry, origin) {
			return true
		}
	}
	return false
}

func (s *Server) startHTTPServer() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws", s.handleWS)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.logger.Info("http server listening", "addr", listener.Addr().String())
	return nil
}

func (s *Server) stopHTTPServer(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	shutdownCtx := ctx
	var cancel context.CancelFunc
	if shutdownCtx == nil {
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown", "error", err)
	}
	s.httpServer = nil
	s.httpListener = nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
