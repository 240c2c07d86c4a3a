package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/voxroom/voxroom/pkg/core"
	"github.com/voxroom/voxroom/pkg/core/types"
	"github.com/voxroom/voxroom/pkg/gateway/config"
	"github.com/voxroom/voxroom/pkg/gateway/conns"
	"github.com/voxroom/voxroom/pkg/gateway/handlers"
	"github.com/voxroom/voxroom/pkg/gateway/lifecycle"
	"github.com/voxroom/voxroom/pkg/gateway/mw"
	"github.com/voxroom/voxroom/pkg/history"
	"github.com/voxroom/voxroom/pkg/live"
	"github.com/voxroom/voxroom/pkg/recording"
	"github.com/voxroom/voxroom/pkg/responder"
	"github.com/voxroom/voxroom/pkg/session"
	"github.com/voxroom/voxroom/pkg/store"
)

// Server owns the orchestration core and its HTTP surface. All state is
// constructed here once per process and passed explicitly; there is no
// module-level registry.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	store       store.Store
	registry    *session.Registry
	ledger      *history.Ledger
	recorder    *recording.Recorder
	coordinator *live.Coordinator

	lifecycle *lifecycle.Lifecycle
	liveConns *conns.Tracker
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var st store.Store
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		st = redisStore
	} else {
		logger.Warn("no redis URL configured, using in-memory store")
		st = store.NewMemoryStore()
	}

	ledger := history.NewLedger(st, cfg.HistoryTTL, logger)
	registry := session.NewRegistry(session.Config{
		DefaultLanguage: cfg.DefaultLanguage,
		DefaultVoice:    cfg.DefaultVoice,
		SessionTTL:      cfg.SessionTTL,
	}, st, ledger, logger)
	recorder := recording.NewRecorder(registry, ledger, st, logger)

	var rsp live.Responder
	if cfg.GeminiAPIKey != "" {
		gemini, err := responder.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		rsp = gemini
	} else {
		logger.Warn("no gemini API key configured, response cycles will fail")
		rsp = unavailableResponder{}
	}

	coordinator := live.NewCoordinator(live.Config{
		HistoryWindow:   cfg.HistoryWindow,
		ResponseTimeout: cfg.ResponderTimeout,
	}, registry, ledger, rsp, logger)

	// Full session teardown also clears volatile live and recording state.
	registry.OnTeardown(coordinator.Close)
	registry.OnTeardown(recorder.Discard)

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		mux:         http.NewServeMux(),
		store:       st,
		registry:    registry,
		ledger:      ledger,
		recorder:    recorder,
		coordinator: coordinator,
		lifecycle:   &lifecycle.Lifecycle{},
		liveConns:   conns.NewTracker(),
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	var storeHealth handlers.HealthChecker
	if hc, ok := s.store.(handlers.HealthChecker); ok {
		storeHealth = hc
	}
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Lifecycle: s.lifecycle, Store: storeHealth})

	sessions := &handlers.SessionsHandler{
		Registry: s.registry,
		Recorder: s.recorder,
		Logger:   s.logger,
	}
	sessions.Register(s.mux)

	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:      s.cfg,
		Registry:    s.registry,
		Coordinator: s.coordinator,
		Recorder:    s.recorder,
		Logger:      s.logger,
		Lifecycle:   s.lifecycle,
		LiveConns:   s.liveConns,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// RunSweeper blocks running the inactivity sweep until ctx is done.
func (s *Server) RunSweeper(ctx context.Context) {
	sw := &session.Sweeper{
		Registry:  s.registry,
		Interval:  s.cfg.SweepInterval,
		Threshold: s.cfg.InactivityThreshold,
		Logger:    s.logger,
	}
	sw.Run(ctx)
}

func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

func (s *Server) WarnLiveConnsDraining() {
	n := s.liveConns.WarnAll("draining", "server is shutting down")
	if n > 0 {
		s.logger.Info("warned live connections", "count", n)
	}
}

func (s *Server) WaitLiveConns(ctx context.Context) bool {
	return s.liveConns.Wait(ctx)
}

func (s *Server) CancelLiveConns() {
	n := s.liveConns.CancelAll()
	if n > 0 {
		s.logger.Info("canceled live connections", "count", n)
	}
}

// Close releases the store.
func (s *Server) Close() error {
	if c, ok := s.store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type unavailableResponder struct{}

func (unavailableResponder) GetResponse(context.Context, string, types.SessionContext) (live.Result, error) {
	return live.Result{}, core.NewUnavailableError("responder", errors.New("no API key configured"))
}
