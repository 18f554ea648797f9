package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/leialabs/leia-realtime/pkg/gateway/auth"
	"github.com/leialabs/leia-realtime/pkg/gateway/config"
	"github.com/leialabs/leia-realtime/pkg/gateway/handlers"
	"github.com/leialabs/leia-realtime/pkg/gateway/mw"
	"github.com/leialabs/leia-realtime/pkg/gateway/scoring"
	"github.com/leialabs/leia-realtime/pkg/gateway/spectate"
	"github.com/leialabs/leia-realtime/pkg/gateway/store"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	store      store.Store
	hub        *spectate.Hub
	scorer     scoring.Scorer
	verifier   *auth.Verifier
	httpClient *http.Client
}

// Options carries the injected collaborators so main can wire real
// implementations and tests can wire fakes.
type Options struct {
	Store  store.Store
	Hub    *spectate.Hub
	Scorer scoring.Scorer
	// Configs resolves per-session interview configuration; nil uses
	// the gateway defaults for every session.
	Configs handlers.SessionConfigSource
}

func New(cfg config.Config, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}

	st := opts.Store
	if st == nil {
		st = store.NewMemory()
	}
	hub := opts.Hub
	if hub == nil {
		hub = spectate.NewHub(spectate.Config{
			WriteTimeout: cfg.SpectatorWriteTimeout,
			PingInterval: cfg.SpectatorPingInterval,
			QueueSize:    cfg.SpectatorQueueSize,
			PerSession:   cfg.SpectatorsPerSession,
		}, logger)
	}

	var verifier *auth.Verifier
	if cfg.AdminPassword != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret, cfg.AdminPassword, cfg.TokenTTL)
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		store:      st,
		hub:        hub,
		scorer:     opts.Scorer,
		verifier:   verifier,
		httpClient: httpClient,
	}

	s.routes(opts.Configs)
	return s
}

func (s *Server) routes(configs handlers.SessionConfigSource) {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Store: s.store})

	s.mux.Handle("POST /api/v1/realtime/session", handlers.RealtimeSessionHandler{
		Config:   s.cfg,
		Upstream: s.httpClient,
		Configs:  configs,
		Logger:   s.logger,
	})

	s.mux.Handle("POST /api/v1/realtime/transcriptions/{sessionId}", handlers.SaveTranscriptionHandler{
		Store:        s.store,
		Hub:          s.hub,
		Logger:       s.logger,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	})
	s.mux.Handle("GET /api/v1/realtime/transcriptions/{sessionId}", s.admin(handlers.ListTranscriptionsHandler{
		Store: s.store,
	}))

	s.mux.Handle("GET /api/v1/realtime/spectate/{sessionId}", handlers.SpectateHandler{
		Config: s.cfg,
		Hub:    s.hub,
		Logger: s.logger,
	})

	if s.scorer != nil {
		s.mux.Handle("POST /api/v1/realtime/score/{sessionId}", s.admin(handlers.ScoreHandler{
			Store:  s.store,
			Scorer: s.scorer,
			Logger: s.logger,
		}))
	}

	s.mux.Handle("POST /api/v1/auth/login", handlers.LoginHandler{Verifier: s.verifier})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) admin(next http.Handler) http.Handler {
	if s.verifier == nil {
		return mw.AdminAuth(nil, next)
	}
	return mw.AdminAuth(s.verifier, next)
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Hub exposes the spectator hub so main can drain it on shutdown.
func (s *Server) Hub() *spectate.Hub { return s.hub }

// Store exposes the transcript store so main can close it on shutdown.
func (s *Server) Store() store.Store { return s.store }
