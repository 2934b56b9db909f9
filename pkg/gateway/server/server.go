package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jarvislabs/jarvis-live/pkg/gateway/config"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/handlers"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/metrics"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/mw"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	httpClient *http.Client
	metrics    *metrics.Metrics
	hub        *handlers.Hub
}

func New(cfg config.Config, logger *slog.Logger) *Server {
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

	m := metrics.New("jarvis")

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		httpClient: httpClient,
		metrics:    m,
		hub:        handlers.NewHub(cfg, logger, m),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/v1/token/elevenlabs", handlers.ElevenLabsTokenHandler{
		Config:     s.cfg,
		HTTPClient: s.httpClient,
		Logger:     s.logger,
		Metrics:    s.metrics,
	})
	s.mux.Handle("/v1/token/gemini", handlers.GeminiTokenHandler{
		Config:     s.cfg,
		HTTPClient: s.httpClient,
		Logger:     s.logger,
		Metrics:    s.metrics,
	})

	s.mux.Handle("/ws", s.hub)

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// Hub exposes the broadcast hub, mainly for drain accounting.
func (s *Server) Hub() *handlers.Hub {
	return s.hub
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
