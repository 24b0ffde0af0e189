package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/relaychat/internal/config"
	"github.com/Tyrowin/relaychat/internal/relay"
)

// Options configures a Server.
type Options struct {
	Config     config.ServerConfig
	Router     *relay.Router
	SendBuffer int
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  zerolog.Logger
}

// Server owns the connection hub and the HTTP handlers in front of a router.
type Server struct {
	cfg        config.ServerConfig
	router     *relay.Router
	hub        *Hub
	origins    *originPolicy
	upgrader   websocket.Upgrader
	sendBuffer int
	metrics    http.Handler
	logger     zerolog.Logger
}

// New creates a Server and starts its hub.
func New(opts Options) *Server {
	cfg := sanitizeConfig(opts.Config)
	logger := opts.Logger.With().Str("component", "server").Logger()

	s := &Server{
		cfg:        cfg,
		router:     opts.Router,
		origins:    newOriginPolicy(cfg.AllowedOrigins, logger),
		sendBuffer: opts.SendBuffer,
		metrics:    opts.Metrics,
		logger:     logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	s.hub = NewHub(opts.Router, logger)
	go s.hub.Run()
	logger.Info().Msg("Hub started and ready to manage WebSocket connections")
	return s
}

// Hub returns the server's connection hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Shutdown closes every connection and waits for the pumps to exit.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.hub.Shutdown(timeout)
}

func sanitizeConfig(cfg config.ServerConfig) config.ServerConfig {
	defaults := config.Default().Server

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	return cfg
}
