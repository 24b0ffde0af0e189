package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it stops.
func StartServer(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", server.Addr).Msg("Server listening")
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// Hijacked WebSocket connections are not tracked here; the hub closes them.
func ShutdownServer(server *http.Server, timeout time.Duration, logger zerolog.Logger) error {
	logger.Info().Msg("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}

	logger.Info().Msg("HTTP server shutdown completed")
	return nil
}
