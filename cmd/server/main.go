package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/relaychat/internal/config"
	"github.com/Tyrowin/relaychat/internal/logger"
	"github.com/Tyrowin/relaychat/internal/metrics"
	"github.com/Tyrowin/relaychat/internal/relay"
	"github.com/Tyrowin/relaychat/internal/responder"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logs, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Pretty: cfg.Log.Pretty,
	}, os.Stdout)
	if err != nil {
		return fmt.Errorf("logger error: %w", err)
	}
	defer func() { _ = logs.Close() }()
	log := logs.Zerolog()

	st, err := store.Open(store.Config{
		Backend:   cfg.Store.Backend,
		Path:      cfg.Store.Path,
		Dimension: cfg.Store.Dimension,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("store opening failed: %w", err)
	}
	if st == nil {
		log.Warn().Msg("Persistence disabled; history replay and bot context are empty")
	} else {
		defer func() {
			log.Info().Msg("Closing message store...")
			if err := st.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing message store")
			}
		}()
	}

	sink := metrics.New()

	routerCfg := relay.Config{
		Store:            st,
		Sink:             sink,
		Logger:           log,
		TimestampFormat:  cfg.Relay.TimestampFormat,
		SendTimeout:      cfg.Relay.SendTimeout,
		FailureThreshold: cfg.Relay.FailureThreshold,
		HistoryReplay:    cfg.Relay.HistoryReplay,
		ArchiveQueue:     cfg.Relay.ArchiveQueue,
	}

	var (
		completer responder.Completer
		embedder  responder.Embedder
		history   responder.History
	)
	if cfg.OpenAI.APIKey != "" {
		client := responder.NewOpenAI(responder.OpenAIConfig{
			APIKey:         cfg.OpenAI.APIKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			Model:          cfg.OpenAI.Model,
			EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		})
		completer, embedder = client, client
		if cfg.Bot.Mode == responder.ModeRetrieval {
			routerCfg.Embedder = client
		}
	} else {
		log.Warn().Msg("OPENAI_API_KEY is not set; bot mentions get the fallback answer")
	}
	if st != nil {
		history = st
	}

	routerCfg.Responder = responder.New(responder.Config{
		Mode:         cfg.Bot.Mode,
		HistoryLimit: cfg.Bot.HistoryLimit,
		TopK:         cfg.Bot.TopK,
		Timeout:      cfg.Bot.Timeout,
	}, completer, embedder, history, sink, log)

	router := relay.NewRouter(routerCfg)

	srv := server.New(server.Options{
		Config:     cfg.Server,
		Router:     router,
		SendBuffer: cfg.Relay.SendBuffer,
		Metrics:    sink.Handler(),
		Logger:     log,
	})
	httpServer := server.CreateServer(cfg.Server.Port, srv.Routes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout, log); err != nil {
		log.Error().Err(err).Msg("HTTP server did not shut down cleanly")
	}
	if err := srv.Shutdown(shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("Hub did not shut down cleanly")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := router.Shutdown(drainCtx); err != nil {
		log.Error().Err(err).Msg("Router did not drain cleanly")
	}

	log.Info().Msg("Server stopped")
	return nil
}
