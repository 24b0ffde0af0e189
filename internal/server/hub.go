package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/relaychat/internal/relay"
)

// Hub tracks live WebSocket connections and runs their pumps. Routing is the
// router's job; the hub only handles connection lifecycle and shutdown.
type Hub struct {
	router     *relay.Router
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	logger     zerolog.Logger
}

// NewHub creates a hub feeding connections to router.
func NewHub(router *relay.Router, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		router:     router,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "hub").Logger(),
	}
}

// Run starts the hub's event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn().Msg("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			h.clients[client] = struct{}{}
			clientCount := len(h.clients)
			h.mutex.Unlock()

			h.router.Connect(client.session)
			h.logger.Info().
				Str("session", client.session.ID()).
				Str("addr", client.addr).
				Int("clients", clientCount).
				Msg("Client connected")

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// join hands a freshly upgraded connection to the hub. It reports false when
// the hub is shutting down.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// leave is called by a read pump on exit. Once the event loop has stopped the
// client is removed directly.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Disconnect closes the session queue, which stops the write pump.
	h.router.Disconnect(client.session)

	if ok {
		h.logger.Info().
			Str("session", client.session.ID()).
			Str("addr", client.addr).
			Int("clients", clientCount).
			Msg("Client disconnected")
	}
}

// ClientCount returns the number of live connections, registered or not.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) shutdownClients() {
	h.logger.Info().Msg("Shutting down all client connections...")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		client.closeConnection()
	}

	h.logger.Info().Int("clients", len(clients)).Msg("Closed client connections")
}

// Shutdown stops the hub, closes every connection and waits for all pumps to
// finish or for timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info().Msg("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Msg("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn().Msg("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
