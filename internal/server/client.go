package server

import (
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/relaychat/internal/config"
	"github.com/Tyrowin/relaychat/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one WebSocket connection. Its read pump is the session's worker:
// payloads reach the router one at a time, in arrival order.
type Client struct {
	conn           *websocket.Conn
	session        *relay.Session
	hub            *Hub
	addr           string
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      config.RateLimitConfig
	logger         zerolog.Logger
}

// NewClient wraps conn in a new unregistered session.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg config.ServerConfig, sendBuffer int) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	session := relay.NewSession(addr, sendBuffer)

	return &Client{
		conn:           conn,
		session:        session,
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		logger: hub.logger.With().
			Str("component", "client").
			Str("session", session.ID()).
			Str("addr", addr).
			Logger(),
	}
}

// Session returns the routing session bound to this connection.
func (c *Client) Session() *relay.Session {
	return c.session
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn().Err(err).Msg("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn().Err(err).Msg("Error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs err and reports whether the read loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn().Int64("limit", c.maxMessageSize).Msg("Message exceeded maximum size")
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.logger.Debug().Err(err).Msg("Client closed connection")
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Debug().Err(err).Msg("Connection closed")
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.logger.Warn().Err(err).Msg("Unexpected WebSocket close")
		return true
	}

	c.logger.Warn().Err(err).Msg("WebSocket read error")
	return true
}

// checkRateLimit reports whether the next payload may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger.Warn().
			Int("burst", c.rateLimit.Burst).
			Dur("interval", c.rateLimit.RefillInterval).
			Str("username", c.session.Username()).
			Msg("Rate limit exceeded; discarding message")
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !c.checkRateLimit() {
			continue
		}

		c.hub.router.Handle(c.session, payload)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	outbound := c.session.Outbound()
	for {
		select {
		case line, ok := <-outbound:
			if !c.handleMessage(line, ok) {
				return
			}
		case <-ticker.C:
			if !c.handlePing() {
				return
			}
		}
	}
}

func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn().Err(err).Msg("Error closing connection")
	}
}

// handleMessage writes one queued line and reports whether the pump should
// keep going. A closed queue ends the connection.
func (c *Client) handleMessage(line []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn().Err(err).Msg("Error setting write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, line); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn().Err(err).Msg("Error writing message")
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn().Err(err).Msg("Error writing close message")
		}
	}
	return false
}

func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn().Err(err).Msg("Error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing ping message")
		return false
	}
	return true
}
