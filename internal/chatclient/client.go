// Package chatclient is a terminal client for the relay: it sends a username
// followed by stdin lines and prints incoming lines with emoji expanded and
// color by kind.
package chatclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kyokomi/emoji/v2"
)

// Style is the display category of an incoming line.
type Style int

const (
	StyleChat Style = iota
	StylePrivate
	StyleBot
	StyleNotice
)

var styles = map[Style]color.Style{
	StyleChat:    color.New(color.FgCyan),
	StylePrivate: color.New(color.FgMagenta),
	StyleBot:     color.New(color.FgGreen),
	StyleNotice:  color.New(color.FgRed),
}

func init() {
	emoji.ReplacePadding = ""
}

// Classify picks the display style for a line received from the server.
func Classify(line string) Style {
	switch {
	case strings.HasPrefix(line, "(Private)"):
		return StylePrivate
	case strings.HasPrefix(line, "❌"):
		return StyleNotice
	case strings.Contains(line, "🤖 @bot:"):
		return StyleBot
	default:
		return StyleChat
	}
}

// Render expands emoji shorthand and, when colors is set, colors the line.
func Render(line string, colors bool) string {
	text := emoji.Sprint(line)
	if !colors {
		return text
	}
	return styles[Classify(text)].Render(text)
}

// Client is a connected relay session.
type Client struct {
	conn   *websocket.Conn
	colors bool

	writeMu sync.Mutex
}

// Dial connects to url and registers username.
func Dial(ctx context.Context, url, username string, colors bool) (*Client, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &Client{conn: conn, colors: colors}
	if err := c.Send(username); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Send writes one text frame.
func (c *Client) Send(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

// Run prints incoming lines to out and sends non-empty lines read from in.
// It returns when ctx is done, in is exhausted or the server goes away.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	received := make(chan error, 1)
	go func() {
		received <- c.receive(out)
	}()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	defer c.close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-received:
			return err
		case err := <-scanErr:
			return err
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := c.Send(line); err != nil {
				return err
			}
		}
	}
}

func (c *Client) receive(out io.Writer) error {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		if _, err := fmt.Fprintln(out, Render(string(payload), c.colors)); err != nil {
			return err
		}
	}
}

func (c *Client) close() {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	_ = c.conn.Close()
}
