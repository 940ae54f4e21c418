package ws

import (
	"log/slog"

	"github.com/gorilla/websocket"
)

// Client adapts a gorilla websocket connection to the hub's Subscriber
// interface. A failed write closes the connection; the hub then drops
// the subscriber.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, logger: logger}
}

// Send writes one text frame to the connection.
func (c *Client) Send(payload []byte) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn("websocket send failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close terminates the connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}
