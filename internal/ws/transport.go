package ws

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is one established realtime connection.
type Conn interface {
	// ReadMessage blocks until the next message or a connection error.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Transport establishes realtime connections. The production implementation
// dials a websocket; tests inject fakes.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// NewWebsocketTransport returns the gorilla-backed Transport.
func NewWebsocketTransport() Transport {
	return websocketTransport{dialer: websocket.DefaultDialer}
}

type websocketTransport struct {
	dialer *websocket.Dialer
}

func (t websocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		return nil, err
	}
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *websocketConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}
