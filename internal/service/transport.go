package service

import (
	"context"
	"net/http"

	"github.com/coder/websocket"

	"chatwire/internal/constants"
)

// Conn is a single websocket connection. Text frames only, the protocol
// is JSON end to end.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code int, reason string) error
}

// Dialer establishes channel connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// CloseCode extracts the close status code from a read error. Returns -1
// when the error does not carry one.
func CloseCode(err error) int {
	return int(websocket.CloseStatus(err))
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close(code int, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}

// WSDialer dials channels over websocket.
type WSDialer struct {
	// Header carries extra HTTP headers for the handshake, typically
	// session auth.
	Header http.Header
}

// NewWSDialer creates a dialer with optional handshake headers.
func NewWSDialer(header http.Header) *WSDialer {
	return &WSDialer{Header: header}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: d.Header,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(constants.MaxInboundFrameBytes)
	return &wsConn{conn: conn}, nil
}
