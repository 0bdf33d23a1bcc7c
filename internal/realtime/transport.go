package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/websocket"
)

// Conn is one live socket session. Read blocks until a frame arrives or
// the connection dies; a close initiated by the peer surfaces as
// *CloseError so the manager can inspect the code.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code int, reason string) error
}

// Transport dials sync endpoints. Production uses the websocket
// transport; tests substitute an in-memory one.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// CloseError carries the close code the peer sent, distinguishing a
// fatal rejection from a transient drop.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("realtime: connection closed (code %d): %s", e.Code, e.Reason)
}

// maxFrameSize caps inbound frames. Board snapshots are the largest
// frames on the wire; 1 MiB leaves ample headroom over the library
// default of 32 KiB.
const maxFrameSize = 1 << 20

// NewTransport returns the production websocket transport.
func NewTransport() Transport { return wsTransport{} }

type wsTransport struct{}

func (wsTransport) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime.Transport.Dial: %w", err)
	}
	c.SetReadLimit(maxFrameSize)
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: int(ce.Code), Reason: ce.Reason}
		}
		return nil, fmt.Errorf("realtime: read: %w", err)
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("realtime: write: %w", err)
	}
	return nil
}

func (c *wsConn) Close(code int, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}
