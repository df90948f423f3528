package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/realtime/wire"

	"github.com/gorilla/websocket"
)

// PushConn is one live push connection. ReadFrame blocks until a frame or a
// close arrives; a server close with the normal code surfaces as
// ErrNormalClose so callers can tell "done" from "broken".
type PushConn interface {
	ReadFrame() (*wire.Frame, error)
	WriteFrame(f *wire.Frame) error
	Close() error
}

// Dialer opens push connections. The production implementation appends the
// credential as the token query parameter; a 401/403 handshake response maps
// to domain.ErrAuth, which channels treat as fatal.
type Dialer interface {
	Dial(ctx context.Context, path string) (PushConn, error)
}

// ErrNormalClose marks a server close with the reserved "do not reconnect"
// close code.
var ErrNormalClose = fmt.Errorf("push channel closed normally")

type WSDialer struct {
	base  string // e.g. ws://host:8080
	token string
}

func NewWSDialer(base, token string) *WSDialer {
	return &WSDialer{base: base, token: token}
}

func (d *WSDialer) Dial(ctx context.Context, path string) (PushConn, error) {
	url := d.base + path + "?token=" + d.token
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, domain.ErrAuth
		}
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrTransport, path, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn

	mu sync.Mutex // guards writes; reads stay single-goroutine
}

func (c *wsConn) ReadFrame() (*wire.Frame, error) {
	var f wire.Frame
	if err := c.conn.ReadJSON(&f); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return nil, ErrNormalClose
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return &f, nil
}

func (c *wsConn) WriteFrame(f *wire.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
