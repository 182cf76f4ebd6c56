package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// StatusNormalClosure is the only close code that does not trigger a reconnect.
const StatusNormalClosure = int(websocket.StatusNormalClosure)

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 30 * time.Second
	defaultReadLimit = 4 << 20
)

// Conn is one open text socket.
type Conn interface {
	// Read blocks for the next message. A close frame from the peer is
	// reported as *CloseError.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code int, reason string) error
}

// Dialer opens a Conn to url.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// CloseError carries the peer's close code.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return "socket closed: " + websocket.StatusCode(e.Code).String() + " " + e.Reason
}

// Normal reports whether the close was a 1000 normal closure.
func (e *CloseError) Normal() bool { return e.Code == StatusNormalClosure }

// WSDialer dials with github.com/coder/websocket.
type WSDialer struct {
	Header    http.Header
	ReadLimit int64
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	opts := &websocket.DialOptions{HTTPHeader: d.Header}
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	c, _, err := websocket.Dial(dialCtx, url, opts)
	if err != nil {
		return nil, err
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	c.SetReadLimit(limit)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: int(ce.Code), Reason: ce.Reason}
		}
		return nil, err
	}
	return data, nil
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close(code int, reason string) error {
	return w.c.Close(websocket.StatusCode(code), reason)
}
