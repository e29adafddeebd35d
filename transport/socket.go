package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types, matching gorilla/websocket's message types
const (
	TextFrame   = websocket.TextMessage
	BinaryFrame = websocket.BinaryMessage
)

// Socket abstracts the WebSocket connection for testability.
// *websocket.Conn satisfies it; tests use a channel-backed fake.
type Socket interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens sockets
type Dialer interface {
	DialContext(ctx context.Context, url string) (Socket, error)
}

// GorillaDialer dials real WebSocket endpoints
type GorillaDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

// DefaultHandshakeTimeout bounds a dial to a companion on the local machine
const DefaultHandshakeTimeout = 2 * time.Second

// DialContext connects to url
func (d GorillaDialer) DialContext(ctx context.Context, url string) (Socket, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &gorillaSocket{conn: conn}, nil
}

// gorillaSocket sends a normal close frame before closing the TCP connection
type gorillaSocket struct {
	conn *websocket.Conn
}

func (s *gorillaSocket) ReadMessage() (int, []byte, error) { return s.conn.ReadMessage() }
func (s *gorillaSocket) WriteMessage(t int, data []byte) error {
	return s.conn.WriteMessage(t, data)
}

func (s *gorillaSocket) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

// isCloseError reports whether a read error is an orderly close from the peer
func isCloseError(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
