// Package companion is a scriptable stand-in for the native companion
// processes (DLPrecise and the segmentation server).
//
// It accepts one WebSocket client at a time, records everything the client
// sends and lets the caller push commands in either protocol variant. The
// mock CLI command serves it on the real ports; tests serve it through
// httptest.
package companion

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/protocol"
	"go.uber.org/zap"
)

// InboxSize is how many unread inbound frames Next can buffer
const InboxSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The real companion accepts any origin on loopback
		return true
	},
}

// Frame is one message received from the client
type Frame struct {
	Type int
	Data []byte
	At   time.Time
}

// Reply decodes a binary frame
func (f Frame) Reply() (protocol.Reply, error) {
	if f.Type != websocket.BinaryMessage {
		return nil, errors.Wrap(errors.ErrUnsupportedMessageType, "text frame")
	}
	return protocol.DecodeReply(f.Data)
}

// IsOpcode reports whether the frame is the single-element reply [op]
func (f Frame) IsOpcode(op protocol.Opcode) bool {
	r, err := f.Reply()
	return err == nil && len(r) == 1 && r[0] == uint32(op)
}

// Server is the fake companion
type Server struct {
	variant string
	logger  *zap.SugaredLogger

	inbox     chan Frame
	connected chan struct{}

	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	received []Frame
	accepted int

	// routes serves plain HTTP paths next to the WebSocket endpoint
	routes *http.ServeMux
}

// New creates a server speaking variant ("tag" or "json")
func New(variant string, log *zap.SugaredLogger) (*Server, error) {
	if _, err := protocol.ForVariant(variant); err != nil {
		return nil, err
	}
	return &Server{
		variant:   variant,
		logger:    log,
		inbox:     make(chan Frame, InboxSize),
		connected: make(chan struct{}, 1),
	}, nil
}

// Variant returns the protocol variant
func (s *Server) Variant() string { return s.variant }

// ServeHTTP upgrades the request and reads until the client goes away.
// A new client replaces the previous one.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.routes != nil && !websocket.IsWebSocketUpgrade(r) {
		s.routes.ServeHTTP(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("Failed to upgrade companion connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.mu.Lock()
	previous := s.conn
	s.conn = conn
	s.accepted++
	s.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	s.logger.Infow("Client connected", "remote", r.RemoteAddr, "variant", s.variant)
	select {
	case s.connected <- struct{}{}:
	default:
	}

	for {
		frameType, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debugw("Client read ended", "remote", r.RemoteAddr, "error", err)
			break
		}
		f := Frame{Type: frameType, Data: data, At: time.Now()}
		s.mu.Lock()
		s.received = append(s.received, f)
		s.mu.Unlock()

		select {
		case s.inbox <- f:
		default:
			s.logger.Warnw("Inbox full, frame only recorded", "size", len(data))
		}
	}

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}

// Connected reports whether a client is attached
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Accepted returns how many clients have connected so far
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Received returns every frame recorded so far
func (s *Server) Received() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.received...)
}

// WaitConnected blocks until a client connects
func (s *Server) WaitConnected(ctx context.Context) error {
	if s.Connected() {
		return nil
	}
	select {
	case <-s.connected:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "no client connected")
	}
}

// Next returns the next unread frame from the client
func (s *Server) Next(ctx context.Context) (Frame, error) {
	select {
	case f := <-s.inbox:
		return f, nil
	case <-ctx.Done():
		return Frame{}, errors.Wrap(ctx.Err(), "no frame received")
	}
}

// NextReply skips heartbeats and text frames and returns the next binary reply
func (s *Server) NextReply(ctx context.Context) (protocol.Reply, error) {
	for {
		f, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if f.Type != websocket.BinaryMessage || f.IsOpcode(protocol.OpHeartbeat) {
			continue
		}
		return f.Reply()
	}
}

// Push sends a raw text frame to the client
func (s *Server) Push(frame []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.Wrap(errors.ErrNotConnected, "companion has no client")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Wrap(err, "failed to push frame")
	}
	return nil
}

// PushMeasure asks for the scale at canvas position (x, y)
func (s *Server) PushMeasure(x, y float64) error {
	return s.Push(protocol.TagFrame(protocol.CommandPixelPerMM,
		"xpos", strconv.FormatFloat(x, 'f', -1, 64),
		"ypos", strconv.FormatFloat(y, 'f', -1, 64),
	))
}

// PushAcquire takes pointer control
func (s *Server) PushAcquire() error {
	return s.Push(protocol.TagFrame(protocol.CommandMassViewOn))
}

// PushRelease hands pointer control back
func (s *Server) PushRelease() error {
	return s.Push(protocol.TagFrame(protocol.CommandMassViewOff))
}

// PushEvent sends a JSON envelope notification
func (s *Server) PushEvent(t protocol.EventType, payload interface{}) error {
	frame, err := protocol.EnvelopeFrame(t, payload)
	if err != nil {
		return err
	}
	return s.Push(frame)
}

// CloseClient ends the session with a normal close frame
func (s *Server) CloseClient() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "companion exiting")
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Drop cuts the TCP connection without a close frame, as a crashing companion would
func (s *Server) Drop() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.UnderlyingConn().Close()
	}
}

// SessionResult is what a scripted session observed
type SessionResult struct {
	AcquireAck  protocol.Reply
	Measurement protocol.Reply
	ReleaseAck  protocol.Reply
}

// RunSession plays the DLPrecise interaction: take control, query the scale
// at (x, y), give control back. Each step waits for the client's reply.
func (s *Server) RunSession(ctx context.Context, x, y float64) (SessionResult, error) {
	var res SessionResult
	if s.variant != "tag" {
		return res, errors.NewInvalidRequestError("sessions need the tag variant, not %s", s.variant)
	}

	steps := []struct {
		name string
		push func() error
		into *protocol.Reply
	}{
		{"acquire", s.PushAcquire, &res.AcquireAck},
		{"measure", func() error { return s.PushMeasure(x, y) }, &res.Measurement},
		{"release", s.PushRelease, &res.ReleaseAck},
	}

	for _, step := range steps {
		if err := step.push(); err != nil {
			return res, errors.Wrapf(err, "%s step", step.name)
		}
		reply, err := s.NextReply(ctx)
		if err != nil {
			return res, errors.Wrapf(err, "%s step", step.name)
		}
		*step.into = reply
		s.logger.Debugw("Session step answered", "step", step.name, "reply", fmt.Sprint(reply))
	}
	return res, nil
}

// ListenAndServe serves the companion on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Drop()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Infow("Fake companion listening", "addr", ln.Addr().String(), "variant", s.variant)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "companion server failed")
	}
	return nil
}
