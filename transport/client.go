// Package transport owns the single WebSocket connection to a companion process.
//
// Client methods and handlers run on the owning event loop. The dial
// goroutine and the per-connection read pump only Post events; every state
// change happens in Dispatch, which looks the event up in a table keyed by
// EventKind and applies the pure Transition function.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/protocol"
	"go.uber.org/zap"
)

// Poster delivers callbacks to the goroutine that owns the client.
// *eventloop.Loop satisfies it.
type Poster interface {
	Post(fn func()) bool
}

// Config describes one companion endpoint
type Config struct {
	// Name is used in status messages, e.g. "DeepLook" or "AI Server"
	Name string
	Host string
	Port int

	// DialTimeout bounds one connection attempt (DefaultHandshakeTimeout when zero)
	DialTimeout time.Duration
}

// URL returns ws://<host>:<port>
func (c Config) URL() string {
	return "ws://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Handlers are invoked on the loop after the client has applied the transition
type Handlers struct {
	OnOpen    func()
	OnError   func(err error)
	OnClose   func(kind DisconnectKind)
	OnMessage func(frameType int, data []byte)

	// OnStatus receives the user-facing status line for open, failure and loss
	OnStatus func(isInfo bool, message string)
}

// Event is one socket occurrence posted to the loop
type Event struct {
	Kind       EventKind
	Generation uint64
	FrameType  int
	Data       []byte
	Err        error

	sock Socket
}

var dispatch = map[EventKind]func(*Client, Event){
	EventOpen:    (*Client).handleOpen,
	EventError:   (*Client).handleError,
	EventClose:   (*Client).handleClose,
	EventMessage: (*Client).handleMessage,
}

// Client is the companion connection. It is not safe for concurrent use; call
// it from the loop only.
type Client struct {
	cfg      Config
	url      string
	dialer   Dialer
	loop     Poster
	handlers Handlers
	logger   *zap.SugaredLogger

	state      State
	sock       Socket
	generation uint64
	connID     string
	safeClose  bool
	opened     bool
	cancelDial context.CancelFunc
}

// NewClient creates a disconnected client. A nil dialer means GorillaDialer.
func NewClient(cfg Config, dialer Dialer, loop Poster, handlers Handlers, log *zap.SugaredLogger) *Client {
	if dialer == nil {
		dialer = GorillaDialer{HandshakeTimeout: cfg.DialTimeout}
	}
	return &Client{
		cfg:      cfg,
		url:      cfg.URL(),
		dialer:   dialer,
		loop:     loop,
		handlers: handlers,
		logger:   log,
	}
}

// URL returns the endpoint this client dials
func (c *Client) URL() string {
	return c.url
}

// State returns the current lifecycle state
func (c *Client) State() State {
	return c.state
}

// ConnectionID identifies the current (or last) connection instance in logs
func (c *Client) ConnectionID() string {
	return c.connID
}

// IsConnected is true iff a socket exists and is open
func (c *Client) IsConnected() bool {
	return c.sock != nil && c.state == StateOpen
}

// Open starts a connection attempt. It is a no-op while open or connecting.
func (c *Client) Open() {
	if c.state == StateOpen || c.state == StateConnecting {
		return
	}

	c.generation++
	c.connID = uuid.NewString()
	c.state = StateConnecting
	c.safeClose = false
	c.opened = false

	timeout := c.cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	c.cancelDial = cancel

	c.logger.Debugw("Opening companion connection",
		logger.FieldEndpoint, c.url,
		logger.FieldConnID, c.connID,
	)
	go c.dial(ctx, cancel, c.generation)
}

// Close ends the connection on our own initiative. The close event that
// follows is classified as a SafeDisconnect and is not reported.
func (c *Client) Close() {
	switch c.state {
	case StateOpen:
		c.safeClose = true
		c.state = StateClosing
		if err := c.sock.Close(); err != nil {
			c.logger.Debugw("Socket close returned error", logger.FieldError, err)
		}
	case StateConnecting:
		// Abandon the in-flight dial; its result arrives with a stale generation.
		if c.cancelDial != nil {
			c.cancelDial()
		}
		c.generation++
		c.state = StateDisconnected
	}
}

// Send writes one frame. It fails with ErrNotConnected unless the connection is open.
func (c *Client) Send(frameType int, data []byte) error {
	if !c.IsConnected() {
		c.logger.Debugw("Dropping frame, companion not connected",
			logger.FieldState, c.state.String(),
			logger.FieldSize, len(data),
		)
		return errors.Wrapf(errors.ErrNotConnected, "%s is %s", c.cfg.Name, c.state)
	}
	if err := c.sock.WriteMessage(frameType, data); err != nil {
		return errors.Wrapf(err, "failed to write to %s", c.url)
	}
	return nil
}

// SendReply writes a uint32 reply as one binary frame
func (c *Client) SendReply(r protocol.Reply) error {
	return c.Send(BinaryFrame, r.Bytes())
}

// SendOpcode writes a single-element opcode frame. Once a Close opcode is
// written, the companion closing the connection is a safe disconnect.
func (c *Client) SendOpcode(op protocol.Opcode) error {
	if err := c.SendReply(protocol.OpcodeReply(op)); err != nil {
		return err
	}
	if op == protocol.OpClose {
		c.safeClose = true
	}
	return nil
}

// SendJSON marshals v and writes it as a text frame
func (c *Client) SendJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode frame")
	}
	return c.Send(TextFrame, raw)
}

// Dispatch applies one event. Events from superseded connection instances are dropped.
func (c *Client) Dispatch(ev Event) {
	if ev.Generation != c.generation {
		if ev.Kind == EventOpen && ev.sock != nil {
			_ = ev.sock.Close()
		}
		c.logger.Debugw("Dropping event from superseded connection",
			logger.FieldKind, ev.Kind.String(),
			"generation", ev.Generation,
		)
		return
	}

	handle, ok := dispatch[ev.Kind]
	if !ok {
		c.logger.Warnw("Unknown transport event", logger.FieldKind, ev.Kind.String())
		return
	}
	handle(c, ev)
}

func (c *Client) handleOpen(ev Event) {
	c.sock = ev.sock
	c.state = Transition(c.state, EventOpen)
	c.opened = true

	c.logger.Infow("Companion connection open",
		logger.FieldEndpoint, c.url,
		logger.FieldConnID, c.connID,
	)
	c.status(true, fmt.Sprintf("%s connection established successfully", c.cfg.Name))
	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}
}

func (c *Client) handleError(ev Event) {
	c.state = Transition(c.state, EventError)
	c.sock = nil
	c.opened = false

	err := errors.Wrap(errors.ErrTransportOpen, errorText(ev.Err))
	c.logger.Debugw("Companion connection failed",
		logger.FieldEndpoint, c.url,
		logger.FieldConnID, c.connID,
		logger.FieldError, ev.Err,
	)
	c.status(false, fmt.Sprintf("%s connection could not be established properly", c.cfg.Name))
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}

func (c *Client) handleClose(ev Event) {
	kind := Classify(c.safeClose)
	wasOpened := c.opened

	c.state = Transition(c.state, EventClose)
	c.sock = nil
	c.safeClose = false
	c.opened = false

	c.logger.Infow("Companion connection closed",
		logger.FieldConnID, c.connID,
		logger.FieldDisconnect, kind.String(),
		logger.FieldError, ev.Err,
	)
	if kind == UnexpectedDisconnect && wasOpened {
		c.status(false, fmt.Sprintf("%s connection lost.", c.cfg.Name))
	}
	if c.handlers.OnClose != nil {
		c.handlers.OnClose(kind)
	}
}

func (c *Client) handleMessage(ev Event) {
	if c.state != StateOpen {
		c.logger.Debugw("Dropping frame received while not open", logger.FieldState, c.state.String())
		return
	}
	if c.handlers.OnMessage != nil {
		c.handlers.OnMessage(ev.FrameType, ev.Data)
	}
}

func (c *Client) status(isInfo bool, message string) {
	if c.handlers.OnStatus != nil {
		c.handlers.OnStatus(isInfo, message)
	}
}

// dial runs off-loop and reports the outcome, then pumps reads for the new socket
func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	sock, err := c.dialer.DialContext(ctx, c.url)
	if err != nil {
		c.post(Event{Kind: EventError, Generation: gen, Err: err})
		return
	}
	if !c.post(Event{Kind: EventOpen, Generation: gen, sock: sock}) {
		_ = sock.Close()
		return
	}
	c.readPump(sock, gen)
}

// readPump delivers frames in order until the socket fails, then posts one close event
func (c *Client) readPump(sock Socket, gen uint64) {
	for {
		frameType, data, err := sock.ReadMessage()
		if err != nil {
			if !isCloseError(err) {
				err = errors.Wrap(errors.ErrUnexpectedDisconnect, errorText(err))
			}
			c.post(Event{Kind: EventClose, Generation: gen, Err: err})
			return
		}
		if !c.post(Event{Kind: EventMessage, Generation: gen, FrameType: frameType, Data: data}) {
			_ = sock.Close()
			return
		}
	}
}

func (c *Client) post(ev Event) bool {
	return c.loop.Post(func() { c.Dispatch(ev) })
}

func errorText(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
