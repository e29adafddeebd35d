package transport

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/protocol"
	"go.uber.org/zap/zaptest"
)

// queuePoster collects posted callbacks so the test goroutine can play the loop
type queuePoster struct {
	ch chan func()
}

func newQueuePoster() *queuePoster {
	return &queuePoster{ch: make(chan func(), 64)}
}

func (p *queuePoster) Post(fn func()) bool {
	p.ch <- fn
	return true
}

// step runs the next posted callback
func (p *queuePoster) step(t *testing.T) {
	t.Helper()
	select {
	case fn := <-p.ch:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no event posted")
	}
}

type frame struct {
	frameType int
	data      []byte
}

// fakeSocket is a channel-backed Socket
type fakeSocket struct {
	inbound   chan frame
	closed    chan struct{}
	dropped   chan struct{}
	closeOnce sync.Once
	dropOnce  sync.Once

	mu      sync.Mutex
	written []frame
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		inbound: make(chan frame, 16),
		closed:  make(chan struct{}),
		dropped: make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case f := <-s.inbound:
		return f.frameType, f.data, nil
	case <-s.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	case <-s.dropped:
		return 0, nil, io.ErrUnexpectedEOF
	}
}

func (s *fakeSocket) WriteMessage(t int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, frame{frameType: t, data: data})
	return nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) drop() {
	s.dropOnce.Do(func() { close(s.dropped) })
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) frames() []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame(nil), s.written...)
}

type fakeDialer struct {
	mu    sync.Mutex
	calls int
	sock  *fakeSocket
	err   error
	gate  chan struct{}
}

func (d *fakeDialer) DialContext(ctx context.Context, url string) (Socket, error) {
	d.mu.Lock()
	d.calls++
	gate, sock, err := d.gate, d.sock, d.err
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return sock, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recorder struct {
	opens    int
	errs     []error
	closes   []DisconnectKind
	messages []string
	infos    []string
	failures []string
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnOpen:    func() { r.opens++ },
		OnError:   func(err error) { r.errs = append(r.errs, err) },
		OnClose:   func(kind DisconnectKind) { r.closes = append(r.closes, kind) },
		OnMessage: func(_ int, data []byte) { r.messages = append(r.messages, string(data)) },
		OnStatus: func(isInfo bool, msg string) {
			if isInfo {
				r.infos = append(r.infos, msg)
			} else {
				r.failures = append(r.failures, msg)
			}
		},
	}
}

func newTestClient(t *testing.T, d Dialer) (*Client, *queuePoster, *recorder) {
	t.Helper()
	p := newQueuePoster()
	rec := &recorder{}
	cfg := Config{Name: "DeepLook", Host: "localhost", Port: 44458}
	return NewClient(cfg, d, p, rec.handlers(), zaptest.NewLogger(t).Sugar()), p, rec
}

func TestConfig_URL(t *testing.T) {
	assert.Equal(t, "ws://localhost:44458", Config{Host: "localhost", Port: 44458}.URL())
	assert.Equal(t, "ws://[::1]:9000", Config{Host: "::1", Port: 9000}.URL())
}

func TestClient_OpenSuccess(t *testing.T) {
	sock := newFakeSocket()
	c, p, rec := newTestClient(t, &fakeDialer{sock: sock})

	assert.False(t, c.IsConnected())
	c.Open()
	assert.Equal(t, StateConnecting, c.State())
	assert.NotEmpty(t, c.ConnectionID())

	p.step(t)
	assert.True(t, c.IsConnected())
	assert.Equal(t, 1, rec.opens)
	assert.Equal(t, []string{"DeepLook connection established successfully"}, rec.infos)
}

func TestClient_OpenFailure(t *testing.T) {
	c, p, rec := newTestClient(t, &fakeDialer{err: errors.New("connection refused")})

	c.Open()
	p.step(t)

	assert.False(t, c.IsConnected())
	assert.Equal(t, StateDisconnected, c.State())
	require.Len(t, rec.errs, 1)
	assert.True(t, errors.Is(rec.errs[0], errors.ErrTransportOpen))
	assert.Equal(t, []string{"DeepLook connection could not be established properly"}, rec.failures)
	assert.Empty(t, rec.closes)
}

func TestClient_OpenWhileConnectingIsNoop(t *testing.T) {
	gate := make(chan struct{})
	d := &fakeDialer{sock: newFakeSocket(), gate: gate}
	c, p, _ := newTestClient(t, d)

	c.Open()
	c.Open()
	close(gate)
	p.step(t)
	c.Open()

	assert.Equal(t, 1, d.callCount())
	assert.True(t, c.IsConnected())
}

func TestClient_MessagesDeliveredInOrder(t *testing.T) {
	sock := newFakeSocket()
	c, p, rec := newTestClient(t, &fakeDialer{sock: sock})

	sock.inbound <- frame{TextFrame, []byte("first")}
	sock.inbound <- frame{TextFrame, []byte("second")}

	c.Open()
	p.step(t)
	p.step(t)
	p.step(t)

	assert.Equal(t, []string{"first", "second"}, rec.messages)
}

func TestClient_LocalCloseIsSafe(t *testing.T) {
	sock := newFakeSocket()
	c, p, rec := newTestClient(t, &fakeDialer{sock: sock})

	c.Open()
	p.step(t)
	require.True(t, c.IsConnected())

	c.Close()
	assert.Equal(t, StateClosing, c.State())
	assert.False(t, c.IsConnected())

	p.step(t)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, []DisconnectKind{SafeDisconnect}, rec.closes)
	assert.Empty(t, rec.failures)
}

func TestClient_PeerDropIsUnexpected(t *testing.T) {
	sock := newFakeSocket()
	c, p, rec := newTestClient(t, &fakeDialer{sock: sock})

	c.Open()
	p.step(t)

	sock.drop()
	p.step(t)

	assert.False(t, c.IsConnected())
	assert.Equal(t, []DisconnectKind{UnexpectedDisconnect}, rec.closes)
	assert.Equal(t, []string{"DeepLook connection lost."}, rec.failures)
}

func TestClient_PeerCloseAfterCloseOpcodeIsSafe(t *testing.T) {
	sock := newFakeSocket()
	c, p, rec := newTestClient(t, &fakeDialer{sock: sock})

	c.Open()
	p.step(t)

	require.NoError(t, c.SendOpcode(protocol.OpHeartbeat))
	require.NoError(t, c.SendOpcode(protocol.OpClose))
	sock.drop()
	p.step(t)

	assert.Equal(t, []DisconnectKind{SafeDisconnect}, rec.closes)
	assert.Empty(t, rec.failures)
}

func TestClient_ReconnectAfterDrop(t *testing.T) {
	first := newFakeSocket()
	d := &fakeDialer{sock: first}
	c, p, rec := newTestClient(t, d)

	c.Open()
	p.step(t)
	firstID := c.ConnectionID()
	first.drop()
	p.step(t)

	d.mu.Lock()
	d.sock = newFakeSocket()
	d.mu.Unlock()

	c.Open()
	p.step(t)
	assert.True(t, c.IsConnected())
	assert.NotEqual(t, firstID, c.ConnectionID())
	assert.Equal(t, 2, rec.opens)
}

func TestClient_CloseWhileConnectingDropsLateOpen(t *testing.T) {
	gate := make(chan struct{})
	sock := newFakeSocket()
	c, p, rec := newTestClient(t, &fakeDialer{sock: sock, gate: gate})

	c.Open()
	c.Close()
	assert.Equal(t, StateDisconnected, c.State())

	close(gate)
	p.step(t)

	assert.False(t, c.IsConnected())
	assert.True(t, sock.isClosed())
	assert.Zero(t, rec.opens)
}

func TestClient_SendRequiresOpenConnection(t *testing.T) {
	sock := newFakeSocket()
	c, p, _ := newTestClient(t, &fakeDialer{sock: sock})

	err := c.SendOpcode(protocol.OpHeartbeat)
	assert.True(t, errors.Is(err, errors.ErrNotConnected))

	c.Open()
	p.step(t)

	require.NoError(t, c.SendOpcode(protocol.OpReset))
	require.NoError(t, c.SendReply(protocol.MeasurementReply(1, 42)))
	require.NoError(t, c.SendJSON(map[string]string{"url": "x"}))

	frames := sock.frames()
	require.Len(t, frames, 3)
	assert.Equal(t, BinaryFrame, frames[0].frameType)
	assert.Equal(t, []byte{3, 0, 0, 0}, frames[0].data)
	assert.Equal(t, []byte{1, 0, 0, 0, 42, 0, 0, 0}, frames[1].data)
	assert.Equal(t, TextFrame, frames[2].frameType)
	assert.JSONEq(t, `{"url":"x"}`, string(frames[2].data))
}

func TestClient_IsConnectedTracksLastTerminalEvent(t *testing.T) {
	sock := newFakeSocket()
	c, p, _ := newTestClient(t, &fakeDialer{sock: sock})

	c.Open()
	p.step(t)
	assert.True(t, c.IsConnected())

	// A message never changes connectedness
	sock.inbound <- frame{TextFrame, []byte("<command>massviewon</command>")}
	p.step(t)
	assert.True(t, c.IsConnected())

	sock.drop()
	p.step(t)
	assert.False(t, c.IsConnected())
}

func TestTransition(t *testing.T) {
	states := []State{StateDisconnected, StateConnecting, StateOpen, StateClosing}
	for _, s := range states {
		assert.Equal(t, StateOpen, Transition(s, EventOpen), s.String())
		assert.Equal(t, StateDisconnected, Transition(s, EventError), s.String())
		assert.Equal(t, StateDisconnected, Transition(s, EventClose), s.String())
		assert.Equal(t, s, Transition(s, EventMessage), s.String())
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, SafeDisconnect, Classify(true))
	assert.Equal(t, UnexpectedDisconnect, Classify(false))
	assert.Equal(t, "unexpected", UnexpectedDisconnect.String())
}
