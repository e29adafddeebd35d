package companion

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/protocol"
	"go.uber.org/zap/zaptest"
)

func startServer(t *testing.T, variant string) (*Server, *websocket.Conn) {
	t.Helper()
	s, err := New(variant, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.WaitConnected(ctx))
	return s, conn
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew_RejectsUnknownVariant(t *testing.T) {
	_, err := New("xml", zaptest.NewLogger(t).Sugar())
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestServer_RecordsClientFrames(t *testing.T) {
	s, conn := startServer(t, "tag")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.OpcodeReply(protocol.OpHeartbeat).Bytes()))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.OpcodeReply(protocol.OpReset).Bytes()))

	ctx := testContext(t)
	first, err := s.Next(ctx)
	require.NoError(t, err)
	assert.True(t, first.IsOpcode(protocol.OpHeartbeat))

	reply, err := s.NextReply(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.Reply{3}, reply)

	assert.Len(t, s.Received(), 2)
	assert.Equal(t, 1, s.Accepted())
	assert.True(t, s.Connected())
}

func TestServer_PushTagFrames(t *testing.T) {
	s, conn := startServer(t, "tag")

	require.NoError(t, s.PushMeasure(12.5, 40))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	cmd, err := protocol.TagCodec{}.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindMeasureQuery, cmd.Kind)
	assert.Equal(t, 12.5, cmd.X)
	assert.Equal(t, 40.0, cmd.Y)
}

func TestServer_PushEvent(t *testing.T) {
	s, conn := startServer(t, "json")

	require.NoError(t, s.PushEvent(protocol.EventInformation, "segmentation started"))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	cmd, err := protocol.JSONCodec{}.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindInfoEvent, cmd.Kind)
	assert.Equal(t, "segmentation started", cmd.PayloadText())
}

func TestServer_RunSession(t *testing.T) {
	s, conn := startServer(t, "tag")

	// Minimal client: ack control commands, answer measurements with [1, 2000]
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			cmd, err := protocol.TagCodec{}.Decode(data)
			if err != nil {
				return
			}
			reply := protocol.AckReply()
			if cmd.Kind == protocol.KindMeasureQuery {
				reply = protocol.MeasurementReply(1, 2000)
			}
			conn.WriteMessage(websocket.BinaryMessage, protocol.OpcodeReply(protocol.OpHeartbeat).Bytes())
			conn.WriteMessage(websocket.BinaryMessage, reply.Bytes())
		}
	}()

	res, err := s.RunSession(testContext(t), 10, 20)
	require.NoError(t, err)
	assert.Equal(t, protocol.Reply{1}, res.AcquireAck)
	assert.Equal(t, protocol.Reply{1, 2000}, res.Measurement)
	assert.Equal(t, protocol.Reply{1}, res.ReleaseAck)
}

func TestServer_RunSessionNeedsTagVariant(t *testing.T) {
	s, _ := startServer(t, "json")
	_, err := s.RunSession(testContext(t), 0, 0)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestServer_CloseClientAndDrop(t *testing.T) {
	s, conn := startServer(t, "tag")

	require.NoError(t, s.CloseClient())
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	s2, conn2 := startServer(t, "tag")
	s2.Drop()
	_, _, err = conn2.ReadMessage()
	require.Error(t, err)
	assert.False(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	assert.Error(t, s2.Push([]byte("x")))
}
