package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/lookbridge/errors"
)

func TestReply_Bytes(t *testing.T) {
	assert.Equal(t, []byte{1, 0, 0, 0, 7, 0, 0, 0}, MeasurementReply(1, 7).Bytes())
	assert.Equal(t, []byte{1, 0, 0, 0}, AckReply().Bytes())
	assert.Equal(t, []byte{5, 0, 0, 0}, OpcodeReply(OpHeartbeat).Bytes())
	assert.Equal(t, []byte{0x10, 0x27, 0, 0}, Reply{10000}.Bytes())
}

func TestDecodeReply(t *testing.T) {
	r, err := DecodeReply(MeasurementReply(1, 2847).Bytes())
	require.NoError(t, err)
	assert.Equal(t, Reply{1, 2847}, r)

	_, err = DecodeReply([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedFrame))
}

func TestParseOpcode(t *testing.T) {
	for name, want := range map[string]Opcode{"reset": OpReset, "close": OpClose, "heartbeat": OpHeartbeat} {
		got, err := ParseOpcode(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
	}

	_, err := ParseOpcode("ack")
	assert.Error(t, err)
}

// Every command the tag codec decodes has exactly one reply shape, and the
// reply constructors produce that shape.
func TestReplyShapeMatchesDecode(t *testing.T) {
	frames := map[Kind][]byte{
		KindMeasureQuery:   TagFrame(CommandPixelPerMM, "xpos", "1", "ypos", "2"),
		KindControlAcquire: TagFrame(CommandMassViewOn),
		KindControlRelease: TagFrame(CommandMassViewOff),
	}

	for kind, frame := range frames {
		cmd, err := TagCodec{}.Decode(frame)
		require.NoError(t, err)
		require.Equal(t, kind, cmd.Kind)

		var reply Reply
		if kind == KindMeasureQuery {
			reply = MeasurementReply(1, 1)
		} else {
			reply = AckReply()
		}
		assert.Len(t, reply, ReplyShape(kind), kind.String())
	}

	assert.Zero(t, ReplyShape(KindInfoEvent))
	assert.Zero(t, ReplyShape(KindUnknown))
}

func TestForVariant(t *testing.T) {
	c, err := ForVariant("tag")
	require.NoError(t, err)
	assert.True(t, c.Replies())

	c, err = ForVariant("json")
	require.NoError(t, err)
	assert.False(t, c.Replies())

	_, err = ForVariant("xml")
	assert.Error(t, err)
}
