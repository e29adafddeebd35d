package segmentation

import (
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/protocol"
	"github.com/teranos/lookbridge/transport"
)

// MessageFileReceived is shown when the server announces a file
const MessageFileReceived = "Received a file"

// onMessage turns server events into notifications. Nothing is ever answered.
func (e *Extension) onMessage(frameType int, data []byte) {
	if frameType != transport.TextFrame {
		e.dropFrame(errors.Wrap(errors.ErrUnsupportedMessageType, "binary frame from AI Server"), data)
		return
	}

	cmd, err := e.codec.Decode(data)
	if err != nil {
		e.dropFrame(err, data)
		return
	}
	e.rec.FrameDecoded(Name, e.codec.Name(), cmd.Kind.String())

	switch cmd.Kind {
	case protocol.KindInfoEvent:
		e.logger.Infow("AI Server message", "payload", cmd.PayloadText())
		e.notify(true, cmd.PayloadText())
	case protocol.KindFileEvent:
		e.logger.Infow("AI Server sent a file", "payload", cmd.PayloadText())
		e.notify(true, MessageFileReceived)
	case protocol.KindErrorEvent:
		e.logger.Warnw("AI Server reported an error", "payload", cmd.PayloadText())
		e.notify(false, cmd.PayloadText())
	default:
		e.logger.Debugw("Ignoring command", logger.FieldKind, cmd.Kind.String())
	}
}

func (e *Extension) dropFrame(err error, data []byte) {
	err = errors.WithHint(err, "the frame was dropped")
	e.logger.Warnw("Dropping AI Server frame",
		logger.FieldCodec, e.codec.Name(),
		logger.FieldSize, len(data),
		logger.FieldError, err,
		logger.FieldHint, errors.FlattenHints(err),
	)
	e.rec.DecodeFailed(Name, e.codec.Name())
}
