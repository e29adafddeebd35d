package deeplook

import (
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/protocol"
	"github.com/teranos/lookbridge/transport"
)

// Status lines shown when DLPrecise takes or returns pointer control
const (
	StatusMassViewOn  = "MassView On"
	StatusMassViewOff = "MassView Off"
)

// onMessage decodes one frame and answers it. A frame that does not decode
// is dropped without a reply.
func (e *Extension) onMessage(frameType int, data []byte) {
	if frameType != transport.TextFrame {
		e.dropFrame(errors.Wrap(errors.ErrUnsupportedMessageType, "binary frame from companion"), data)
		return
	}

	cmd, err := e.codec.Decode(data)
	if err != nil {
		e.dropFrame(err, data)
		return
	}
	e.rec.FrameDecoded(Name, e.codec.Name(), cmd.Kind.String())

	reply, ok := e.handle(cmd)
	if !ok {
		return
	}
	if err := e.client.SendReply(reply); err != nil {
		e.logger.Warnw("Failed to answer companion",
			logger.FieldKind, cmd.Kind.String(),
			logger.FieldError, err,
		)
		return
	}
	e.rec.ReplySent(Name, cmd.Kind.String())
}

// handle runs the command and returns the reply to send
func (e *Extension) handle(cmd protocol.Command) (protocol.Reply, bool) {
	switch cmd.Kind {
	case protocol.KindMeasureQuery:
		m, err := e.measurer.Measure(cmd.X, cmd.Y)
		if err != nil {
			e.logger.Warnw("Cannot measure, answering not found",
				"x", cmd.X,
				"y", cmd.Y,
				logger.FieldError, err,
			)
			return protocol.MeasurementReply(0, 0), true
		}
		e.logger.Debugw("Measured",
			"x", cmd.X,
			"y", cmd.Y,
			"inside", m.InsideImageFrame,
			"pixel_mm", m.PixelMM,
		)
		return protocol.MeasurementReply(m.InsideImageFrame, m.PixelMM), true

	case protocol.KindControlAcquire:
		e.notify(true, StatusMassViewOn)
		if err := e.handoff.Acquire(); err != nil {
			e.logger.Warnw("Failed to cede pointer control", logger.FieldError, err)
		}
		return protocol.AckReply(), true

	case protocol.KindControlRelease:
		e.notify(true, StatusMassViewOff)
		e.release()
		return protocol.AckReply(), true

	default:
		e.logger.Debugw("Ignoring command", logger.FieldKind, cmd.Kind.String())
		return nil, false
	}
}

func (e *Extension) dropFrame(err error, data []byte) {
	err = errors.WithHint(err, "the frame was dropped and not answered")
	e.logger.Warnw("Dropping companion frame",
		logger.FieldCodec, e.codec.Name(),
		logger.FieldSize, len(data),
		logger.FieldError, err,
		logger.FieldHint, errors.FlattenHints(err),
	)
	e.rec.DecodeFailed(Name, e.codec.Name())
}
