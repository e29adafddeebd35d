package protocol

import (
	"encoding/binary"

	"github.com/teranos/lookbridge/errors"
)

// Opcode is a fixed outbound signal to the companion process
type Opcode uint32

const (
	// OpAck acknowledges a control command
	OpAck Opcode = 1
	// OpReset turns off mass view and clears overlays on the companion
	OpReset Opcode = 3
	// OpClose asks the companion to exit
	OpClose Opcode = 4
	// OpHeartbeat keeps the companion from exiting for lack of use
	OpHeartbeat Opcode = 5
)

func (o Opcode) String() string {
	switch o {
	case OpAck:
		return "ack"
	case OpReset:
		return "reset"
	case OpClose:
		return "close"
	case OpHeartbeat:
		return "heartbeat"
	default:
		return "opcode"
	}
}

// ParseOpcode maps a CLI-friendly name to an opcode
func ParseOpcode(name string) (Opcode, error) {
	switch name {
	case "reset":
		return OpReset, nil
	case "close":
		return OpClose, nil
	case "heartbeat":
		return OpHeartbeat, nil
	default:
		return 0, errors.NewInvalidRequestError("unknown opcode %q (want reset, close or heartbeat)", name)
	}
}

// Reply is a fixed-width uint32 sequence sent as one binary frame
type Reply []uint32

// MeasurementReply answers a MeasureQuery: [insideImageFrame, pixelMM]
func MeasurementReply(insideImageFrame, pixelMM uint32) Reply {
	return Reply{insideImageFrame, pixelMM}
}

// AckReply acknowledges a control command: [1]
func AckReply() Reply {
	return Reply{uint32(OpAck)}
}

// OpcodeReply wraps a single outbound opcode: [op]
func OpcodeReply(op Opcode) Reply {
	return Reply{uint32(op)}
}

// Bytes encodes the reply as little-endian uint32s
func (r Reply) Bytes() []byte {
	buf := make([]byte, 4*len(r))
	for i, v := range r {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

// DecodeReply parses a binary frame back into a Reply
func DecodeReply(frame []byte) (Reply, error) {
	if len(frame)%4 != 0 {
		return nil, errors.Wrapf(errors.ErrMalformedFrame, "binary frame length %d is not a multiple of 4", len(frame))
	}
	r := make(Reply, len(frame)/4)
	for i := range r {
		r[i] = binary.LittleEndian.Uint32(frame[i*4:])
	}
	return r, nil
}
