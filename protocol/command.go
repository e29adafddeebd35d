// Package protocol encodes and decodes frames exchanged with a companion process.
//
// Two inbound formats coexist and are selected per extension:
//
//	tag  - <command>xypixelpermm</command><xpos>12</xpos><ypos>34</ypos>
//	json - {"type": "information", "payload": ...}
//
// Everything sent back to the companion is a little-endian uint32 array
// (what a browser Uint32Array puts on the wire): measurement answers,
// acknowledgements and the fixed opcodes.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a decoded inbound command
type Kind int

const (
	KindUnknown Kind = iota
	// KindMeasureQuery asks for pixels-per-mm at a canvas position
	KindMeasureQuery
	// KindControlAcquire asks the host to cede the pointer to the companion
	KindControlAcquire
	// KindControlRelease hands the pointer back to the host
	KindControlRelease
	// KindInfoEvent, KindFileEvent and KindErrorEvent are fire-and-forget notifications
	KindInfoEvent
	KindFileEvent
	KindErrorEvent
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindMeasureQuery:   "measure_query",
	KindControlAcquire: "control_acquire",
	KindControlRelease: "control_release",
	KindInfoEvent:      "info_event",
	KindFileEvent:      "file_event",
	KindErrorEvent:     "error_event",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Command is one decoded inbound frame. It only lives for the dispatch of that frame.
type Command struct {
	Kind Kind

	// X and Y are canvas coordinates (MeasureQuery only)
	X float64
	Y float64

	// Payload is the raw JSON payload (Info/File/Error events only)
	Payload json.RawMessage
}

// PayloadText renders the payload for notifications: JSON strings are unquoted,
// anything else is returned as compact JSON.
func (c Command) PayloadText() string {
	if len(c.Payload) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(c.Payload, &s); err == nil {
		return s
	}
	return string(c.Payload)
}

// ReplyShape returns how many uint32 elements the reply to a command of this
// kind carries. Zero means the command is not answered.
func ReplyShape(k Kind) int {
	switch k {
	case KindMeasureQuery:
		return 2
	case KindControlAcquire, KindControlRelease:
		return 1
	default:
		return 0
	}
}
