package protocol

import (
	"encoding/json"

	"github.com/teranos/lookbridge/errors"
)

// EventType is the type field of a JSON envelope
type EventType string

const (
	EventInformation EventType = "information"
	EventFile        EventType = "file"
	EventError       EventType = "error"
)

// Envelope is the JSON notification frame sent by the segmentation server
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EnvelopeFrame marshals an envelope; payload may be any JSON-encodable value
func EnvelopeFrame(t EventType, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode envelope payload")
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// SeriesRequest asks the segmentation server to process one series
type SeriesRequest struct {
	URL       string `json:"url"`
	Suffix    string `json:"suffix"`
	StudyUID  string `json:"studyUID"`
	SeriesUID string `json:"seriesUID"`
}

// JSONCodec decodes the JSON envelope protocol. Notifications are never answered.
type JSONCodec struct{}

func (JSONCodec) Name() string  { return "json" }
func (JSONCodec) Replies() bool { return false }

// Decode parses one envelope into a Command
func (JSONCodec) Decode(frame []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Command{}, errors.Wrap(errors.ErrMalformedFrame, err.Error())
	}

	switch env.Type {
	case EventInformation:
		return Command{Kind: KindInfoEvent, Payload: env.Payload}, nil
	case EventFile:
		return Command{Kind: KindFileEvent, Payload: env.Payload}, nil
	case EventError:
		return Command{Kind: KindErrorEvent, Payload: env.Payload}, nil
	default:
		return Command{}, errors.Wrapf(errors.ErrUnsupportedMessageType, "%s", env.Type)
	}
}
