package protocol

import "github.com/teranos/lookbridge/errors"

// Codec decodes inbound frames for one protocol variant
type Codec interface {
	// Name identifies the variant in logs and metrics
	Name() string

	// Decode parses one frame. Errors wrap one of the protocol sentinels.
	Decode(frame []byte) (Command, error)

	// Replies reports whether decoded commands are answered with a binary reply
	Replies() bool
}

// ForVariant returns the codec registered under name ("tag" or "json")
func ForVariant(name string) (Codec, error) {
	switch name {
	case "tag":
		return TagCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	default:
		return nil, errors.NewInvalidRequestError("unknown protocol variant %q", name)
	}
}
