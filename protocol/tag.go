package protocol

import (
	"strconv"
	"strings"

	"github.com/teranos/lookbridge/errors"
)

// Tag-delimited command names sent by the companion
const (
	CommandPixelPerMM  = "xypixelpermm"
	CommandMassViewOn  = "massviewon"
	CommandMassViewOff = "massviewoff"
)

// ExtractTag returns the text between the first <tag> and the first </tag>.
// There is no nesting or escaping. A missing or misordered tag is an error.
func ExtractTag(tag, text string) (string, error) {
	startTag := "<" + tag + ">"
	endTag := "</" + tag + ">"

	start := strings.Index(text, startTag)
	if start < 0 {
		return "", errors.Wrapf(errors.ErrMalformedTag, "missing %s", startTag)
	}
	start += len(startTag)

	end := strings.Index(text, endTag)
	if end < 0 {
		return "", errors.Wrapf(errors.ErrMalformedTag, "missing %s", endTag)
	}
	if end < start {
		return "", errors.Wrapf(errors.ErrMalformedTag, "%s precedes %s", endTag, startTag)
	}
	return text[start:end], nil
}

// TagFrame builds a tag-delimited frame: the command element followed by
// each key/value pair in order. An odd trailing key is ignored.
func TagFrame(command string, kv ...string) []byte {
	var b strings.Builder
	writeTag(&b, "command", command)
	for i := 0; i+1 < len(kv); i += 2 {
		writeTag(&b, kv[i], kv[i+1])
	}
	return []byte(b.String())
}

func writeTag(b *strings.Builder, tag, value string) {
	b.WriteString("<")
	b.WriteString(tag)
	b.WriteString(">")
	b.WriteString(value)
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteString(">")
}

// TagCodec decodes the tag-delimited text protocol spoken by DLPrecise
type TagCodec struct{}

func (TagCodec) Name() string  { return "tag" }
func (TagCodec) Replies() bool { return true }

// Decode parses one frame into a Command
func (TagCodec) Decode(frame []byte) (Command, error) {
	text := string(frame)

	command, err := ExtractTag("command", text)
	if err != nil {
		return Command{}, err
	}

	switch strings.TrimSpace(command) {
	case CommandPixelPerMM:
		x, err := numericTag("xpos", text)
		if err != nil {
			return Command{}, err
		}
		y, err := numericTag("ypos", text)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindMeasureQuery, X: x, Y: y}, nil

	case CommandMassViewOn:
		return Command{Kind: KindControlAcquire}, nil

	case CommandMassViewOff:
		return Command{Kind: KindControlRelease}, nil

	default:
		return Command{}, errors.Wrapf(errors.ErrUnknownCommand, "%q", command)
	}
}

func numericTag(tag, text string) (float64, error) {
	raw, err := ExtractTag(tag, text)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrMalformedTag, "<%s> is not numeric: %q", tag, raw)
	}
	return v, nil
}
