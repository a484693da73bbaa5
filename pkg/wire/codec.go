package wire

import (
	"bytes"
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrMalformedFrame indicates a response frame that cannot be decoded.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrInvalidCommand indicates a command that cannot be framed.
	ErrInvalidCommand = errors.New("invalid command")
)

// Codec encodes commands and decodes responses for one vocabulary.
type Codec struct {
	vocab Vocabulary
}

// NewCodec creates a codec after validating the vocabulary.
func NewCodec(vocab Vocabulary) (*Codec, error) {
	if err := vocab.Validate(); err != nil {
		return nil, err
	}
	return &Codec{vocab: vocab}, nil
}

// Vocabulary returns the token table used by the codec.
func (c *Codec) Vocabulary() Vocabulary {
	return c.vocab
}

// Delimiter returns the frame delimiter.
func (c *Codec) Delimiter() byte {
	return c.vocab.Delimiter
}

// MaxFrameSize returns the response frame bound.
func (c *Codec) MaxFrameSize() int {
	return c.vocab.MaxFrameSize
}

// Encode converts a command into the exact bytes the sensor expects.
func (c *Codec) Encode(cmd Command) ([]byte, error) {
	tok, ok := c.vocab.Token(cmd.Verb)
	if !ok {
		return nil, fmt.Errorf("%w: no token for %s", ErrInvalidCommand, cmd.Verb)
	}

	var buf bytes.Buffer
	buf.WriteString(tok)
	for _, arg := range cmd.Args {
		if !c.vocab.cleanToken(arg) {
			return nil, fmt.Errorf("%w: argument %q contains a reserved byte", ErrInvalidCommand, arg)
		}
		buf.WriteByte(c.vocab.Separator)
		buf.WriteString(arg)
	}
	buf.WriteByte(c.vocab.Delimiter)
	return buf.Bytes(), nil
}

// Decode parses a raw buffer into a Response. The buffer must contain the
// delimiter within MaxFrameSize bytes; anything after the first delimiter is
// ignored. On failure the returned Response has StatusMalformed and carries
// the raw bytes as payload.
func (c *Codec) Decode(buf []byte) (Response, error) {
	malformed := Response{Status: StatusMalformed, Payload: buf, separator: c.vocab.Separator}

	limit := len(buf)
	if limit > c.vocab.MaxFrameSize {
		limit = c.vocab.MaxFrameSize
	}
	end := bytes.IndexByte(buf[:limit], c.vocab.Delimiter)
	if end < 0 {
		return malformed, fmt.Errorf("%w: no delimiter within %d bytes", ErrMalformedFrame, limit)
	}

	// Tolerate line-oriented peers that send CR LF or stray leading newlines.
	frame := bytes.Trim(buf[:end], "\r\n")

	token := frame
	var payload []byte
	if i := bytes.IndexByte(frame, c.vocab.Separator); i >= 0 {
		token = frame[:i]
		payload = frame[i+1:]
	}

	resp := Response{
		Token:     string(token),
		Payload:   append([]byte(nil), payload...),
		separator: c.vocab.Separator,
	}
	switch resp.Token {
	case c.vocab.StatusOK:
		resp.Status = StatusSuccess
	case c.vocab.StatusError:
		resp.Status = StatusFailure
	default:
		return malformed, fmt.Errorf("%w: unrecognized status token %q", ErrMalformedFrame, resp.Token)
	}
	return resp, nil
}

// EncodeResponse frames a response the way the sensor does. It is used by
// simulators and tests.
func (c *Codec) EncodeResponse(status Status, fields ...string) ([]byte, error) {
	var buf bytes.Buffer
	switch status {
	case StatusSuccess:
		buf.WriteString(c.vocab.StatusOK)
	case StatusFailure:
		buf.WriteString(c.vocab.StatusError)
	default:
		return nil, fmt.Errorf("%w: cannot encode status %s", ErrInvalidCommand, status)
	}
	for _, f := range fields {
		buf.WriteByte(c.vocab.Separator)
		buf.WriteString(f)
	}
	buf.WriteByte(c.vocab.Delimiter)
	return buf.Bytes(), nil
}

// DecodeCommand parses a request frame back into a Command. It is the
// sensor-side counterpart of Encode, used by simulators and tests.
func (c *Codec) DecodeCommand(buf []byte) (Command, error) {
	end := bytes.IndexByte(buf, c.vocab.Delimiter)
	if end < 0 {
		return Command{}, fmt.Errorf("%w: no delimiter", ErrMalformedFrame)
	}
	parts := bytes.Split(bytes.Trim(buf[:end], "\r\n"), []byte{c.vocab.Separator})
	tok := string(parts[0])
	for verb, t := range c.vocab.Commands {
		if t == tok {
			cmd := Command{Verb: verb}
			for _, p := range parts[1:] {
				cmd.Args = append(cmd.Args, string(p))
			}
			return cmd, nil
		}
	}
	return Command{}, fmt.Errorf("%w: unknown command token %q", ErrMalformedFrame, tok)
}
