package wire

import (
	"bytes"
	"strings"
)

// Command is a single request to the sensor.
type Command struct {
	// Verb selects the wire token from the vocabulary.
	Verb Verb

	// Args are appended after the token, each preceded by the separator.
	Args []string
}

// NewCommand creates a command for verb with optional arguments.
func NewCommand(verb Verb, args ...string) Command {
	return Command{Verb: verb, Args: append([]string(nil), args...)}
}

// String returns the verb and arguments for diagnostics.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Verb.String()
	}
	return c.Verb.String() + "(" + strings.Join(c.Args, ",") + ")"
}

// Response is a decoded response frame.
type Response struct {
	// Status is the decoded outcome.
	Status Status

	// Token is the raw status token as received.
	Token string

	// Payload is the frame content after the status token and its separator,
	// without the delimiter.
	Payload []byte

	separator byte
}

// Fields splits the payload into its separator-delimited fields.
// An empty payload yields no fields.
func (r Response) Fields() []string {
	if len(r.Payload) == 0 {
		return nil
	}
	sep := r.separator
	if sep == 0 {
		sep = DefaultSeparator
	}
	parts := bytes.Split(r.Payload, []byte{sep})
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = strings.TrimSpace(string(p))
	}
	return fields
}

// ErrorCode returns the device error code carried by a failure response.
// The sensor echoes the rejected command token before the code, so the code
// is the last payload field.
func (r Response) ErrorCode() string {
	if r.Status != StatusFailure {
		return ""
	}
	fields := r.Fields()
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
