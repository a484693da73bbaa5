package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Default vocabulary values.
const (
	DefaultDelimiter    byte = '\r'
	DefaultSeparator    byte = ','
	DefaultMaxFrameSize      = 4096

	// MinFrameSize is the smallest frame bound that can hold a status token
	// and a delimiter.
	MinFrameSize = 4
)

// Verb identifies a logical command independent of its wire token.
type Verb uint8

const (
	// VerbTrigger captures an image without reporting detections.
	VerbTrigger Verb = iota

	// VerbTriggerObj captures an image and reports the detected object count.
	VerbTriggerObj

	// VerbPose fetches the pose records of the last detection.
	VerbPose
)

// String returns the verb name.
func (v Verb) String() string {
	switch v {
	case VerbTrigger:
		return "TRIGGER"
	case VerbTriggerObj:
		return "TRIGGER_OBJ"
	case VerbPose:
		return "POSE"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidVocabulary indicates an unusable token table.
var ErrInvalidVocabulary = errors.New("invalid vocabulary")

// Vocabulary is the vendor token table used by a Codec.
type Vocabulary struct {
	// Commands maps each verb to its wire token.
	Commands map[Verb]string

	// StatusOK and StatusError are the leading response tokens.
	StatusOK    string
	StatusError string

	// Separator splits tokens, arguments and payload fields.
	Separator byte

	// Delimiter terminates every frame.
	Delimiter byte

	// MaxFrameSize bounds a response frame including its delimiter.
	MaxFrameSize int
}

// DefaultVocabulary returns the token table of the stock sensor firmware.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Commands: map[Verb]string{
			VerbTrigger:    "T1",
			VerbTriggerObj: "T2",
			VerbPose:       "PR",
		},
		StatusOK:     "OK",
		StatusError:  "ER",
		Separator:    DefaultSeparator,
		Delimiter:    DefaultDelimiter,
		MaxFrameSize: DefaultMaxFrameSize,
	}
}

// Token returns the wire token for a verb.
func (v Vocabulary) Token(verb Verb) (string, bool) {
	tok, ok := v.Commands[verb]
	return tok, ok && tok != ""
}

// Validate checks that the table can frame and parse unambiguously.
func (v Vocabulary) Validate() error {
	if v.Separator == v.Delimiter {
		return fmt.Errorf("%w: separator and delimiter are both %q", ErrInvalidVocabulary, v.Delimiter)
	}
	if v.MaxFrameSize < MinFrameSize {
		return fmt.Errorf("%w: max frame size %d < %d", ErrInvalidVocabulary, v.MaxFrameSize, MinFrameSize)
	}
	if v.StatusOK == "" || v.StatusError == "" {
		return fmt.Errorf("%w: status tokens must not be empty", ErrInvalidVocabulary)
	}
	if v.StatusOK == v.StatusError {
		return fmt.Errorf("%w: status tokens are identical", ErrInvalidVocabulary)
	}
	for _, verb := range []Verb{VerbTrigger, VerbTriggerObj, VerbPose} {
		tok, ok := v.Token(verb)
		if !ok {
			return fmt.Errorf("%w: no token for %s", ErrInvalidVocabulary, verb)
		}
		if !v.cleanToken(tok) {
			return fmt.Errorf("%w: token %q for %s contains a reserved byte", ErrInvalidVocabulary, tok, verb)
		}
	}
	if !v.cleanToken(v.StatusOK) || !v.cleanToken(v.StatusError) {
		return fmt.Errorf("%w: status token contains a reserved byte", ErrInvalidVocabulary)
	}
	return nil
}

// cleanToken reports whether s is free of the separator and the delimiter.
func (v Vocabulary) cleanToken(s string) bool {
	return strings.IndexByte(s, v.Separator) < 0 && strings.IndexByte(s, v.Delimiter) < 0
}
