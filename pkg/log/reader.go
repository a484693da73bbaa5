package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events from a protocol log. Zero fields match every event.
type Filter struct {
	// Epoch keeps the events of one connection epoch.
	Epoch string

	Direction *Direction
	Layer     *Layer
	Category  *Category

	// Since and Until bound the timestamp to [Since, Until).
	Since *time.Time
	Until *time.Time

	// Verb keeps message events for one command verb, e.g. "POSE".
	Verb string

	// Status keeps responses with this status name, e.g. "FAILURE".
	Status string

	// MinRoundTrip keeps responses that took at least this long.
	MinRoundTrip time.Duration
}

// Match reports whether event satisfies every criterion of f.
func (f Filter) Match(event Event) bool {
	switch {
	case f.Epoch != "" && event.ConnectionID != f.Epoch,
		f.Direction != nil && event.Direction != *f.Direction,
		f.Layer != nil && event.Layer != *f.Layer,
		f.Category != nil && event.Category != *f.Category,
		f.Since != nil && event.Timestamp.Before(*f.Since),
		f.Until != nil && !event.Timestamp.Before(*f.Until):
		return false
	}

	if f.Verb == "" && f.Status == "" && f.MinRoundTrip <= 0 {
		return true
	}
	msg := event.Message
	if msg == nil {
		return false
	}
	if f.Verb != "" && msg.Verb != f.Verb {
		return false
	}
	if f.Status != "" && msg.Status != f.Status {
		return false
	}
	if f.MinRoundTrip > 0 && (msg.RoundTrip == nil || *msg.RoundTrip < f.MinRoundTrip) {
		return false
	}
	return true
}

// Reader streams events from a .klog file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// OpenReader opens the log at path and yields the events matching filter.
func OpenReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the log.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// Close closes the log file.
func (r *Reader) Close() error {
	return r.file.Close()
}
