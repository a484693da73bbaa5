package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.klog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var read []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return read
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, event)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	path := createTestLogFile(t, []Event{
		{Timestamp: time.Now(), ConnectionID: "conn-1", Layer: LayerTransport},
		{Timestamp: time.Now(), ConnectionID: "conn-2", Layer: LayerWire},
		{Timestamp: time.Now(), ConnectionID: "conn-3", Layer: LayerSession},
	})

	reader, err := OpenReader(path, Filter{})
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[0].ConnectionID != "conn-1" || read[2].ConnectionID != "conn-3" {
		t.Errorf("events out of order: %q .. %q", read[0].ConnectionID, read[2].ConnectionID)
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Now()
	in := DirectionIn
	wireLayer := LayerWire
	start := base.Add(time.Second)
	end := base.Add(2 * time.Second)
	slow := 300 * time.Millisecond

	path := createTestLogFile(t, []Event{
		{Timestamp: base, ConnectionID: "a", Direction: DirectionOut, Layer: LayerWire,
			Message: &MessageEvent{Type: MessageTypeCommand, Verb: "TRIGGER"}},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "a", Direction: DirectionIn, Layer: LayerWire,
			Message: &MessageEvent{Type: MessageTypeResponse, Verb: "POSE", Status: "FAILURE", RoundTrip: &slow}},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "b", Direction: DirectionIn, Layer: LayerTransport},
	})

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 3},
		{"epoch", Filter{Epoch: "a"}, 2},
		{"direction", Filter{Direction: &in}, 2},
		{"layer", Filter{Layer: &wireLayer}, 2},
		{"since", Filter{Since: &start}, 2},
		{"until", Filter{Until: &end}, 1},
		{"status", Filter{Status: "FAILURE"}, 1},
		{"slow", Filter{MinRoundTrip: 100 * time.Millisecond}, 1},
		{"too slow", Filter{MinRoundTrip: time.Second}, 0},
		{"verb", Filter{Verb: "POSE"}, 1},
		{"combined", Filter{Epoch: "a", Direction: &in, Verb: "POSE"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := OpenReader(path, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			if got := len(readAll(t, r)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	reader, err := OpenReader(path, Filter{})
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("Next on empty file = %v, want io.EOF", err)
	}
}
