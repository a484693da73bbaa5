package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logJSON(t *testing.T, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	NewSlogAdapter(slog.New(handler)).Log(event)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestSlogAdapterLogsFrameEvent(t *testing.T) {
	entry := logJSON(t, NewFrameEvent("conn-123", DirectionIn, []byte("OK,2\r")))

	assert.Equal(t, "conn-123", entry["conn_id"])
	assert.Equal(t, "IN", entry["direction"])
	assert.Equal(t, "TRANSPORT", entry["layer"])
	assert.Equal(t, float64(5), entry["frame_size"])
}

func TestSlogAdapterLogsMessageEvent(t *testing.T) {
	rt := 3 * time.Millisecond
	entry := logJSON(t, Event{
		ConnectionID: "c",
		Layer:        LayerWire,
		Message: &MessageEvent{
			Type:      MessageTypeResponse,
			Verb:      "TRIGGER_OBJ",
			Token:     "OK",
			Status:    "SUCCESS",
			Attempt:   1,
			RoundTrip: &rt,
		},
	})

	assert.Equal(t, "RESPONSE", entry["msg_type"])
	assert.Equal(t, "TRIGGER_OBJ", entry["verb"])
	assert.Equal(t, "SUCCESS", entry["status"])
	assert.Equal(t, float64(1), entry["attempt"])
	assert.Contains(t, entry, "round_trip")
}

func TestSlogAdapterLogsStateAndError(t *testing.T) {
	entry := logJSON(t, NewStateEvent("c", LayerSession, StateEntityReadiness, "UNKNOWN", "READY", ""))
	assert.Equal(t, "READINESS", entry["entity"])
	assert.Equal(t, "READY", entry["new_state"])
	assert.NotContains(t, entry, "reason")

	ev := NewErrorEvent("c", LayerWire, assert.AnError, "execute")
	ev.Error.Code = "03"
	entry = logJSON(t, ev)
	assert.Equal(t, "WIRE", entry["error_layer"])
	assert.Equal(t, "03", entry["error_code"])
}
