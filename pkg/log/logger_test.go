package log

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopLoggerIsZeroValue(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
	logger.Log(NewFrameEvent("c", DirectionIn, []byte("OK\r")))
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopLogger{}, OrNoop(nil))

	r := NewRecorder(0)
	assert.Same(t, r, OrNoop(r))
}

func TestNewFrameEventTruncates(t *testing.T) {
	big := make([]byte, MaxLogFrameDataSize+10)
	e := NewFrameEvent("conn-1", DirectionOut, big)

	require.NotNil(t, e.Frame)
	assert.Equal(t, LayerTransport, e.Layer)
	assert.Equal(t, len(big), e.Frame.Size)
	assert.Len(t, e.Frame.Data, MaxLogFrameDataSize)
	assert.True(t, e.Frame.Truncated)
	assert.WithinDuration(t, time.Now(), e.Timestamp, time.Second)
}

func TestNewFrameEventCopiesData(t *testing.T) {
	data := []byte("T1\r")
	e := NewFrameEvent("conn-1", DirectionOut, data)
	data[0] = 'X'
	assert.Equal(t, "T1\r", string(e.Frame.Data))
}

func TestNewStateAndErrorEvents(t *testing.T) {
	s := NewStateEvent("c", LayerSession, StateEntitySession, "MOUNTED", "ACTIVE", "activate")
	require.NotNil(t, s.StateChange)
	assert.Equal(t, CategoryState, s.Category)
	assert.Equal(t, "ACTIVE", s.StateChange.NewState)

	e := NewErrorEvent("c", LayerWire, errors.New("boom"), "execute")
	require.NotNil(t, e.Error)
	assert.Equal(t, CategoryError, e.Category)
	assert.Equal(t, "boom", e.Error.Message)
	assert.Equal(t, "execute", e.Error.Context)
}

func TestRecorderLimit(t *testing.T) {
	r := NewRecorder(2)
	for _, id := range []string{"a", "b", "c"} {
		r.Log(Event{ConnectionID: id})
	}

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].ConnectionID)
	assert.Equal(t, "c", events[1].ConnectionID)
}

func TestRecorderConcurrent(t *testing.T) {
	r := NewRecorder(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Log(Event{})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, r.Events(), 400)
}

func TestMultiLogger(t *testing.T) {
	a, b := NewRecorder(0), NewRecorder(0)
	m := NewMultiLogger(a, nil, b)

	assert.Equal(t, 2, m.Len())

	m.Log(Event{ConnectionID: "conn-123"})
	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	assert.Equal(t, "conn-123", b.Events()[0].ConnectionID)

	// Empty multi logger must not panic.
	NewMultiLogger().Log(Event{})
}
