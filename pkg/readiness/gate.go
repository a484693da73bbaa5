// Package readiness tracks whether the sensor hardware reports itself ready.
//
// The gate is written by the asynchronous hardware-event notifier and read by
// the command path. It is the only state those two paths share.
package readiness

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is the tri-state readiness value.
type State int32

const (
	// StateUnknown means no signal has been received in this connection epoch.
	StateUnknown State = iota

	// StateNotReady means the sensor reported it cannot accept commands.
	StateNotReady

	// StateReady means the sensor reported it can accept commands.
	StateReady
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateNotReady:
		return "NOT_READY"
	case StateReady:
		return "READY"
	default:
		return "INVALID"
	}
}

// Gate is a thread-safe readiness cell. The zero value is a usable gate in
// StateUnknown.
type Gate struct {
	state atomic.Int32

	// changed is closed and replaced on every transition so Wait can block
	// without polling.
	mu      sync.Mutex
	changed chan struct{}
}

// NewGate creates a gate in StateUnknown.
func NewGate() *Gate {
	return &Gate{}
}

// SetReady records the latest hardware signal. It never blocks on readers.
func (g *Gate) SetReady(ready bool) State {
	next := StateNotReady
	if ready {
		next = StateReady
	}
	return g.store(next)
}

// Reset returns the gate to StateUnknown. Called when the connection epoch ends.
func (g *Gate) Reset() State {
	return g.store(StateUnknown)
}

// IsReady reports whether the last signal was ready. Unknown counts as not ready.
func (g *Gate) IsReady() bool {
	return g.State() == StateReady
}

// State returns the current state.
func (g *Gate) State() State {
	return State(g.state.Load())
}

// Wait blocks until the gate is ready or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		ch := g.waitChan()
		if g.IsReady() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// store swaps in the new state and returns the previous one.
func (g *Gate) store(next State) State {
	prev := State(g.state.Swap(int32(next)))
	if prev != next {
		g.mu.Lock()
		if g.changed != nil {
			close(g.changed)
			g.changed = nil
		}
		g.mu.Unlock()
	}
	return prev
}

func (g *Gate) waitChan() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.changed == nil {
		g.changed = make(chan struct{})
	}
	return g.changed
}
