// Package transport owns the socket to the vision sensor.
//
// A Connection moves through three states:
//
//	CLOSED -> CONNECTING -> OPEN -> CLOSED
//
// Every successful Open starts a new epoch identified by a UUID. All I/O is
// blocking with a hard deadline (one second by default). A receive that times
// out keeps whatever partial bytes it already read; they are handed to the
// next receive unless the caller calls Discard first. Peer close, reset, or a
// local Close ends the epoch and moves the connection to CLOSED. Nothing in
// this package reconnects on its own.
//
// # Stack
//
//	┌────────────────────────────────┐
//	│   TOKEN[,ARG...]<CR> frames    │
//	├────────────────────────────────┤
//	│   Delimiter-bounded reads      │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
package transport
