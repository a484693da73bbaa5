// Package client executes commands against the sensor one request at a time.
//
// Execute checks readiness before any I/O, encodes the command, sends it and
// waits for the response under the configured timeout. The command is
// written exactly once. A receive timeout grants another receive window for
// the same request, up to MaxRetries times, and is then reported as
// ErrTimeout. After ErrTimeout a reply may still be on its way, so the link
// is indeterminate and the caller must close it before the next request.
// Any other I/O failure, including a send timeout, is reported as
// ErrConnectionLost and is never retried: the caller must reopen the link.
//
// # Concurrency
//
// Only one request is in flight per link. A caller that arrives while
// another request is outstanding either waits for it (ConcurrencyBlock, the
// default) or fails immediately with ErrBusy (ConcurrencyFailFast). The
// policy is fixed for the lifetime of a Client. A waiting caller gives up when
// its context is done.
//
// Readiness is checked only before sending. A readiness change during the
// receive does not abort the request.
package client
