// Package connection provides the open-retry policy for the sensor link.
//
// The sensor often refuses connections for a short time after power-up or
// after a previous client disconnects. Opening a link may therefore be retried
// with exponential backoff:
//
//  1. Initial delay: 200 milliseconds
//  2. Exponential increase: 400ms, 800ms, 1.6s, 3.2s
//  3. Maximum delay: 5 seconds
//
// Jitter spreads retries out:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// Retries only ever happen inside a single explicit open request. A link that
// is lost after it was established is never reopened automatically.
package connection
