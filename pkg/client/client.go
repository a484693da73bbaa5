package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kswx/keyence-go/pkg/log"
	"github.com/kswx/keyence-go/pkg/transport"
	"github.com/kswx/keyence-go/pkg/wire"
)

// Client errors.
var (
	ErrNotReady       = errors.New("sensor not ready")
	ErrTimeout        = errors.New("request timed out")
	ErrConnectionLost = errors.New("connection lost")
	ErrBusy           = errors.New("request in flight")
)

// DefaultMaxRetries is the number of extra receive windows after a timeout.
const DefaultMaxRetries = 1

// Concurrency selects how Execute treats a caller that arrives while another
// request is in flight.
type Concurrency int

const (
	// ConcurrencyBlock waits for the outstanding request to complete.
	ConcurrencyBlock Concurrency = iota

	// ConcurrencyFailFast returns ErrBusy immediately.
	ConcurrencyFailFast
)

// String returns the policy name.
func (c Concurrency) String() string {
	switch c {
	case ConcurrencyBlock:
		return "BLOCK"
	case ConcurrencyFailFast:
		return "FAIL_FAST"
	default:
		return "UNKNOWN"
	}
}

// Readiness reports whether the sensor can accept commands.
// Implemented by *readiness.Gate.
type Readiness interface {
	IsReady() bool
}

// Config configures a Client.
type Config struct {
	// Timeout bounds each receive (zero: the link's own timeout).
	Timeout time.Duration

	// MaxRetries is the number of extra receive windows granted after a
	// receive timeout. The command itself is never resent.
	// DefaultConfig sets DefaultMaxRetries; zero disables retries.
	MaxRetries int

	// Concurrency is the policy for overlapping callers.
	Concurrency Concurrency

	// Logger is the optional logger for debug output.
	Logger *slog.Logger

	// ProtocolLogger receives decoded command/response and error events.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:     transport.DefaultTimeout,
		MaxRetries:  DefaultMaxRetries,
		Concurrency: ConcurrencyBlock,
	}
}

// Client composes a link, a codec and a readiness source.
type Client struct {
	link  transport.Link
	codec *wire.Codec
	ready Readiness

	config Config
	logger *slog.Logger
	plog   log.Logger

	// sem holds one token per in-flight request.
	sem chan struct{}
}

// New creates a client. All three collaborators are required.
func New(link transport.Link, codec *wire.Codec, ready Readiness, config Config) *Client {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		link:   link,
		codec:  codec,
		ready:  ready,
		config: config,
		logger: logger,
		plog:   log.OrNoop(config.ProtocolLogger),
		sem:    make(chan struct{}, 1),
	}
}

// Concurrency returns the client's overlap policy.
func (c *Client) Concurrency() Concurrency {
	return c.config.Concurrency
}

// Execute sends cmd and returns the decoded response. A failure status from
// the sensor is a successful exchange and is returned without error.
func (c *Client) Execute(ctx context.Context, cmd wire.Command) (wire.Response, error) {
	if err := ctx.Err(); err != nil {
		return wire.Response{}, err
	}
	if !c.ready.IsReady() {
		return wire.Response{}, fmt.Errorf("%s: %w", cmd, ErrNotReady)
	}

	if err := c.acquire(ctx); err != nil {
		return wire.Response{}, err
	}
	defer c.release()

	// Readiness may have dropped while this caller waited.
	if !c.ready.IsReady() {
		return wire.Response{}, fmt.Errorf("%s: %w", cmd, ErrNotReady)
	}
	return c.exchange(cmd)
}

func (c *Client) acquire(ctx context.Context) error {
	if c.config.Concurrency == ConcurrencyFailFast {
		select {
		case c.sem <- struct{}{}:
			return nil
		default:
			return ErrBusy
		}
	}
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	<-c.sem
}

// exchange runs one request/response pair with the timeout retry policy.
// The caller holds the in-flight token.
//
// The command is written once. A receive timeout opens a fresh receive
// window for the same request, keeping any partial reply, so a late reply is
// always paired with the command that caused it. When every window expires
// the link is left indeterminate and the caller must close it.
func (c *Client) exchange(cmd wire.Command) (wire.Response, error) {
	frame, err := c.codec.Encode(cmd)
	if err != nil {
		return wire.Response{}, err
	}

	if c.link.State() != transport.StateOpen {
		return wire.Response{}, fmt.Errorf("%s: %w: %w", cmd, ErrConnectionLost, transport.ErrNotOpen)
	}
	epoch := c.link.Epoch()
	token, _ := c.codec.Vocabulary().Token(cmd.Verb)

	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: epoch,
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:   log.MessageTypeCommand,
			Verb:   cmd.Verb.String(),
			Token:  token,
			Fields: cmd.Args,
		},
	})

	start := time.Now()
	// A send timeout may have left part of the frame on the wire, so it is
	// never retried.
	if err := c.link.SendBytes(frame); err != nil {
		err = fmt.Errorf("%s: %w: %w", cmd, ErrConnectionLost, err)
		c.logError(epoch, err, cmd)
		return wire.Response{}, err
	}

	for window := 1; ; window++ {
		raw, err := c.link.RecvUntil(c.codec.Delimiter(), c.config.Timeout)
		if err != nil {
			if errors.Is(err, transport.ErrIOTimeout) {
				if window <= c.config.MaxRetries {
					c.logger.Debug("no reply yet, waiting again", "command", cmd.String(), "window", window)
					continue
				}
				c.link.Discard()
				err = fmt.Errorf("%s: %w after %d receive window(s): %w", cmd, ErrTimeout, window, err)
			} else {
				err = fmt.Errorf("%s: %w: %w", cmd, ErrConnectionLost, err)
			}
			c.logError(epoch, err, cmd)
			return wire.Response{}, err
		}

		resp, err := c.codec.Decode(raw)
		if err != nil {
			c.link.Discard()
			err = fmt.Errorf("%s: %w", cmd, err)
			c.logError(epoch, err, cmd)
			return resp, err
		}

		rtt := time.Since(start)
		c.plog.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: epoch,
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Message: &log.MessageEvent{
				Type:      log.MessageTypeResponse,
				Verb:      cmd.Verb.String(),
				Token:     resp.Token,
				Status:    resp.Status.String(),
				Fields:    resp.Fields(),
				Attempt:   window,
				RoundTrip: &rtt,
			},
		})
		return resp, nil
	}
}

func (c *Client) logError(epoch string, err error, cmd wire.Command) {
	c.logger.Debug("command failed", "command", cmd.String(), "error", err)
	c.plog.Log(log.NewErrorEvent(epoch, log.LayerWire, err, cmd.String()))
}
