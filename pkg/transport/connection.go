package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kswx/keyence-go/pkg/connection"
	"github.com/kswx/keyence-go/pkg/log"
)

// Connection states.
type State int32

const (
	// StateClosed indicates no socket.
	StateClosed State = iota

	// StateConnecting indicates an open in progress.
	StateConnecting

	// StateOpen indicates an established socket.
	StateOpen
)

// String returns the connection state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// Transport defaults.
const (
	// DefaultTimeout is the send/receive deadline.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxFrameSize bounds a single received frame.
	DefaultMaxFrameSize = 4096
)

// Config configures a Connection. It is passed by value and never mutated
// after Open.
type Config struct {
	// Host and Port of the sensor.
	Host string
	Port int

	// Timeout is the hard deadline for each send and receive (default: 1s).
	Timeout time.Duration

	// ConnectTimeout bounds a single dial attempt (default: Timeout).
	ConnectTimeout time.Duration

	// MaxFrameSize bounds RecvUntil (default: 4096).
	MaxFrameSize int

	// Reconnect optionally retries refused or timed-out dials within one Open.
	Reconnect connection.Policy

	// Dialer opens the socket (default: *net.Dialer).
	Dialer Dialer

	// Logger is the optional logger for debug output.
	Logger *slog.Logger

	// ProtocolLogger receives frame and state events (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default transport configuration for addr.
func DefaultConfig(host string, port int) Config {
	return Config{
		Host:         host,
		Port:         port,
		Timeout:      DefaultTimeout,
		MaxFrameSize: DefaultMaxFrameSize,
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the fields Open depends on.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.Timeout < 0 || c.ConnectTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

// link is one open epoch: a socket plus its read buffer.
type link struct {
	conn    net.Conn
	reader  *bufio.Reader
	pending []byte
	epoch   string
	closed  atomic.Bool
}

// Connection owns exactly one socket to the sensor.
type Connection struct {
	config Config
	logger *slog.Logger
	plog   log.Logger

	state atomic.Int32

	// mu guards cur. I/O runs without mu so Close can interrupt it.
	mu  sync.Mutex
	cur *link

	// ioMu serializes I/O so a frame is never interleaved.
	ioMu sync.Mutex
}

// NewConnection creates a closed connection.
func NewConnection(config Config) *Connection {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = config.Timeout
	}
	if config.MaxFrameSize <= 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	if config.Dialer == nil {
		config.Dialer = &net.Dialer{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Connection{
		config: config,
		logger: logger,
		plog:   log.OrNoop(config.ProtocolLogger),
	}
	c.state.Store(int32(StateClosed))
	return c
}

// Config returns the configuration the connection was built with.
func (c *Connection) Config() Config {
	return c.config
}

// State returns the current connection state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Epoch returns the ID of the current open epoch, or "" when not open.
func (c *Connection) Epoch() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return ""
	}
	return c.cur.epoch
}

// RemoteAddr returns the sensor address of the open socket, or nil.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil
	}
	return c.cur.conn.RemoteAddr()
}

// Open dials the sensor. With a reconnect policy, refused and timed-out dials
// are retried with backoff before Open gives up.
func (c *Connection) Open(ctx context.Context) error {
	if err := c.config.Validate(); err != nil {
		return err
	}
	if !c.state.CompareAndSwap(int32(StateClosed), int32(StateConnecting)) {
		return ErrAlreadyOpen
	}
	c.notifyStateChange("", StateClosed, StateConnecting, "open")

	addr := c.config.Address()
	var conn net.Conn
	attempts, err := connection.Retry(ctx, c.config.Reconnect, isRetryableDial,
		func(attempt int, delay time.Duration, err error) {
			c.logger.Debug("dial failed, retrying", "addr", addr, "attempt", attempt, "delay", delay, "error", err)
		},
		func(ctx context.Context) error {
			dctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
			defer cancel()
			var derr error
			conn, derr = c.config.Dialer.DialContext(dctx, "tcp", addr)
			return derr
		})
	if err != nil {
		cerr := &ConnectError{Addr: addr, Kind: classifyDial(err), Attempts: attempts, Err: err}
		c.state.Store(int32(StateClosed))
		c.notifyStateChange("", StateConnecting, StateClosed, cerr.Error())
		return cerr
	}

	l := &link{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, c.config.MaxFrameSize),
		epoch:  uuid.NewString(),
	}

	c.ioMu.Lock()
	c.mu.Lock()
	c.cur = l
	c.mu.Unlock()
	c.ioMu.Unlock()

	c.state.Store(int32(StateOpen))
	c.logger.Debug("connection open", "addr", addr, "epoch", l.epoch, "attempts", attempts)
	c.notifyStateChange(l.epoch, StateConnecting, StateOpen, "")
	return nil
}

// Close closes the socket. It is idempotent, safe from any state, and
// interrupts a pending receive.
func (c *Connection) Close() error {
	c.mu.Lock()
	l := c.cur
	c.cur = nil
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	return c.closeLink(l, "closed by client")
}

// SendBytes writes buf with the configured deadline.
func (c *Connection) SendBytes(buf []byte) error {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	l, err := c.openLink()
	if err != nil {
		return err
	}

	if err := l.conn.SetWriteDeadline(time.Now().Add(c.config.Timeout)); err != nil {
		return c.ioFailure(l, "write", err)
	}
	defer l.conn.SetWriteDeadline(time.Time{})

	for written := 0; written < len(buf); {
		n, err := l.conn.Write(buf[written:])
		if err != nil {
			return c.ioFailure(l, "write", err)
		}
		written += n
	}

	c.plog.Log(c.frameEvent(l, log.DirectionOut, buf))
	return nil
}

// RecvUntil reads up to and including delim. It fails with ErrIOTimeout if
// the frame is not complete within timeout (zero means the configured
// timeout). If MaxFrameSize bytes arrive without delim, the bytes read so far
// are returned without error and the caller decides how to treat them.
func (c *Connection) RecvUntil(delim byte, timeout time.Duration) ([]byte, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	l, err := c.openLink()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = c.config.Timeout
	}

	if err := l.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, c.ioFailure(l, "read", err)
	}
	defer l.conn.SetReadDeadline(time.Time{})

	for {
		chunk, err := l.reader.ReadSlice(delim)
		l.pending = append(l.pending, chunk...)

		switch {
		case err == nil:
			return c.takePending(l), nil
		case errors.Is(err, bufio.ErrBufferFull):
			if len(l.pending) >= c.config.MaxFrameSize {
				return c.takePending(l), nil
			}
		default:
			return nil, c.ioFailure(l, "read", err)
		}
	}
}

// Discard drops buffered and partially received bytes of the current epoch.
func (c *Connection) Discard() {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	c.mu.Lock()
	l := c.cur
	c.mu.Unlock()
	if l == nil {
		return
	}
	if n := len(l.pending) + l.reader.Buffered(); n > 0 {
		c.logger.Debug("discarding buffered bytes", "epoch", l.epoch, "bytes", n)
	}
	l.pending = nil
	_, _ = l.reader.Discard(l.reader.Buffered())
}

func (c *Connection) openLink() (*link, error) {
	c.mu.Lock()
	l := c.cur
	c.mu.Unlock()
	if l == nil || c.State() != StateOpen {
		return nil, &IOError{Op: "io", Kind: ErrIOReset, Err: ErrNotOpen}
	}
	return l, nil
}

func (c *Connection) takePending(l *link) []byte {
	out := l.pending
	l.pending = nil
	c.plog.Log(c.frameEvent(l, log.DirectionIn, out))
	return out
}

// ioFailure classifies an I/O error. Timeouts keep the link open; anything
// else ends the epoch.
func (c *Connection) ioFailure(l *link, op string, err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &IOError{Op: op, Kind: ErrIOTimeout, Err: err}
	}

	if l.closed.Load() {
		return &IOError{Op: op, Kind: ErrIOReset, Err: ErrConnectionClosed}
	}

	c.mu.Lock()
	if c.cur == l {
		c.cur = nil
	}
	c.mu.Unlock()

	reason := err.Error()
	if errors.Is(err, io.EOF) {
		reason = "closed by peer"
	}
	_ = c.closeLink(l, reason)
	return &IOError{Op: op, Kind: ErrIOReset, Err: err}
}

func (c *Connection) closeLink(l *link, reason string) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := l.conn.Close()

	prev := State(c.state.Swap(int32(StateClosed)))
	c.logger.Debug("connection closed", "epoch", l.epoch, "reason", reason)
	c.notifyStateChange(l.epoch, prev, StateClosed, reason)
	return err
}

func (c *Connection) frameEvent(l *link, dir log.Direction, data []byte) log.Event {
	e := log.NewFrameEvent(l.epoch, dir, data)
	e.RemoteAddr = c.config.Address()
	return e
}

func (c *Connection) notifyStateChange(epoch string, oldState, newState State, reason string) {
	e := log.NewStateEvent(epoch, log.LayerTransport, log.StateEntityConnection, oldState.String(), newState.String(), reason)
	e.RemoteAddr = c.config.Address()
	c.plog.Log(e)
}

// classifyDial maps a dial error onto the connect error kinds.
func classifyDial(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrConnectTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ErrConnectTimeout
	}
	return ErrConnectRefused
}

// isRetryableDial reports whether a dial error may succeed on a later attempt.
func isRetryableDial(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return classifyDial(err) == ErrConnectTimeout
}
