package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kswx/keyence-go/pkg/connection"
	"github.com/kswx/keyence-go/pkg/log"
)

// peer is a loopback listener that hands accepted sockets to the test.
type peer struct {
	ln    net.Listener
	conns chan net.Conn
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &peer{ln: ln, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			p.conns <- c
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return p
}

func (p *peer) port() int {
	return p.ln.Addr().(*net.TCPAddr).Port
}

func (p *peer) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-p.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func openConn(t *testing.T, p *peer, mutate func(*Config)) (*Connection, net.Conn) {
	t.Helper()
	cfg := DefaultConfig("127.0.0.1", p.port())
	cfg.Timeout = 200 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	c := NewConnection(cfg)
	require.NoError(t, c.Open(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c, p.accept(t)
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig("sensor", 8500).Validate())
	assert.ErrorIs(t, DefaultConfig("", 8500).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, DefaultConfig("sensor", 0).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, DefaultConfig("sensor", 70000).Validate(), ErrInvalidConfig)
	assert.Equal(t, "sensor:8500", DefaultConfig("sensor", 8500).Address())
}

func TestNewConnectionDefaults(t *testing.T) {
	c := NewConnection(Config{Host: "sensor", Port: 8500})
	cfg := c.Config()
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultTimeout, cfg.ConnectTimeout)
	assert.Equal(t, DefaultMaxFrameSize, cfg.MaxFrameSize)
	assert.NotNil(t, cfg.Dialer)
	assert.Equal(t, StateClosed, c.State())
	assert.Empty(t, c.Epoch())
	assert.Nil(t, c.RemoteAddr())
}

func TestOpenAndExchange(t *testing.T) {
	p := newPeer(t)
	rec := log.NewRecorder(0)
	c, srv := openConn(t, p, func(cfg *Config) { cfg.ProtocolLogger = rec })

	assert.Equal(t, StateOpen, c.State())
	assert.NotEmpty(t, c.Epoch())
	assert.NotNil(t, c.RemoteAddr())

	require.NoError(t, c.SendBytes([]byte("T2\r")))
	line, err := bufio.NewReader(srv).ReadString('\r')
	require.NoError(t, err)
	assert.Equal(t, "T2\r", line)

	_, err = srv.Write([]byte("OK,2\r"))
	require.NoError(t, err)

	frame, err := c.RecvUntil('\r', 0)
	require.NoError(t, err)
	assert.Equal(t, "OK,2\r", string(frame))

	var frames, states int
	for _, e := range rec.Events() {
		switch {
		case e.Frame != nil:
			frames++
			assert.Equal(t, c.Epoch(), e.ConnectionID)
		case e.StateChange != nil:
			states++
		}
	}
	assert.Equal(t, 2, frames)
	assert.Equal(t, 2, states)
}

func TestOpenTwice(t *testing.T) {
	p := newPeer(t)
	c, _ := openConn(t, p, nil)
	assert.ErrorIs(t, c.Open(context.Background()), ErrAlreadyOpen)
}

func TestOpenRefused(t *testing.T) {
	c := NewConnection(DefaultConfig("127.0.0.1", closedPort(t)))

	err := c.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectRefused)

	var cerr *ConnectError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 1, cerr.Attempts)
	assert.Equal(t, StateClosed, c.State())
}

func TestOpenRetriesWithPolicy(t *testing.T) {
	cfg := DefaultConfig("127.0.0.1", closedPort(t))
	cfg.Reconnect = connection.Policy{
		MaxAttempts: 3,
		Backoff: connection.BackoffConfig{
			Initial:    time.Millisecond,
			Max:        2 * time.Millisecond,
			Multiplier: 2,
		},
	}
	c := NewConnection(cfg)

	err := c.Open(context.Background())
	var cerr *ConnectError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 3, cerr.Attempts)
	assert.ErrorIs(t, err, ErrConnectRefused)
}

type stallDialer struct{}

func (stallDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestOpenTimeout(t *testing.T) {
	cfg := DefaultConfig("sensor", 8500)
	cfg.ConnectTimeout = 20 * time.Millisecond
	cfg.Dialer = stallDialer{}
	c := NewConnection(cfg)

	err := c.Open(context.Background())
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.Equal(t, StateClosed, c.State())
}

func TestRecvTimeoutKeepsPartialFrame(t *testing.T) {
	p := newPeer(t)
	c, srv := openConn(t, p, nil)

	_, err := srv.Write([]byte("OK,"))
	require.NoError(t, err)

	_, err = c.RecvUntil('\r', 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIOTimeout)
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.True(t, ioErr.Timeout())
	assert.Equal(t, StateOpen, c.State())

	_, err = srv.Write([]byte("5\r"))
	require.NoError(t, err)

	frame, err := c.RecvUntil('\r', 0)
	require.NoError(t, err)
	assert.Equal(t, "OK,5\r", string(frame))
}

func TestDiscardDropsStaleBytes(t *testing.T) {
	p := newPeer(t)
	c, srv := openConn(t, p, nil)

	_, err := srv.Write([]byte("OK,"))
	require.NoError(t, err)
	_, err = c.RecvUntil('\r', 50*time.Millisecond)
	require.ErrorIs(t, err, ErrIOTimeout)

	c.Discard()

	_, err = srv.Write([]byte("OK,7\r"))
	require.NoError(t, err)
	frame, err := c.RecvUntil('\r', 0)
	require.NoError(t, err)
	assert.Equal(t, "OK,7\r", string(frame))
}

func TestRecvOversizeFrame(t *testing.T) {
	p := newPeer(t)
	c, srv := openConn(t, p, func(cfg *Config) { cfg.MaxFrameSize = 16 })

	_, err := srv.Write([]byte("OK,0123456789abcdefghij"))
	require.NoError(t, err)

	frame, err := c.RecvUntil('\r', 0)
	require.NoError(t, err)
	assert.Len(t, frame, 16)
	assert.NotContains(t, string(frame), "\r")
}

func TestPeerCloseEndsEpoch(t *testing.T) {
	p := newPeer(t)
	c, srv := openConn(t, p, nil)
	epoch := c.Epoch()

	srv.Close()

	_, err := c.RecvUntil('\r', 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIOReset)
	assert.Equal(t, StateClosed, c.State())
	assert.Empty(t, c.Epoch())

	_, err = c.RecvUntil('\r', 0)
	assert.ErrorIs(t, err, ErrIOReset)
	assert.ErrorIs(t, c.SendBytes([]byte("T1\r")), ErrIOReset)

	// A new Open starts a new epoch.
	require.NoError(t, c.Open(context.Background()))
	p.accept(t)
	assert.NotEqual(t, epoch, c.Epoch())
}

func TestCloseInterruptsRecv(t *testing.T) {
	p := newPeer(t)
	c, _ := openConn(t, p, func(cfg *Config) { cfg.Timeout = 5 * time.Second })

	var wg sync.WaitGroup
	var recvErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, recvErr = c.RecvUntil('\r', 0)
	}()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	require.NoError(t, c.Close())
	wg.Wait()

	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, recvErr, ErrIOReset)
	assert.ErrorIs(t, recvErr, ErrConnectionClosed)
	assert.Equal(t, StateClosed, c.State())
}

func TestCloseIdempotent(t *testing.T) {
	p := newPeer(t)
	c, _ := openConn(t, p, nil)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())

	never := NewConnection(DefaultConfig("sensor", 8500))
	assert.NoError(t, never.Close())
}
