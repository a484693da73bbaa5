package sim

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kswx/keyence-go/pkg/wire"
)

// DefaultAddress listens on an ephemeral loopback port.
const DefaultAddress = "127.0.0.1:0"

// UnknownCommandCode is the error code sent for an unrecognized token.
const UnknownCommandCode = "02"

// ServerConfig configures a simulated sensor server.
type ServerConfig struct {
	// Address to listen on (default: 127.0.0.1:0).
	Address string

	// Vocabulary is the token table (default: wire.DefaultVocabulary()).
	Vocabulary *wire.Vocabulary

	// Device answers commands (default: NewDevice()).
	Device *Device

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Server accepts connections and answers commands from its Device.
type Server struct {
	config ServerConfig
	codec  *wire.Codec
	device *Device
	logger *slog.Logger

	listener net.Listener

	conns   map[net.Conn]struct{}
	connsMu sync.Mutex
	accepts atomic.Int64

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer creates a stopped server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	vocab := wire.DefaultVocabulary()
	if config.Vocabulary != nil {
		vocab = *config.Vocabulary
	}
	codec, err := wire.NewCodec(vocab)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if config.Device == nil {
		config.Device = NewDevice()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Server{
		config: config,
		codec:  codec,
		device: config.Device,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Start begins listening.
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Debug("simulated sensor listening", "addr", listener.Addr().String())
	return nil
}

// Stop closes the listener and all connections and waits for handlers.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	err := s.listener.Close()
	s.CloseConnections()
	s.wg.Wait()
	return err
}

// Device returns the simulated device.
func (s *Server) Device() *Device {
	return s.device
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Host returns the listening host.
func (s *Server) Host() string {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	return ""
}

// Port returns the listening port.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// ConnectionCount returns the number of open client connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// AcceptCount returns the number of connections accepted since Start.
func (s *Server) AcceptCount() int {
	return int(s.accepts.Load())
}

// CloseConnections drops every client connection, as a sensor reboot would.
func (s *Server) CloseConnections() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.logger.Debug("accept failed", "error", err)
			}
			continue
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()
		s.accepts.Add(1)

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	s.logger.Debug("client connected", "remote", remote)

	r := bufio.NewReader(conn)
	delim := s.codec.Delimiter()
	for {
		frame, err := r.ReadBytes(delim)
		if err != nil {
			s.logger.Debug("client disconnected", "remote", remote, "error", err)
			return
		}

		reply := s.reply(frame)
		if reply.Delay > 0 {
			time.Sleep(reply.Delay)
		}

		switch reply.Action {
		case ActionSilent:
			continue
		case ActionClose:
			s.logger.Debug("closing client on command", "remote", remote)
			return
		}

		out := reply.Raw
		if out == nil {
			out, err = s.codec.EncodeResponse(reply.Status, reply.Fields...)
			if err != nil {
				s.logger.Debug("cannot encode reply", "error", err)
				continue
			}
		}
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func (s *Server) reply(frame []byte) Reply {
	cmd, err := s.codec.DecodeCommand(frame)
	if err != nil {
		token := bytes.Trim(frame, "\r\n")
		if i := bytes.IndexByte(token, s.codec.Vocabulary().Separator); i >= 0 {
			token = token[:i]
		}
		return Fail(string(token), UnknownCommandCode)
	}

	reply := s.device.Handle(cmd)
	if reply.Status == wire.StatusFailure && len(reply.Fields) > 0 && reply.Fields[0] == cmd.Verb.String() {
		// Echo the wire token, not the verb name.
		if tok, ok := s.codec.Vocabulary().Token(cmd.Verb); ok {
			reply.Fields = append([]string{tok}, reply.Fields[1:]...)
		}
	}
	return reply
}
