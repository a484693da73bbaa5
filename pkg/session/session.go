// Package session is the device facade the host plugin drives.
//
// The host mounts the session with its parameter tree, activates it, calls
// the published operations and finally deactivates and unmounts it. The
// session owns the connection for the whole mounted lifetime and is the only
// place that opens or closes it.
//
// After the link is lost every operation fails with ErrConnectionLost until
// Reconnect or a new Mount. A request that times out leaves the link in the
// same state, since its reply may still arrive. The session never reconnects
// on its own.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/kswx/keyence-go/pkg/client"
	"github.com/kswx/keyence-go/pkg/log"
	"github.com/kswx/keyence-go/pkg/pose"
	"github.com/kswx/keyence-go/pkg/readiness"
	"github.com/kswx/keyence-go/pkg/transport"
	"github.com/kswx/keyence-go/pkg/wire"
)

// State is the host lifecycle state.
type State int32

const (
	StateUnmounted State = iota
	StateMounted
	StateActive
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "UNMOUNTED"
	case StateMounted:
		return "MOUNTED"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Options are fixed for the lifetime of a Session.
type Options struct {
	// Logger is the optional logger for lifecycle output.
	Logger *slog.Logger

	// ProtocolLogger receives protocol events in addition to the protocol_log
	// file, if one is configured.
	ProtocolLogger log.Logger

	// Dialer overrides the socket dialer (tests).
	Dialer transport.Dialer
}

// Detection is the result of the last trigger.
type Detection struct {
	// Epoch is the connection epoch the trigger ran in.
	Epoch string

	// Count is the number of detected objects. It is -1 after a plain
	// trigger, which does not report detections.
	Count int

	// At is when the trigger completed.
	At time.Time
}

// Known reports whether the object count was reported by the sensor.
func (d Detection) Known() bool {
	return d.Count >= 0
}

// Status is a point-in-time snapshot of the session.
type Status struct {
	State      State
	Connection transport.State
	Readiness  readiness.State
	Epoch      string
	Address    string
	Lost       bool

	// Detection is nil until a trigger succeeded in the current epoch.
	Detection *Detection
}

// Session implements the published sensor operations.
type Session struct {
	opts   Options
	logger *slog.Logger
	gate   *readiness.Gate

	// plog is swapped on Mount and Unmount and read without mu.
	plog atomic.Pointer[log.MultiLogger]

	mu        sync.Mutex
	state     State
	config    Config
	conn      *transport.Connection
	client    *client.Client
	resolver  *pose.Resolver
	fileLog   *log.FileLogger
	lost      bool
	detection *Detection
}

// New creates an unmounted session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Session{
		opts:   opts,
		logger: logger,
		gate:   readiness.NewGate(),
	}
	s.plog.Store(log.NewMultiLogger(opts.ProtocolLogger))
	return s
}

// Mount validates params and opens the connection.
func (s *Session) Mount(ctx context.Context, params map[string]any) error {
	cfg, unused, err := DecodeParams(params)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnmounted {
		return ErrAlreadyMounted
	}
	if len(unused) > 0 {
		s.logger.Debug("ignoring unknown parameters", "keys", unused)
	}

	if err := s.build(cfg); err != nil {
		return err
	}
	if err := s.conn.Open(ctx); err != nil {
		return multierr.Append(fmt.Errorf("mount: %w", err), s.teardown())
	}

	s.setState(StateMounted, "mount")
	s.logger.Info("session mounted", "addr", s.conn.Config().Address(), "epoch", s.conn.Epoch())
	return nil
}

// Activate accepts operations. A non-nil params tree is validated again and
// replaces the mounted configuration if it differs. A closed connection is
// reopened. With wait_ready set, Activate waits for the ready signal.
func (s *Session) Activate(ctx context.Context, params map[string]any) error {
	var cfg *Config
	if params != nil {
		decoded, _, err := DecodeParams(params)
		if err != nil {
			return err
		}
		cfg = &decoded
	}

	s.mu.Lock()
	switch s.state {
	case StateUnmounted:
		s.mu.Unlock()
		return ErrNotMounted
	case StateActive:
		s.mu.Unlock()
		return nil
	}

	if cfg != nil && !reflect.DeepEqual(*cfg, s.config) {
		s.logger.Info("configuration changed, rebuilding connection")
		if err := multierr.Append(s.teardown(), s.build(*cfg)); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("activate: %w", err)
		}
	}
	if s.conn.State() != transport.StateOpen {
		s.gate.Reset()
		s.detection = nil
		if err := s.conn.Open(ctx); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("activate: %w", err)
		}
	}
	s.lost = false
	waitReady := s.config.WaitReady
	s.mu.Unlock()

	if waitReady > 0 {
		wctx, cancel := context.WithTimeout(ctx, waitReady)
		err := s.gate.Wait(wctx)
		cancel()
		if err != nil {
			return fmt.Errorf("activate: %w after %v: %w", client.ErrNotReady, waitReady, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateMounted {
		return ErrNotMounted
	}
	s.setState(StateActive, "activate")
	return nil
}

// Deactivate stops accepting operations and closes the connection. A
// pending request is interrupted and fails with ErrConnectionLost.
func (s *Session) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return nil
	}
	err := s.closeConn("deactivate")
	s.setState(StateMounted, "deactivate")
	return err
}

// Unmount closes everything. It is safe from any state.
func (s *Session) Unmount() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUnmounted {
		return nil
	}
	err := s.teardown()
	s.setState(StateUnmounted, "unmount")
	return err
}

// Reconnect reopens the connection after a loss. Readiness must be signaled
// again before operations succeed.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUnmounted {
		return ErrNotMounted
	}
	err := s.closeConn("reconnect")
	if oerr := s.conn.Open(ctx); oerr != nil {
		return multierr.Append(fmt.Errorf("reconnect: %w", oerr), err)
	}
	s.lost = false
	s.logger.Info("reconnected", "epoch", s.conn.Epoch())
	return err
}

// OnHardwareReady is the entry point for the hardware readiness notifier.
// It only updates the readiness gate.
func (s *Session) OnHardwareReady(ready bool) {
	prev := s.gate.SetReady(ready)
	if next := s.gate.State(); prev != next {
		s.plog.Load().Log(log.NewStateEvent("", log.LayerSession, log.StateEntityReadiness,
			prev.String(), next.String(), "hardware signal"))
	}
}

// TriggerImage captures an image. Detection data is not reported, so the
// object count of the trigger is unknown.
func (s *Session) TriggerImage(ctx context.Context) error {
	_, epoch, err := s.execute(ctx, wire.NewCommand(wire.VerbTrigger))
	if err != nil {
		return err
	}
	s.recordDetection(epoch, -1)
	return nil
}

// TriggerImageObj captures an image and returns the number of detected
// objects.
func (s *Session) TriggerImageObj(ctx context.Context) (int, error) {
	s.mu.Lock()
	args := s.config.Protocol.TriggerObjArgs
	s.mu.Unlock()

	resp, epoch, err := s.execute(ctx, wire.NewCommand(wire.VerbTriggerObj, args...))
	if err != nil {
		return 0, err
	}

	fields := resp.Fields()
	if len(fields) == 0 {
		return 0, fmt.Errorf("%s: %w: missing object count", wire.VerbTriggerObj, wire.ErrMalformedFrame)
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil || count < 0 {
		return 0, fmt.Errorf("%s: %w: invalid object count %q", wire.VerbTriggerObj, wire.ErrMalformedFrame, fields[0])
	}

	s.recordDetection(epoch, count)
	return count, nil
}

// GetObjectPose fetches the pose of the first detected object in frame.
// It requires a trigger earlier in the same connection epoch.
func (s *Session) GetObjectPose(ctx context.Context, frame pose.FrameID) (pose.Pose, error) {
	poses, err := s.GetObjectPoses(ctx, frame)
	if err != nil {
		return pose.Pose{}, err
	}
	return poses[0], nil
}

// GetObjectPoses fetches the poses of all detected objects in frame. It
// returns ErrNoObject instead of an empty result.
func (s *Session) GetObjectPoses(ctx context.Context, frame pose.FrameID) ([]pose.Pose, error) {
	s.mu.Lock()
	if err := s.checkActive(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	resolver := s.resolver
	det := s.detection
	epoch := s.conn.Epoch()
	s.mu.Unlock()

	if !resolver.HasFrame(frame) {
		return nil, fmt.Errorf("%w: %d", pose.ErrUnknownFrame, int(frame))
	}
	if det == nil || det.Epoch != epoch {
		return nil, fmt.Errorf("%w: no trigger in this connection", ErrNoObject)
	}
	if det.Count == 0 {
		return nil, fmt.Errorf("%w: last trigger detected no objects", ErrNoObject)
	}

	resp, _, err := s.execute(ctx, wire.NewCommand(wire.VerbPose))
	if err != nil {
		return nil, err
	}
	poses, err := resolver.Resolve(resp, frame)
	if err != nil {
		return nil, err
	}
	if len(poses) == 0 {
		return nil, fmt.Errorf("%w: sensor returned no poses", ErrNoObject)
	}
	return poses, nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:     s.state,
		Readiness: s.gate.State(),
		Lost:      s.lost,
	}
	if s.conn != nil {
		st.Connection = s.conn.State()
		st.Epoch = s.conn.Epoch()
		st.Address = s.conn.Config().Address()
	}
	if s.detection != nil && s.detection.Epoch == st.Epoch {
		d := *s.detection
		st.Detection = &d
	}
	return st
}

// Config returns the active configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// execute runs cmd through the client without holding mu, so Deactivate can
// close the connection underneath it.
func (s *Session) execute(ctx context.Context, cmd wire.Command) (wire.Response, string, error) {
	s.mu.Lock()
	if err := s.checkActive(); err != nil {
		s.mu.Unlock()
		return wire.Response{}, "", err
	}
	c := s.client
	epoch := s.conn.Epoch()
	s.mu.Unlock()

	resp, err := c.Execute(ctx, cmd)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrConnectionLost):
			s.markLost(epoch, err, "connection lost")
		case errors.Is(err, client.ErrTimeout):
			// A late reply would answer the next command.
			s.markLost(epoch, err, "no reply within timeout")
		}
		return resp, epoch, err
	}
	if resp.Status == wire.StatusFailure {
		return resp, epoch, &CommandError{Verb: cmd.Verb, Code: resp.ErrorCode()}
	}
	return resp, epoch, nil
}

// checkActive must be called with mu held.
func (s *Session) checkActive() error {
	if s.state != StateActive {
		return ErrNotActive
	}
	if s.lost {
		return fmt.Errorf("%w: reconnect required", ErrConnectionLost)
	}
	return nil
}

// markLost tears down the link of epoch after a loss or an unanswered
// request. A loss caused by Deactivate or a newer epoch is ignored.
func (s *Session) markLost(epoch string, cause error, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive || s.lost {
		return
	}
	if cur := s.conn.Epoch(); cur != "" && cur != epoch {
		return
	}

	s.logger.Warn("closing connection", "reason", reason, "epoch", epoch, "error", cause)
	s.plog.Load().Log(log.NewErrorEvent(epoch, log.LayerSession, cause, reason))
	if err := s.closeConn(reason); err != nil {
		s.logger.Debug("close after loss failed", "error", err)
	}
	s.lost = true
}

func (s *Session) recordDetection(epoch string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detection = &Detection{Epoch: epoch, Count: count, At: time.Now()}
}

// build creates the connection, client and resolver for cfg. Called with
// mu held and no connection open.
func (s *Session) build(cfg Config) error {
	vocab, err := cfg.Vocabulary()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	codec, err := wire.NewCodec(vocab)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var fileLog *log.FileLogger
	if cfg.ProtocolLog != "" {
		fileLog, err = log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
	}
	plog := log.NewMultiLogger(s.opts.ProtocolLogger, fileLogger(fileLog))

	tc := cfg.TransportConfig()
	tc.Dialer = s.opts.Dialer
	tc.Logger = s.logger
	tc.ProtocolLogger = plog
	conn := transport.NewConnection(tc)

	cc := cfg.ClientConfig()
	cc.Logger = s.logger
	cc.ProtocolLogger = plog

	s.config = cfg
	s.conn = conn
	s.client = client.New(conn, codec, s.gate, cc)
	s.resolver = pose.NewResolver(cfg.Pose)
	s.fileLog = fileLog
	s.plog.Store(plog)
	s.lost = false
	s.detection = nil
	return nil
}

// fileLogger avoids storing a typed nil in the logger list.
func fileLogger(f *log.FileLogger) log.Logger {
	if f == nil {
		return nil
	}
	return f
}

// teardown closes the connection and the protocol log. Called with mu held.
func (s *Session) teardown() error {
	var err error
	if s.conn != nil {
		err = multierr.Append(err, s.closeConn("teardown"))
	}
	if s.fileLog != nil {
		err = multierr.Append(err, s.fileLog.Close())
		s.fileLog = nil
	}
	s.plog.Store(log.NewMultiLogger(s.opts.ProtocolLogger))
	s.lost = false
	s.detection = nil
	return err
}

// closeConn closes the connection and resets readiness. Called with mu held.
func (s *Session) closeConn(reason string) error {
	err := s.conn.Close()
	if prev := s.gate.Reset(); prev != readiness.StateUnknown {
		s.plog.Load().Log(log.NewStateEvent("", log.LayerSession, log.StateEntityReadiness,
			prev.String(), readiness.StateUnknown.String(), reason))
	}
	s.detection = nil
	return err
}

// setState must be called with mu held.
func (s *Session) setState(next State, reason string) {
	prev := s.state
	s.state = next
	s.plog.Load().Log(log.NewStateEvent("", log.LayerSession, log.StateEntitySession,
		prev.String(), next.String(), reason))
}
