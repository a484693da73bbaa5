package session

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/kswx/keyence-go/pkg/client"
	"github.com/kswx/keyence-go/pkg/connection"
	"github.com/kswx/keyence-go/pkg/pose"
	"github.com/kswx/keyence-go/pkg/transport"
	"github.com/kswx/keyence-go/pkg/wire"
)

// DefaultPort is the sensor's command port.
const DefaultPort = 8500

// Config is the decoded host parameter tree.
type Config struct {
	// Host and Port of the sensor.
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	// Timeout bounds each send and receive (default: 1s).
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// ConnectTimeout bounds each dial (default: Timeout).
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`

	// WaitReady makes Activate wait up to this long for the ready signal.
	// Zero activates without waiting.
	WaitReady time.Duration `mapstructure:"wait_ready" yaml:"wait_ready"`

	// Retries is the number of extra receive windows after a receive
	// timeout (default: 1). Commands are never resent.
	Retries int `mapstructure:"retries" yaml:"retries"`

	// FailFast makes overlapping calls fail with ErrBusy instead of waiting.
	FailFast bool `mapstructure:"fail_fast" yaml:"fail_fast"`

	// ProtocolLog is the path of a CBOR protocol log file (optional).
	ProtocolLog string `mapstructure:"protocol_log" yaml:"protocol_log"`

	// Reconnect retries refused or timed-out dials when opening.
	Reconnect connection.Policy `mapstructure:"reconnect" yaml:"reconnect"`

	// Protocol is the sensor's token table.
	Protocol ProtocolConfig `mapstructure:"protocol" yaml:"protocol"`

	// Pose configures pose resolution and the robot base calibration.
	Pose pose.Config `mapstructure:"pose" yaml:"pose"`
}

// ProtocolConfig overrides entries of the default token table. Empty fields
// keep the default.
type ProtocolConfig struct {
	Delimiter    string `mapstructure:"delimiter" yaml:"delimiter"`
	Separator    string `mapstructure:"separator" yaml:"separator"`
	MaxFrameSize int    `mapstructure:"max_frame_size" yaml:"max_frame_size"`

	Trigger    string `mapstructure:"trigger" yaml:"trigger"`
	TriggerObj string `mapstructure:"trigger_obj" yaml:"trigger_obj"`
	Pose       string `mapstructure:"pose" yaml:"pose"`

	StatusOK    string `mapstructure:"status_ok" yaml:"status_ok"`
	StatusError string `mapstructure:"status_error" yaml:"status_error"`

	// TriggerObjArgs are sent with the trigger_obj command, for firmware
	// that takes a detection filter.
	TriggerObjArgs []string `mapstructure:"trigger_obj_args" yaml:"trigger_obj_args"`
}

// DefaultConfig returns the configuration used for keys the parameter tree
// does not set.
func DefaultConfig() Config {
	return Config{
		Port:    DefaultPort,
		Timeout: transport.DefaultTimeout,
		Retries: client.DefaultMaxRetries,
		Pose:    pose.DefaultConfig(),
	}
}

// DecodeParams decodes a host parameter tree on top of DefaultConfig and
// validates the result. Values may be strings, as in a property tree.
// Durations accept a number of seconds or a Go duration string.
func DecodeParams(params map[string]any) (Config, []string, error) {
	cfg := DefaultConfig()

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			durationHook,
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Config{}, nil, err
	}
	if err := decoder.Decode(params); err != nil {
		return Config{}, nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}

	unused := append([]string(nil), md.Unused...)
	sort.Strings(unused)
	return cfg, unused, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook reads numbers as seconds and strings as either seconds or a
// Go duration.
func durationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}

	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if from == durationType {
			return data, nil
		}
		return time.Duration(v.Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(v.Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return seconds(v.Float()), nil
	case reflect.String:
		s := strings.TrimSpace(v.String())
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return seconds(f), nil
		}
		return time.ParseDuration(s)
	}
	return data, nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.ConnectTimeout < 0 || c.WaitReady < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%w: retries must not be negative", ErrInvalidConfig)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("%w: reconnect.max_attempts must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Vocabulary(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Pose.Validate(); err != nil {
		return fmt.Errorf("%w: pose: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Vocabulary returns the token table with the protocol overrides applied.
func (c Config) Vocabulary() (wire.Vocabulary, error) {
	return c.Protocol.Vocabulary()
}

// Vocabulary applies the overrides to the default token table.
func (p ProtocolConfig) Vocabulary() (wire.Vocabulary, error) {
	v := wire.DefaultVocabulary()

	set := func(dst *string, val string) {
		if val != "" {
			*dst = val
		}
	}
	for verb, val := range map[wire.Verb]string{
		wire.VerbTrigger:    p.Trigger,
		wire.VerbTriggerObj: p.TriggerObj,
		wire.VerbPose:       p.Pose,
	} {
		if val != "" {
			v.Commands[verb] = val
		}
	}
	set(&v.StatusOK, p.StatusOK)
	set(&v.StatusError, p.StatusError)

	if p.Delimiter != "" {
		b, err := parseByte(p.Delimiter)
		if err != nil {
			return wire.Vocabulary{}, fmt.Errorf("protocol.delimiter: %w", err)
		}
		v.Delimiter = b
	}
	if p.Separator != "" {
		b, err := parseByte(p.Separator)
		if err != nil {
			return wire.Vocabulary{}, fmt.Errorf("protocol.separator: %w", err)
		}
		v.Separator = b
	}
	if p.MaxFrameSize != 0 {
		v.MaxFrameSize = p.MaxFrameSize
	}

	if err := v.Validate(); err != nil {
		return wire.Vocabulary{}, err
	}
	return v, nil
}

// parseByte reads a single-byte parameter: a literal character, an escape
// such as \r, or a control name such as CR.
func parseByte(s string) (byte, error) {
	switch strings.ToUpper(s) {
	case "CR", `\R`:
		return '\r', nil
	case "LF", `\N`:
		return '\n', nil
	case "TAB", `\T`:
		return '\t', nil
	case "COMMA":
		return ',', nil
	case "SPACE":
		return ' ', nil
	}
	if len(s) == 1 {
		return s[0], nil
	}
	return 0, fmt.Errorf("%q is not a single byte", s)
}

// TransportConfig returns the connection settings.
func (c Config) TransportConfig() transport.Config {
	tc := transport.DefaultConfig(c.Host, c.Port)
	tc.Timeout = c.Timeout
	tc.ConnectTimeout = c.ConnectTimeout
	tc.Reconnect = c.Reconnect
	if c.Protocol.MaxFrameSize > 0 {
		tc.MaxFrameSize = c.Protocol.MaxFrameSize
	}
	return tc
}

// ClientConfig returns the request policy.
func (c Config) ClientConfig() client.Config {
	cc := client.DefaultConfig()
	cc.Timeout = c.Timeout
	cc.MaxRetries = c.Retries
	if c.FailFast {
		cc.Concurrency = client.ConcurrencyFailFast
	}
	return cc
}
