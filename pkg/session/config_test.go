package session

import (
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kswx/keyence-go/pkg/client"
	"github.com/kswx/keyence-go/pkg/wire"
)

func TestDecodeParamsDefaults(t *testing.T) {
	cfg, unused, err := DecodeParams(map[string]any{"host": "127.0.0.1"})
	require.NoError(t, err)
	assert.Empty(t, unused)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, client.DefaultMaxRetries, cfg.Retries)
	assert.False(t, cfg.FailFast)
	assert.Equal(t, 6, cfg.Pose.FieldsPerObject)
	assert.True(t, cfg.Pose.Calibration.IsIdentity())

	vocab, err := cfg.Vocabulary()
	require.NoError(t, err)
	assert.Equal(t, wire.DefaultVocabulary(), vocab)
}

func TestDecodeParamsPropertyTreeStrings(t *testing.T) {
	params := map[string]any{
		"host":            "10.0.0.5",
		"port":            "1000",
		"timeout":         "0.5",
		"connect_timeout": "2s",
		"wait_ready":      "250ms",
		"retries":         "0",
		"fail_fast":       "true",
		"reconnect": map[string]any{
			"max_attempts": "3",
			"initial":      "0.1",
			"max":          "1s",
			"multiplier":   "1.5",
		},
		"protocol": map[string]any{
			"delimiter":        "CR",
			"separator":        ";",
			"trigger":          "TA",
			"trigger_obj":      "TB",
			"pose":             "PQ",
			"trigger_obj_args": "1,2",
		},
		"pose": map[string]any{
			"max_coordinate": "5000",
			"calibration": map[string]any{
				"x":     "100",
				"y":     "-50",
				"yaw":   "90",
				"scale": "1",
			},
		},
		"bundle_name": "vision",
	}

	cfg, unused, err := DecodeParams(params)
	require.NoError(t, err)
	assert.Equal(t, []string{"bundle_name"}, unused)

	assert.Equal(t, 1000, cfg.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.WaitReady)
	assert.Equal(t, 0, cfg.Retries)
	assert.True(t, cfg.FailFast)

	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Reconnect.Backoff.Initial)
	assert.Equal(t, time.Second, cfg.Reconnect.Backoff.Max)
	assert.Equal(t, 1.5, cfg.Reconnect.Backoff.Multiplier)

	assert.Equal(t, []string{"1", "2"}, cfg.Protocol.TriggerObjArgs)
	assert.Equal(t, 5000.0, cfg.Pose.MaxCoordinate)
	assert.Equal(t, 6, cfg.Pose.FieldsPerObject)
	assert.Equal(t, 90.0, cfg.Pose.Calibration.Yaw)
	assert.Equal(t, r3.Vector{X: 100, Y: -50}, cfg.Pose.Calibration.Translation)

	vocab, err := cfg.Vocabulary()
	require.NoError(t, err)
	assert.Equal(t, byte('\r'), vocab.Delimiter)
	assert.Equal(t, byte(';'), vocab.Separator)
	assert.Equal(t, "TA", vocab.Commands[wire.VerbTrigger])
	assert.Equal(t, "TB", vocab.Commands[wire.VerbTriggerObj])
	assert.Equal(t, "PQ", vocab.Commands[wire.VerbPose])

	cc := cfg.ClientConfig()
	assert.Equal(t, client.ConcurrencyFailFast, cc.Concurrency)
	assert.Equal(t, 0, cc.MaxRetries)

	tc := cfg.TransportConfig()
	assert.Equal(t, "10.0.0.5:1000", tc.Address())
	assert.Equal(t, 3, tc.Reconnect.MaxAttempts)
}

func TestDecodeParamsNativeTypes(t *testing.T) {
	cfg, _, err := DecodeParams(map[string]any{
		"host":       "sensor",
		"port":       8501,
		"timeout":    2,
		"wait_ready": 1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 8501, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.WaitReady)
}

func TestDecodeParamsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"missing host", map[string]any{}},
		{"port out of range", map[string]any{"host": "h", "port": 70000}},
		{"port not a number", map[string]any{"host": "h", "port": "abc"}},
		{"zero timeout", map[string]any{"host": "h", "timeout": 0}},
		{"bad duration", map[string]any{"host": "h", "timeout": "soon"}},
		{"negative retries", map[string]any{"host": "h", "retries": -1}},
		{"long delimiter", map[string]any{"host": "h", "protocol": map[string]any{"delimiter": "ab"}}},
		{"delimiter equals separator", map[string]any{"host": "h", "protocol": map[string]any{"delimiter": ","}}},
		{"too few pose fields", map[string]any{"host": "h", "pose": map[string]any{"fields_per_object": 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeParams(tt.params)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseByte(t *testing.T) {
	tests := map[string]byte{
		"CR":    '\r',
		`\r`:    '\r',
		"lf":    '\n',
		`\n`:    '\n',
		"TAB":   '\t',
		"comma": ',',
		";":     ';',
		"\r":    '\r',
	}
	for in, want := range tests {
		got, err := parseByte(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseByte("xy")
	assert.Error(t, err)
}
