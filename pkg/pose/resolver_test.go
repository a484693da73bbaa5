package pose_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kswx/keyence-go/pkg/pose"
	"github.com/kswx/keyence-go/pkg/wire"
)

func response(payload string) wire.Response {
	return wire.Response{Status: wire.StatusSuccess, Token: "OK", Payload: []byte(payload)}
}

func TestResolveSingleObjectRobotBase(t *testing.T) {
	r := pose.NewResolver(pose.DefaultConfig())

	poses, err := r.Resolve(response("10.0,20.0,0.0,0.0,0.0,90.0"), pose.FrameRobotBase)
	require.NoError(t, err)
	require.Len(t, poses, 1)

	p := poses[0]
	assert.Equal(t, pose.FrameRobotBase, p.Frame)
	assert.Equal(t, [6]float64{10, 20, 0, 0, 0, 90}, p.Values())
}

func TestResolveObjectCount(t *testing.T) {
	r := pose.NewResolver(pose.DefaultConfig())

	for n := 0; n <= 4; n++ {
		t.Run(fmt.Sprintf("%d objects", n), func(t *testing.T) {
			fields := make([]string, 0, n*6)
			for i := 0; i < n; i++ {
				fields = append(fields, "1", "2", "3", "4", "5", fmt.Sprint(i))
			}

			poses, err := r.Resolve(response(strings.Join(fields, ",")), pose.FrameSensor)
			require.NoError(t, err)
			assert.Len(t, poses, n)
			for i, p := range poses {
				assert.Equal(t, float64(i), p.Orientation.Z)
				assert.Equal(t, pose.FrameSensor, p.Frame)
			}
		})
	}
}

func TestResolveFieldCountMismatch(t *testing.T) {
	r := pose.NewResolver(pose.DefaultConfig())

	for _, payload := range []string{"1", "1,2,3,4,5", "1,2,3,4,5,6,7"} {
		_, err := r.Resolve(response(payload), pose.FrameSensor)
		assert.ErrorIs(t, err, pose.ErrFieldCountMismatch, payload)
	}
}

func TestResolveCustomFieldsPerObject(t *testing.T) {
	cfg := pose.DefaultConfig()
	cfg.FieldsPerObject = 7
	r := pose.NewResolver(cfg)
	assert.Equal(t, 7, r.FieldsPerObject())

	poses, err := r.Resolve(response("1,2,3,4,5,6,99,7,8,9,10,11,12,99"), pose.FrameSensor)
	require.NoError(t, err)
	require.Len(t, poses, 2)
	assert.Equal(t, [6]float64{7, 8, 9, 10, 11, 12}, poses[1].Values())

	_, err = r.Resolve(response("1,2,3,4,5,6"), pose.FrameSensor)
	assert.ErrorIs(t, err, pose.ErrFieldCountMismatch)
}

func TestResolveInvalidValues(t *testing.T) {
	r := pose.NewResolver(pose.DefaultConfig())

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"non-numeric", "1,2,abc,0,0,0", pose.ErrInvalidField},
		{"empty field", "1,,3,0,0,0", pose.ErrInvalidField},
		{"position too large", "10001,0,0,0,0,0", pose.ErrOutOfRange},
		{"negative position too large", "0,-20000,0,0,0,0", pose.ErrOutOfRange},
		{"angle too large", "0,0,0,0,361,0", pose.ErrOutOfRange},
		{"nan", "NaN,0,0,0,0,0", pose.ErrOutOfRange},
		{"inf", "0,0,0,+Inf,0,0", pose.ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(response(tt.payload), pose.FrameSensor)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveBoundaryValues(t *testing.T) {
	r := pose.NewResolver(pose.DefaultConfig())

	poses, err := r.Resolve(response("10000,-10000,0,360,-360,0"), pose.FrameSensor)
	require.NoError(t, err)
	assert.Len(t, poses, 1)
}

func TestResolveUnknownFrame(t *testing.T) {
	r := pose.NewResolver(pose.DefaultConfig())

	_, err := r.Resolve(response("1,2,3,4,5,6"), pose.FrameID(7))
	assert.ErrorIs(t, err, pose.ErrUnknownFrame)

	r.RegisterFrame(7, pose.Transform{Translation: r3.Vector{Z: 100}})
	poses, err := r.Resolve(response("1,2,3,4,5,6"), pose.FrameID(7))
	require.NoError(t, err)
	assert.Equal(t, 103.0, poses[0].Position.Z)
	assert.Equal(t, []pose.FrameID{pose.FrameSensor, pose.FrameRobotBase, 7}, r.Frames())
}

func TestResolveEmptyPayload(t *testing.T) {
	r := pose.NewResolver(pose.DefaultConfig())

	poses, err := r.Resolve(response(""), pose.FrameSensor)
	require.NoError(t, err)
	assert.Empty(t, poses)
}

func TestResolveCalibratedFrame(t *testing.T) {
	cfg := pose.DefaultConfig()
	cfg.Calibration = pose.Transform{
		Scale:       2,
		Yaw:         90,
		Translation: r3.Vector{X: 100, Y: 0, Z: -5},
	}
	r := pose.NewResolver(cfg)

	sensor, err := r.Resolve(response("10,0,1,0,0,100"), pose.FrameSensor)
	require.NoError(t, err)
	assert.Equal(t, [6]float64{10, 0, 1, 0, 0, 100}, sensor[0].Values())

	base, err := r.Resolve(response("10,0,1,0,0,100"), pose.FrameRobotBase)
	require.NoError(t, err)
	p := base[0]
	assert.InDelta(t, 100.0, p.Position.X, 1e-9)
	assert.InDelta(t, 20.0, p.Position.Y, 1e-9)
	assert.InDelta(t, -3.0, p.Position.Z, 1e-9)
	assert.InDelta(t, -170.0, p.Orientation.Z, 1e-9)
	assert.Equal(t, pose.FrameRobotBase, p.Frame)
}

func TestNormalizeAngle(t *testing.T) {
	assert.Equal(t, 0.0, pose.NormalizeAngle(0))
	assert.Equal(t, 180.0, pose.NormalizeAngle(180))
	assert.Equal(t, 180.0, pose.NormalizeAngle(-180))
	assert.Equal(t, -90.0, pose.NormalizeAngle(270))
	assert.Equal(t, 90.0, pose.NormalizeAngle(450))
	assert.Equal(t, 10.0, pose.NormalizeAngle(-350))
}

func TestTransformIdentity(t *testing.T) {
	assert.True(t, pose.Identity().IsIdentity())
	assert.True(t, pose.Transform{}.IsIdentity())
	assert.False(t, pose.Transform{Yaw: 1}.IsIdentity())

	p := pose.Pose{Position: r3.Vector{X: 1, Y: 2, Z: 3}, Orientation: r3.Vector{Z: 270}}
	assert.Equal(t, p, pose.Identity().Apply(p))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, pose.DefaultConfig().Validate())
	assert.NoError(t, pose.Config{}.Validate())
	assert.Error(t, pose.Config{FieldsPerObject: 3}.Validate())
	assert.Error(t, pose.Config{MaxCoordinate: -1}.Validate())
	assert.Error(t, pose.Config{Calibration: pose.Transform{Scale: -1}}.Validate())
}

func TestFrameIDString(t *testing.T) {
	assert.Equal(t, "SENSOR", pose.FrameSensor.String())
	assert.Equal(t, "ROBOT_BASE", pose.FrameRobotBase.String())
	assert.Equal(t, "FRAME(9)", pose.FrameID(9).String())
}
