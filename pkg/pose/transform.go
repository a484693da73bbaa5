package pose

import (
	"math"

	"github.com/golang/geo/r3"
)

// Transform maps sensor coordinates into a reference frame: the position is
// scaled, rotated by Yaw degrees about Z and translated. Yaw is also added to
// Rz, normalized into (-180, 180]. The zero value is treated as identity.
type Transform struct {
	Scale       float64   `mapstructure:"scale" yaml:"scale"`
	Yaw         float64   `mapstructure:"yaw" yaml:"yaw"`
	Translation r3.Vector `mapstructure:",squash" yaml:",inline"`
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Scale: 1}
}

// IsIdentity reports whether the transform leaves poses unchanged.
func (t Transform) IsIdentity() bool {
	return t.scale() == 1 && t.Yaw == 0 && t.Translation == (r3.Vector{})
}

func (t Transform) scale() float64 {
	if t.Scale == 0 {
		return 1
	}
	return t.Scale
}

// Apply returns p expressed in the transform's target frame. The frame tag is
// left to the caller.
func (t Transform) Apply(p Pose) Pose {
	pos := p.Position.Mul(t.scale())

	if t.Yaw != 0 {
		sin, cos := math.Sincos(t.Yaw * math.Pi / 180)
		pos = r3.Vector{
			X: pos.X*cos - pos.Y*sin,
			Y: pos.X*sin + pos.Y*cos,
			Z: pos.Z,
		}
		p.Orientation.Z = NormalizeAngle(p.Orientation.Z + t.Yaw)
	}

	p.Position = pos.Add(t.Translation)
	return p
}

// NormalizeAngle maps degrees into (-180, 180].
func NormalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a > 180 {
		a -= 360
	} else if a <= -180 {
		a += 360
	}
	return a
}
