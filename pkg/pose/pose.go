// Package pose turns sensor pose payloads into positions and orientations
// expressed in a selectable coordinate frame.
//
// A payload is a flat list of numeric fields. Every detected object
// contributes FieldsPerObject consecutive fields: X, Y, Z in millimetres
// followed by Rx, Ry, Rz in degrees. The frame selector picks the transform
// applied to the parsed numbers:
//
//	FrameSensor (0)    - raw sensor coordinates, no transform
//	FrameRobotBase (1) - the calibrated robot base frame
package pose

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
)

// Resolve errors.
var (
	ErrFieldCountMismatch = errors.New("field count is not a multiple of fields per object")
	ErrOutOfRange         = errors.New("value out of range")
	ErrUnknownFrame       = errors.New("unknown coordinate frame")
	ErrInvalidField       = errors.New("invalid numeric field")
)

// FrameID selects the coordinate frame a pose is expressed in.
type FrameID int

// Built-in frames.
const (
	FrameSensor    FrameID = 0
	FrameRobotBase FrameID = 1
)

// String returns the frame name for the built-in frames.
func (f FrameID) String() string {
	switch f {
	case FrameSensor:
		return "SENSOR"
	case FrameRobotBase:
		return "ROBOT_BASE"
	default:
		return fmt.Sprintf("FRAME(%d)", int(f))
	}
}

// Pose is one detected object's position and orientation.
type Pose struct {
	// Position in millimetres.
	Position r3.Vector

	// Orientation as Rx, Ry, Rz in degrees.
	Orientation r3.Vector

	// Frame the values are expressed in.
	Frame FrameID
}

// Values returns the pose as X, Y, Z, Rx, Ry, Rz.
func (p Pose) Values() [6]float64 {
	return [6]float64{
		p.Position.X, p.Position.Y, p.Position.Z,
		p.Orientation.X, p.Orientation.Y, p.Orientation.Z,
	}
}

func (p Pose) String() string {
	return fmt.Sprintf("%s pos=(%.3f, %.3f, %.3f) rot=(%.3f, %.3f, %.3f)",
		p.Frame,
		p.Position.X, p.Position.Y, p.Position.Z,
		p.Orientation.X, p.Orientation.Y, p.Orientation.Z)
}
