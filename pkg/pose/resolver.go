package pose

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/kswx/keyence-go/pkg/wire"
)

// Resolver defaults.
const (
	// DefaultFieldsPerObject is X, Y, Z, Rx, Ry, Rz.
	DefaultFieldsPerObject = 6

	// DefaultMaxCoordinate bounds each position component (mm).
	DefaultMaxCoordinate = 10000.0

	// MaxAngle bounds each orientation component (degrees).
	MaxAngle = 360.0
)

// Config configures a Resolver.
type Config struct {
	// FieldsPerObject is the number of payload fields per detected object
	// (default: 6). The first six are used; any extra fields are ignored.
	FieldsPerObject int `mapstructure:"fields_per_object" yaml:"fields_per_object"`

	// MaxCoordinate bounds |X|, |Y| and |Z| (default: 10000).
	MaxCoordinate float64 `mapstructure:"max_coordinate" yaml:"max_coordinate"`

	// Calibration maps sensor coordinates into the robot base frame.
	Calibration Transform `mapstructure:"calibration" yaml:"calibration"`
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		FieldsPerObject: DefaultFieldsPerObject,
		MaxCoordinate:   DefaultMaxCoordinate,
		Calibration:     Identity(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FieldsPerObject != 0 && c.FieldsPerObject < DefaultFieldsPerObject {
		return fmt.Errorf("fields_per_object must be at least %d, got %d", DefaultFieldsPerObject, c.FieldsPerObject)
	}
	if c.MaxCoordinate < 0 {
		return fmt.Errorf("max_coordinate must not be negative")
	}
	if c.Calibration.Scale < 0 {
		return fmt.Errorf("calibration scale must not be negative")
	}
	return nil
}

// Resolver converts pose payloads into poses. It is safe for concurrent use.
type Resolver struct {
	fieldsPerObject int
	maxCoordinate   float64

	mu     sync.RWMutex
	frames map[FrameID]Transform
}

// NewResolver creates a resolver with the sensor and robot base frames
// registered.
func NewResolver(config Config) *Resolver {
	if config.FieldsPerObject <= 0 {
		config.FieldsPerObject = DefaultFieldsPerObject
	}
	if config.MaxCoordinate <= 0 {
		config.MaxCoordinate = DefaultMaxCoordinate
	}

	return &Resolver{
		fieldsPerObject: config.FieldsPerObject,
		maxCoordinate:   config.MaxCoordinate,
		frames: map[FrameID]Transform{
			FrameSensor:    Identity(),
			FrameRobotBase: config.Calibration,
		},
	}
}

// FieldsPerObject returns the number of fields per object.
func (r *Resolver) FieldsPerObject() int {
	return r.fieldsPerObject
}

// RegisterFrame adds or replaces a frame.
func (r *Resolver) RegisterFrame(id FrameID, t Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[id] = t
}

// HasFrame reports whether id is registered.
func (r *Resolver) HasFrame(id FrameID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.frames[id]
	return ok
}

// Frames returns the registered frame IDs in ascending order.
func (r *Resolver) Frames() []FrameID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]FrameID, 0, len(r.frames))
	for id := range r.frames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Resolve parses the response payload into poses expressed in frame.
// An empty payload resolves to no poses.
func (r *Resolver) Resolve(resp wire.Response, frame FrameID) ([]Pose, error) {
	return r.ResolveFields(resp.Fields(), frame)
}

// ResolveFields parses already split payload fields into poses.
func (r *Resolver) ResolveFields(fields []string, frame FrameID) ([]Pose, error) {
	r.mu.RLock()
	t, ok := r.frames[frame]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFrame, int(frame))
	}

	k := r.fieldsPerObject
	if len(fields)%k != 0 {
		return nil, fmt.Errorf("%w: %d fields, %d per object", ErrFieldCountMismatch, len(fields), k)
	}

	poses := make([]Pose, 0, len(fields)/k)
	for obj := 0; obj < len(fields); obj += k {
		var v [6]float64
		for i := range v {
			f, err := r.parseField(fields[obj+i], i)
			if err != nil {
				return nil, fmt.Errorf("object %d field %d: %w", obj/k, i, err)
			}
			v[i] = f
		}

		p := Pose{
			Position:    r3.Vector{X: v[0], Y: v[1], Z: v[2]},
			Orientation: r3.Vector{X: v[3], Y: v[4], Z: v[5]},
		}
		if !t.IsIdentity() {
			p = t.Apply(p)
		}
		p.Frame = frame
		poses = append(poses, p)
	}
	return poses, nil
}

// parseField parses one numeric field. Index 0-2 are positions, 3-5 angles.
func (r *Resolver) parseField(s string, index int) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidField, s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrOutOfRange, f)
	}

	limit := r.maxCoordinate
	if index >= 3 {
		limit = MaxAngle
	}
	if math.Abs(f) > limit {
		return 0, fmt.Errorf("%w: |%v| > %v", ErrOutOfRange, f, limit)
	}
	return f, nil
}
