package bundle

import (
	"fmt"
	"strings"
)

// LifecycleMethods are the event methods every custom device must implement.
var LifecycleMethods = []string{
	"onCreate", "onDestroy", "onBind", "onUnbind",
	"onActivate", "onDeactivate", "onMount", "onUnmount",
}

// Surface describes what a device implementation provides.
type Surface struct {
	// Lifecycle lists the implemented lifecycle methods.
	Lifecycle []string

	// Published lists the published method signatures.
	Published []Method
}

// DeviceSurface returns the surface implemented by Device.
func DeviceSurface() Surface {
	return Surface{
		Lifecycle: append([]string(nil), LifecycleMethods...),
		Published: []Method{
			{Name: "triggerImage"},
			{Name: "triggerImageObj", Params: []Param{{Type: "Number", Name: "object_found"}}},
			{Name: "getObjectPose", Params: []Param{
				{Type: "RobotPose", Name: "object_pose"},
				{Type: "int", Name: "pose_type"},
			}},
		},
	}
}

// Method returns the published method with the given name.
func (s Surface) Method(name string) (Method, bool) {
	for _, m := range s.Published {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// Outcome classifies the comparison of one manifest method.
type Outcome int

const (
	OutcomeMatch Outcome = iota
	OutcomeNotImplemented
	OutcomeCountMismatch
	OutcomeSignatureMismatch
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeMatch:
		return "MATCH"
	case OutcomeNotImplemented:
		return "NOT_IMPLEMENTED"
	case OutcomeCountMismatch:
		return "COUNT_MISMATCH"
	case OutcomeSignatureMismatch:
		return "SIGNATURE_MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// MethodResult is the comparison of one manifest method.
type MethodResult struct {
	Name    string
	Outcome Outcome
	Detail  string
}

// Report is the result of Validate.
type Report struct {
	// MissingLifecycle lists lifecycle methods the surface lacks.
	MissingLifecycle []string

	// ManifestCount and SurfaceCount are the number of published methods.
	ManifestCount int
	SurfaceCount  int

	// Methods holds one result per manifest method, in manifest order.
	Methods []MethodResult

	// Unpublished lists surface methods the manifest does not declare.
	Unpublished []string
}

// OK reports whether the manifest and the surface agree.
func (r Report) OK() bool {
	if len(r.MissingLifecycle) > 0 || len(r.Unpublished) > 0 || r.ManifestCount != r.SurfaceCount {
		return false
	}
	for _, m := range r.Methods {
		if m.Outcome != OutcomeMatch {
			return false
		}
	}
	return true
}

// Problems returns one line per disagreement.
func (r Report) Problems() []string {
	var out []string
	if len(r.MissingLifecycle) > 0 {
		out = append(out, "missing lifecycle methods: "+strings.Join(r.MissingLifecycle, ", "))
	}
	if r.ManifestCount != r.SurfaceCount {
		out = append(out, fmt.Sprintf("method count: manifest %d, device %d", r.ManifestCount, r.SurfaceCount))
	}
	for _, m := range r.Methods {
		if m.Outcome != OutcomeMatch {
			out = append(out, fmt.Sprintf("%s: %s", m.Name, m.Detail))
		}
	}
	for _, name := range r.Unpublished {
		out = append(out, fmt.Sprintf("%s: implemented but not declared in manifest", name))
	}
	return out
}

// Validate compares the manifest's methods with the surface.
func Validate(m *Manifest, s Surface) Report {
	r := Report{
		ManifestCount: len(m.Methods),
		SurfaceCount:  len(s.Published),
	}

	have := make(map[string]bool, len(s.Lifecycle))
	for _, name := range s.Lifecycle {
		have[name] = true
	}
	for _, name := range LifecycleMethods {
		if !have[name] {
			r.MissingLifecycle = append(r.MissingLifecycle, name)
		}
	}

	declared := make(map[string]bool, len(m.Methods))
	for _, want := range m.Methods {
		declared[want.Name] = true
		r.Methods = append(r.Methods, compare(want, s))
	}
	for _, got := range s.Published {
		if !declared[got.Name] {
			r.Unpublished = append(r.Unpublished, got.Name)
		}
	}
	return r
}

func compare(want Method, s Surface) MethodResult {
	res := MethodResult{Name: want.Name}

	got, ok := s.Method(want.Name)
	if !ok {
		res.Outcome = OutcomeNotImplemented
		res.Detail = "method not implemented by device"
		return res
	}
	if len(got.Params) != len(want.Params) {
		res.Outcome = OutcomeCountMismatch
		res.Detail = fmt.Sprintf("parameter count mismatch: manifest %d, device %d", len(want.Params), len(got.Params))
		return res
	}

	var diffs []string
	for i := range want.Params {
		if want.Params[i] != got.Params[i] {
			diffs = append(diffs, fmt.Sprintf("manifest %q, device %q", want.Params[i], got.Params[i]))
		}
	}
	if len(diffs) > 0 {
		res.Outcome = OutcomeSignatureMismatch
		res.Detail = "signature mismatch: " + strings.Join(diffs, "; ")
		return res
	}

	res.Outcome = OutcomeMatch
	res.Detail = "signatures match"
	return res
}
