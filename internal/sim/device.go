// Package sim provides a simulated vision sensor for tests and local runs.
//
// A Device holds the detection state the sensor reports and decides how each
// command is answered. A Server exposes a Device over TCP using the same
// framing as the real sensor.
package sim

import (
	"strconv"
	"sync"
	"time"

	"github.com/kswx/keyence-go/pkg/wire"
)

// Action selects what the simulated sensor does with a command.
type Action int

const (
	// ActionRespond sends the reply.
	ActionRespond Action = iota

	// ActionSilent reads the command and never answers.
	ActionSilent

	// ActionClose closes the connection without answering.
	ActionClose
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionRespond:
		return "RESPOND"
	case ActionSilent:
		return "SILENT"
	case ActionClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Reply is the sensor's reaction to one command.
type Reply struct {
	// Action selects respond, silent or close (default: respond).
	Action Action `yaml:"action"`

	// Status and Fields form the response frame.
	Status wire.Status `yaml:"status"`
	Fields []string    `yaml:"fields"`

	// Raw, if set, is written instead of an encoded response.
	Raw []byte `yaml:"raw"`

	// Delay is applied before the reply is written.
	Delay time.Duration `yaml:"delay"`
}

// OK returns a success reply with fields.
func OK(fields ...string) Reply {
	return Reply{Status: wire.StatusSuccess, Fields: fields}
}

// Fail returns a failure reply echoing token with a device error code.
func Fail(token, code string) Reply {
	return Reply{Status: wire.StatusFailure, Fields: []string{token, code}}
}

// Handler overrides the default reply logic.
type Handler func(cmd wire.Command) Reply

// Device is the simulated sensor state.
type Device struct {
	mu sync.RWMutex

	// objects is the detection result reported after the next trigger.
	objects [][6]float64

	// script holds one-shot replies per verb, consumed in order.
	script map[wire.Verb][]Reply

	handler  Handler
	delay    time.Duration
	received []wire.Command
}

// NewDevice creates a device that detects no objects.
func NewDevice() *Device {
	return &Device{script: make(map[wire.Verb][]Reply)}
}

// SetObjects sets the poses the device reports. The object count is
// len(poses).
func (d *Device) SetObjects(poses ...[6]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects = append([][6]float64(nil), poses...)
}

// ObjectCount returns the number of detected objects.
func (d *Device) ObjectCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.objects)
}

// SetDelay delays every reply that is not scripted.
func (d *Device) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// Script queues one-shot replies for verb. They are used before the default
// behavior.
func (d *Device) Script(verb wire.Verb, replies ...Reply) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script[verb] = append(d.script[verb], replies...)
}

// SetHandler replaces the default reply logic. Scripted replies still take
// precedence.
func (d *Device) SetHandler(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Received returns the commands received so far.
func (d *Device) Received() []wire.Command {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]wire.Command, len(d.received))
	copy(result, d.received)
	return result
}

// ClearReceived clears the received command log.
func (d *Device) ClearReceived() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.received = d.received[:0]
}

// Handle records cmd and returns the reply for it.
func (d *Device) Handle(cmd wire.Command) Reply {
	d.mu.Lock()
	d.received = append(d.received, cmd)
	if queue := d.script[cmd.Verb]; len(queue) > 0 {
		r := queue[0]
		d.script[cmd.Verb] = queue[1:]
		d.mu.Unlock()
		return r
	}
	h := d.handler
	objects := d.objects
	delay := d.delay
	d.mu.Unlock()

	r := d.reply(cmd, h, objects)
	if r.Delay == 0 {
		r.Delay = delay
	}
	return r
}

func (d *Device) reply(cmd wire.Command, h Handler, objects [][6]float64) Reply {
	if h != nil {
		return h(cmd)
	}

	switch cmd.Verb {
	case wire.VerbTrigger:
		return OK()
	case wire.VerbTriggerObj:
		return OK(strconv.Itoa(len(objects)))
	case wire.VerbPose:
		fields := make([]string, 0, len(objects)*6)
		for _, p := range objects {
			for _, v := range p {
				fields = append(fields, strconv.FormatFloat(v, 'f', 3, 64))
			}
		}
		return OK(fields...)
	default:
		return Fail(cmd.Verb.String(), "99")
	}
}
