package session

import (
	"errors"
	"fmt"

	"github.com/kswx/keyence-go/pkg/client"
	"github.com/kswx/keyence-go/pkg/wire"
)

// Session errors.
var (
	ErrNotActive       = errors.New("session not active")
	ErrNotMounted      = errors.New("session not mounted")
	ErrAlreadyMounted  = errors.New("session already mounted")
	ErrNoObject        = errors.New("no object detected")
	ErrInvalidConfig   = errors.New("invalid session config")
	ErrCommandRejected = errors.New("command rejected by sensor")
)

// ErrConnectionLost is returned by every operation after the link was lost,
// until Reconnect or a new Mount.
var ErrConnectionLost = client.ErrConnectionLost

// CommandError reports a failure status returned by the sensor.
type CommandError struct {
	// Verb is the rejected command.
	Verb wire.Verb

	// Code is the device error code, if the sensor sent one.
	Code string
}

func (e *CommandError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %v", e.Verb, ErrCommandRejected)
	}
	return fmt.Sprintf("%s: %v (code %s)", e.Verb, ErrCommandRejected, e.Code)
}

func (e *CommandError) Unwrap() error {
	return ErrCommandRejected
}
