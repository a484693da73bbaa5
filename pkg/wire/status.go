package wire

// Status represents the outcome reported by a response frame.
type Status uint8

const (
	// StatusSuccess indicates the sensor accepted and executed the command.
	StatusSuccess Status = 0

	// StatusFailure indicates the sensor rejected the command.
	StatusFailure Status = 1

	// StatusMalformed indicates the frame could not be decoded.
	StatusMalformed Status = 2
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusMalformed:
		return "MALFORMED"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}
