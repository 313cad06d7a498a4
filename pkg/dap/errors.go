package dap

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned by Exchange after Close.
	ErrSessionClosed = errors.New("session is closed")

	// ErrEmptyResponse is returned when the probe replies with a
	// zero-length report.
	ErrEmptyResponse = errors.New("empty response received")
)

// OpcodeMismatchError is returned when the first byte of a response
// frame does not echo the request's command opcode. That means the
// transport has lost framing and all further protocol state is suspect.
type OpcodeMismatchError struct {
	Request  byte
	Response byte
}

func (e *OpcodeMismatchError) Error() string {
	return fmt.Sprintf("invalid response received: request = 0x%02x, response = 0x%02x", e.Request, e.Response)
}
