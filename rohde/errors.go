package rohde

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/qmlab/rsscope/poll"
)

// Code classifies the failure carried by an *Error
type Code int

const (
	// CodeOK is returned by CodeOf for a nil error
	CodeOK Code = iota

	// CodeConnection means the session could not be opened or initialized
	CodeConnection

	// CodeChannelUnavailable means a channel's data or header could not be read
	CodeChannelUnavailable

	// CodeTimeout means a bounded poll gave up
	CodeTimeout

	// CodeCalibration means the self-alignment finished with an error
	CodeCalibration

	// CodeCalibrationAborted means the self-alignment was aborted
	CodeCalibrationAborted

	// CodeInstrument means a command or query failed
	CodeInstrument

	// CodeIO means a host file could not be written
	CodeIO
)

var codeNames = [...]string{
	"ok",
	"connection",
	"channel unavailable",
	"timeout",
	"calibration",
	"calibration aborted",
	"instrument",
	"io",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return fmt.Sprintf("code(%d)", int(c))
	}
	return codeNames[c]
}

var (
	// ErrChannelUnavailable is the cause of every CodeChannelUnavailable error
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrTimeout is the cause of every CodeTimeout error
	ErrTimeout = poll.ErrTimeout

	// ErrNoChannels is generated when an operation needs at least one channel
	ErrNoChannels = errors.New("no channels configured")
)

// Error is the error type returned by every Scope operation
type Error struct {
	// Op names the operation, e.g. "acquire"
	Op string

	// Code classifies the failure
	Code Code

	// Err is the underlying error
	Err error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error { return e.Err }

// Cause returns the underlying error
func (e *Error) Cause() error { return e.Err }

// CodeOf returns the code of the first *Error in err's chain.
// Errors from outside this package are reported as CodeInstrument.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInstrument
}
