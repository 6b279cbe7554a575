package transport

import (
	"strings"

	"github.com/samber/oops"
)

// HandlingType selects how a read or accept reports a data-path error.
type HandlingType uint8

const (
	Fail HandlingType = iota
	ReturnEmpty
	IgnoreLoop
)

func (h HandlingType) String() string {
	switch h {
	case Fail:
		return "fail"
	case ReturnEmpty:
		return "return-empty"
	case IgnoreLoop:
		return "ignore-loop"
	default:
		return "unknown"
	}
}

func ParseHandlingType(s string) (HandlingType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail", "exception":
		return Fail, nil
	case "return-empty", "empty", "null":
		return ReturnEmpty, nil
	case "ignore-loop", "ignore", "loop":
		return IgnoreLoop, nil
	}
	return Fail, oops.Wrapf(ErrInvalidHandlingType, "%q", s)
}

// CheckRead rejects handling types that make no sense for a single read.
func (h HandlingType) CheckRead() error {
	if h == Fail || h == ReturnEmpty {
		return nil
	}
	return oops.Wrapf(ErrInvalidHandlingType, "%s on read", h)
}

// CheckAccept rejects unknown handling types.
func (h HandlingType) CheckAccept() error {
	if h <= IgnoreLoop {
		return nil
	}
	return oops.Wrapf(ErrInvalidHandlingType, "%s on accept", h)
}

// Outcome is what an operation should do with an error under a policy.
type Outcome uint8

const (
	Report Outcome = iota
	Empty
	Retry
)

// Outcome maps err onto the policy. Only data-path errors are ever
// suppressed.
func (h HandlingType) Outcome(err error) Outcome {
	if !IsDataPathError(err) {
		return Report
	}
	switch h {
	case ReturnEmpty:
		return Empty
	case IgnoreLoop:
		return Retry
	default:
		return Report
	}
}

// StreamState is a set of connection capabilities queried through CanUse.
type StreamState uint8

const (
	CanRead StreamState = 1 << iota
	CanWrite
	Connected

	AllStates = CanRead | CanWrite | Connected
)
