package contracts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout matches every TimeoutError via errors.Is
	ErrTimeout = errors.New("bridge: timed out")

	// ErrBridgeClosed is returned to waiters when the bridge shuts down
	ErrBridgeClosed = errors.New("bridge: closed")

	// ErrUnknownCall is returned when awaiting an id that is not pending
	ErrUnknownCall = errors.New("bridge: unknown call id")

	// ErrNoDocument is returned by host accessors when no document is open
	ErrNoDocument = errors.New("host: no active document")

	// ErrUnsavedDocument is returned when the active document has no path on disk
	ErrUnsavedDocument = errors.New("host: document has not been saved")
)

// TimeoutError reports a bounded wait that exceeded its deadline
type TimeoutError struct {
	Message string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return e.Message
}

// Is reports whether target is ErrTimeout
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// DecodeError reports a malformed payload on an inbound message
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q payload: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError reports an outbound value that could not be serialized
type EncodeError struct {
	Name string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %q payload: %v", e.Name, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// HostQueryError reports a failure while reading host application state
type HostQueryError struct {
	Op  string
	Err error
}

func (e *HostQueryError) Error() string {
	return fmt.Sprintf("host query %s: %v", e.Op, e.Err)
}

func (e *HostQueryError) Unwrap() error {
	return e.Err
}

// RemoteError is an error returned by the host for a call
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}
