// Package status defines the coded error taxonomy shared by the service,
// config resolution and offload layers. Callers branch on codes — notably
// Backpressure, the only code that is retryable by design — instead of
// matching error strings.
package status

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	// OK is the zero code; it never appears inside an *Error.
	OK Code = "ok"

	// InvalidArgument reports a null or empty required parameter.
	InvalidArgument Code = "invalid_argument"
	// InvalidHandle reports an unknown, destroyed or corrupted handle token.
	InvalidHandle Code = "invalid_handle"

	// Config resolution failures. All are surfaced at create time.
	InvalidConfig      Code = "invalid_config"
	ModelNotFound      Code = "model_not_found"
	UnsupportedType    Code = "unsupported_type"
	DuplicateNode      Code = "duplicate_node"
	MissingNodeName    Code = "missing_node_name"
	IncompleteTopology Code = "incomplete_topology"
	TensorInfoMismatch Code = "tensor_info_mismatch"

	// InvalidPort reports an unknown or role-mismatched port name.
	InvalidPort Code = "invalid_port"
	// Backpressure reports a full input queue. Retryable.
	Backpressure Code = "backpressure"
	// ServiceStopped reports that the handle already hit a fatal engine
	// failure (or an explicit stop) and accepts no further work.
	ServiceStopped Code = "service_stopped"
	// KeyNotFound reports a lookup of an unset information key.
	KeyNotFound Code = "key_not_found"
	// EngineFailure reports that the execution runtime could not be
	// prepared for the handle's topology.
	EngineFailure Code = "engine_failure"

	// Offload failures.
	TransferFailed   Code = "transfer_failed"
	DiscoveryTimeout Code = "discovery_timeout"
)

// Error is a coded error. Use Errorf to construct and CodeOf to classify.
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Msg + ": " + e.Cause.Error()
	}
	return string(e.Code) + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Errorf builds a coded error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an existing error.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// CodeOf extracts the code from err, unwrapping as needed. It returns OK for
// nil and the empty code for errors that carry no *Error in their chain.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return Code("")
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool { return CodeOf(err) == code }

// Retryable reports whether the caller may usefully retry the operation.
// Only queue-full rejections qualify.
func Retryable(err error) bool { return Is(err, Backpressure) }

// Convenience predicates for the codes callers branch on most.

func IsInvalidHandle(err error) bool { return Is(err, InvalidHandle) }
func IsInvalidPort(err error) bool   { return Is(err, InvalidPort) }
func IsBackpressure(err error) bool  { return Is(err, Backpressure) }
func IsStopped(err error) bool       { return Is(err, ServiceStopped) }
func IsKeyNotFound(err error) bool   { return Is(err, KeyNotFound) }
