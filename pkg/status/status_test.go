package status

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != OK {
		t.Fatalf("nil: got %q", got)
	}
	err := Errorf(Backpressure, "queue full")
	if got := CodeOf(err); got != Backpressure {
		t.Fatalf("got %q, want %q", got, Backpressure)
	}
	// code survives wrapping
	wrapped := fmt.Errorf("submit: %w", err)
	if got := CodeOf(wrapped); got != Backpressure {
		t.Fatalf("wrapped: got %q", got)
	}
	if got := CodeOf(io.EOF); got != Code("") {
		t.Fatalf("uncoded: got %q", got)
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := Wrap(TransferFailed, "stream artifact", cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable via errors.Is")
	}
	if CodeOf(err) != TransferFailed {
		t.Fatalf("got %q", CodeOf(err))
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(Errorf(Backpressure, "full")) {
		t.Fatal("backpressure must be retryable")
	}
	for _, code := range []Code{InvalidHandle, ServiceStopped, InvalidPort, TransferFailed, EngineFailure} {
		if Retryable(Errorf(code, "x")) {
			t.Fatalf("%q must not be retryable", code)
		}
	}
}

func TestPredicates(t *testing.T) {
	if !IsInvalidHandle(Errorf(InvalidHandle, "x")) {
		t.Fatal("IsInvalidHandle")
	}
	if !IsBackpressure(Errorf(Backpressure, "x")) {
		t.Fatal("IsBackpressure")
	}
	if !IsStopped(Errorf(ServiceStopped, "x")) {
		t.Fatal("IsStopped")
	}
	if !IsKeyNotFound(Errorf(KeyNotFound, "x")) {
		t.Fatal("IsKeyNotFound")
	}
	if IsInvalidPort(Errorf(InvalidHandle, "x")) {
		t.Fatal("predicate matched wrong code")
	}
}
