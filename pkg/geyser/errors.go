package geyser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel errors.
var (
	// ErrSessionClosed is matched by writes on a session that is closing or closed.
	// They fail with a StreamError wrapping it.
	ErrSessionClosed = errors.New("geyser session closed")

	// ErrSlowConsumer is wrapped in a StreamError when the update buffer stayed
	// full for longer than Config.SlowConsumerTimeout.
	ErrSlowConsumer = errors.New("slow consumer: update buffer full")

	// ErrLivenessTimeout is matched by every LivenessError.
	ErrLivenessTimeout = errors.New("stream ping unanswered")

	// ErrDeadlineExceeded is matched by every DeadlineError.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrMaxReconnects is returned by Follow once Config.MaxReconnects attempts failed.
	ErrMaxReconnects = errors.New("max reconnect attempts exceeded")

	// ErrInvalidFilter is matched by every InvalidFilterError.
	ErrInvalidFilter = errors.New("invalid filter")
)

// errSessionClosed is what writes on a closed session fail with.
var errSessionClosed = &StreamError{Err: ErrSessionClosed}

// TransportError is a connection-level failure: DNS, TLS handshake, reset.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("geyser transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StreamError reports that a Subscribe stream terminated abnormally.
// A clean server half-close is io.EOF, never a StreamError.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("geyser stream error: %v", e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// ProtocolError reports a frame whose payload union did not hold exactly one variant.
// Sessions surface it wrapped in a StreamError.
type ProtocolError struct {
	// Variants lists the payload fields that were set. Empty when none was.
	Variants []string
}

func (e *ProtocolError) Error() string {
	if len(e.Variants) == 0 {
		return "geyser protocol error: update carries no payload"
	}
	return fmt.Sprintf("geyser protocol error: update carries %d payloads (%s)",
		len(e.Variants), strings.Join(e.Variants, ", "))
}

// LivenessError reports a stream ping that got no pong in time.
type LivenessError struct {
	PingID  int32
	Elapsed time.Duration
}

func (e *LivenessError) Error() string {
	return fmt.Sprintf("geyser ping %d unanswered after %s", e.PingID, e.Elapsed)
}

func (e *LivenessError) Unwrap() error { return ErrLivenessTimeout }

// DeadlineError reports a unary call whose deadline elapsed.
type DeadlineError struct {
	Method string
	Err    error
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("geyser %s: %v", e.Method, e.Err)
}

func (e *DeadlineError) Unwrap() []error { return []error{ErrDeadlineExceeded, e.Err} }

// InvalidFilterError reports a FilterSet rejected before it was written.
type InvalidFilterError struct {
	Field  string
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter %s: %s", e.Field, e.Reason)
}

func (e *InvalidFilterError) Unwrap() error { return ErrInvalidFilter }

// IsRetryable reports whether opening a new session or reissuing the call
// may succeed where err failed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var perr *ProtocolError
	if errors.As(err, &perr) {
		return false
	}
	if errors.Is(err, ErrInvalidFilter) || errors.Is(err, ErrSessionClosed) || errors.Is(err, context.Canceled) {
		return false
	}

	var terr *TransportError
	if errors.As(err, &terr) ||
		errors.Is(err, ErrLivenessTimeout) ||
		errors.Is(err, ErrDeadlineExceeded) ||
		errors.Is(err, ErrSlowConsumer) {
		return true
	}

	st, ok := status.FromError(err)
	if !ok {
		var serr *StreamError
		return errors.As(err, &serr)
	}

	switch st.Code() {
	case codes.Unavailable,
		codes.ResourceExhausted,
		codes.Aborted,
		codes.Internal,
		codes.Unknown,
		codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

// classifyRPCError maps a unary call failure onto the error taxonomy.
func classifyRPCError(method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &DeadlineError{Method: method, Err: err}
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return &DeadlineError{Method: method, Err: err}
	case codes.Unavailable:
		return &TransportError{Op: method, Err: err}
	}
	return fmt.Errorf("geyser %s: %w", method, err)
}

// classifyStreamError maps a Subscribe stream failure onto the error taxonomy.
func classifyStreamError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		lerr *LivenessError
		serr *StreamError
		terr *TransportError
	)
	if errors.As(err, &lerr) || errors.As(err, &serr) || errors.As(err, &terr) {
		return err
	}
	if status.Code(err) == codes.Unavailable {
		return &TransportError{Op: op, Err: err}
	}
	return &StreamError{Err: err}
}
