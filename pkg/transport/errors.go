package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/mithrel/pushline/pkg/httpclient"
)

var (
	// ErrNoStartFunc is returned by Start when the transport has no start strategy.
	ErrNoStartFunc = errors.New("transport: no start func")

	// ErrEmptyName is returned by NewBase for an empty transport name.
	ErrEmptyName = errors.New("transport: empty transport name")

	// ErrNoClient is returned by NewBase when no HTTP client is supplied.
	ErrNoClient = errors.New("transport: nil http client")

	// ErrEnvelopeNotObject is reported when a non-empty response body is not a JSON object.
	ErrEnvelopeNotObject = errors.New("transport: envelope is not a JSON object")

	// ErrMissingMessageID is reported when an envelope carries Messages but no MessageId.
	// Such an envelope is rejected as a whole: nothing is dispatched and the
	// cursor is left where it was, so the server redelivers the batch.
	ErrMissingMessageID = errors.New("transport: envelope has Messages without MessageId")
)

// Error wraps a failed Start or Send with the transport and operation.
type Error struct {
	Transport string
	Op        string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %s: %v", e.Transport, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// EnvelopeError is passed to Connection.OnError when a response body could
// not be turned into an envelope. Messages of that body are not dispatched.
type EnvelopeError struct {
	Err error
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("transport: bad envelope: %v", e.Err)
}

func (e *EnvelopeError) Unwrap() error {
	return e.Err
}

// DispatchError is passed to Connection.OnError when the handler for one
// message failed. The remaining messages of the batch are still dispatched.
type DispatchError struct {
	Index int
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("transport: message %d: %v", e.Index, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsRequestAborted reports whether err is the result of a client-side abort
// (Stop, Request.Abort or a cancelled context) rather than a network or
// protocol fault. Receive loops use it to stay quiet on deliberate stops.
func IsRequestAborted(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, httpclient.ErrRequestAborted) || errors.Is(err, context.Canceled)
}
