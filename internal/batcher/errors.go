package batcher

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for reads enqueued after Close
	ErrClosed = errors.New("batcher: coalescer closed")

	// ErrNoResult is the cause when a transport returns neither a result nor an error
	ErrNoResult = errors.New("transport returned no result")

	// ErrNilRequest is returned when Enqueue is called without a request
	ErrNilRequest = errors.New("batcher: nil request")
)

// TransportError fails every request of a generation: the call itself failed
// or its response could not be attributed to the requests.
type TransportError struct {
	Tip        string
	Generation string
	Cause      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("batch request failed: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ItemError is a failure reported for one request inside a successful batch
type ItemError struct {
	Category Category
	Index    int
	Message  string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s read failed: %s", e.Category, e.Message)
}

// DecodeError means a successful raw value could not be decoded
type DecodeError struct {
	Category Category
	Index    int
	Cause    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s result: %v", e.Category, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// ShapeError means a result list does not line up with the request list.
// It is always delivered wrapped in a TransportError.
type ShapeError struct {
	Category Category
	Want     int
	Got      int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("batch result size mismatch for %s: expected %d, got %d", e.Category, e.Want, e.Got)
}
