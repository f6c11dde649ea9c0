package transport

import (
	"errors"
	"fmt"
)

// ErrRejected is returned when the backend refuses an operation (a send the
// pipeline may retry with the same payload).
var ErrRejected = errors.New("transport: rejected by backend")

// ErrUnauthenticated is returned when an operation other than the
// authentication RPCs is attempted before the session is ready.
var ErrUnauthenticated = errors.New("transport: not authenticated")

// ErrClosed is returned for operations on a closed client.
var ErrClosed = errors.New("transport: client closed")

// RPCError carries the backend's verbatim failure code and message so the UI
// can display it.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("transport: rpc error %d: %s", e.Code, e.Message)
}
