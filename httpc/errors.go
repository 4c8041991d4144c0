package httpc

import "errors"

var (
	// ErrAborted is returned when the shared cancellation signal fired or
	// the client was shut down. It is distinct from I/O failure so callers
	// can tell a deliberate teardown from a genuine error.
	ErrAborted = errors.New("httpc: aborted")

	// ErrConnectionClosed is returned by operations issued after the
	// stream or connection was released.
	ErrConnectionClosed = errors.New("httpc: connection closed")

	// ErrStreamFailed is returned by operations on a stream that already
	// hit a connection- or protocol-level failure.
	ErrStreamFailed = errors.New("httpc: stream failed")
)
