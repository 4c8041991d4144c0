package httpc

import "strconv"

// DefaultMaxChunkSize bounds a single chunk payload.
const DefaultMaxChunkSize = 32 << 10

// chunkedEncoder frames outgoing payloads into HTTP/1.1 chunked
// transfer-coding segments. It is stateless between calls except for the
// terminated flag, which makes a second Last a no-op.
type chunkedEncoder struct {
	maxChunkSize int
	terminated   bool
}

func newChunkedEncoder(maxChunkSize int) chunkedEncoder {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return chunkedEncoder{maxChunkSize: maxChunkSize}
}

// Encode frames p into one or more chunks, each at most maxChunkSize of
// payload: hex length, CRLF, payload, CRLF. An empty p produces no bytes,
// so it can never be mistaken for the terminator.
func (e *chunkedEncoder) Encode(p []byte) []byte {
	if len(p) == 0 {
		return nil
	}
	var out []byte
	for len(p) > 0 {
		n := len(p)
		if n > e.maxChunkSize {
			n = e.maxChunkSize
		}
		out = strconv.AppendInt(out, int64(n), 16)
		out = append(out, '\r', '\n')
		out = append(out, p[:n]...)
		out = append(out, '\r', '\n')
		p = p[n:]
	}
	return out
}

// Last emits the terminal zero-length chunk and final CRLF, once.
func (e *chunkedEncoder) Last() []byte {
	if e.terminated {
		return nil
	}
	e.terminated = true
	return []byte("0\r\n\r\n")
}
