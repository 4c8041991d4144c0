package httpc

import (
	"context"
	"io"

	"github.com/askngan/redpanda/httpc/http1"
)

// readBufSize is the per-read scratch size for response bytes.
const readBufSize = 4 << 10

// ResponseStream is the read side of one exchange. Bytes pulled from the
// network go through the incremental parser; every byte is either header
// material for the parser or body material surfaced to the caller, never
// dropped. Body bytes decoded while the header was still being parsed
// wait in the prefetch buffer and are replayed before any further
// network read.
type ResponseStream struct {
	client   *Client
	parser   *http1.ResponseParser
	prefetch []byte
	scratch  []byte
	closed   bool
	failed   bool
}

// PrefetchHeaders reads from the connection until the response header is
// fully parsed. A no-op once the header is complete, so repeat calls
// consume nothing.
func (s *ResponseStream) PrefetchHeaders(ctx context.Context) error {
	if s.closed {
		return ErrConnectionClosed
	}
	if s.failed {
		return ErrStreamFailed
	}
	if err := s.client.enter(); err != nil {
		return err
	}
	defer s.client.leave()
	for !s.parser.HeaderDone() {
		if err := s.readAndFeed(ctx); err != nil {
			return err
		}
	}
	return nil
}

// HeaderDone reports whether the response header has been parsed.
func (s *ResponseStream) HeaderDone() bool { return s.parser.HeaderDone() }

// Headers returns the parsed response header. Calling it before the
// header is complete is a caller contract violation and panics.
func (s *ResponseStream) Headers() *http1.ResponseHeader {
	if !s.parser.HeaderDone() {
		panic("httpc: Headers called before header completion")
	}
	return s.parser.Header()
}

// RecvSome returns the next fragment of decoded body bytes: the prefetch
// buffer first, then fresh network reads stripped of framing. A non-nil
// empty fragment is valid and non-terminal; once the message is fully
// consumed RecvSome returns nil and Done reports true.
func (s *ResponseStream) RecvSome(ctx context.Context) ([]byte, error) {
	if s.closed {
		return nil, ErrConnectionClosed
	}
	if s.failed {
		return nil, ErrStreamFailed
	}
	if len(s.prefetch) > 0 {
		out := s.prefetch
		s.prefetch = nil
		return out, nil
	}
	if s.parser.Done() {
		return nil, nil
	}
	if err := s.client.enter(); err != nil {
		return nil, err
	}
	defer s.client.leave()
	if err := s.readAndFeed(ctx); err != nil {
		return nil, err
	}
	out := s.prefetch
	s.prefetch = nil
	if out == nil && !s.parser.Done() {
		out = []byte{}
	}
	return out, nil
}

// Done reports whether the whole response body has been consumed.
func (s *ResponseStream) Done() bool { return s.parser.Done() }

// Shutdown releases the read side. Safe to call repeatedly; RecvSome
// issued afterwards fails with ErrConnectionClosed instead of hanging.
func (s *ResponseStream) Shutdown() {
	if s.closed {
		return
	}
	s.closed = true
	s.prefetch = nil
	s.client.closeConn()
}

// readAndFeed pulls one portion of bytes from the connection and runs it
// through the parser, appending decoded body bytes to the prefetch
// buffer. An end of stream is handed to the parser, which accepts it only
// for close-delimited bodies.
func (s *ResponseStream) readAndFeed(ctx context.Context) error {
	if s.scratch == nil {
		s.scratch = make([]byte, readBufSize)
	}
	n, err := s.client.read(ctx, s.scratch)
	if err != nil {
		return s.fail(err)
	}
	if n == 0 {
		if err := s.parser.Finish(); err != nil {
			return s.fail(err)
		}
		return nil
	}
	body, err := s.parser.Feed(s.scratch[:n])
	if len(body) > 0 {
		s.prefetch = append(s.prefetch, body...)
	}
	if err != nil {
		return s.fail(err)
	}
	return nil
}

// fail marks the stream unusable and discards the connection: after a
// protocol or I/O failure the remaining wire bytes are unusable, so the
// next exchange must dial fresh.
func (s *ResponseStream) fail(err error) error {
	if err != ErrAborted {
		s.failed = true
		s.client.closeConn()
	}
	return err
}

// Reader presents the stream as a sequential byte source equivalent to
// repeated RecvSome calls, ending with io.EOF once the message is fully
// consumed. Close shuts the read side down.
func (s *ResponseStream) Reader(ctx context.Context) io.ReadCloser {
	return &responseBodyReader{s: s, ctx: ctx}
}

type responseBodyReader struct {
	s    *ResponseStream
	ctx  context.Context
	tail []byte
}

func (r *responseBodyReader) Read(p []byte) (int, error) {
	for len(r.tail) == 0 {
		if r.s.Done() {
			return 0, io.EOF
		}
		frag, err := r.s.RecvSome(r.ctx)
		if err != nil {
			return 0, err
		}
		if frag == nil && r.s.Done() {
			return 0, io.EOF
		}
		r.tail = frag
	}
	n := copy(p, r.tail)
	r.tail = r.tail[n:]
	return n, nil
}

func (r *responseBodyReader) Close() error {
	r.s.Shutdown()
	return nil
}
