package httpc

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/askngan/redpanda/httpc/http1"
)

// RequestStream is the write side of one exchange. The header is
// serialized lazily, ahead of the first payload bytes. Streams are
// single-use: once SendEOF completes the stream is done for good.
//
// At most one SendSome/SendEOF may be in flight at a time. Overlapping
// calls are a caller contract violation and panic rather than being
// silently serialized; the same guard spans the Writer adapter, so the
// two submission forms share one total order.
type RequestStream struct {
	client  *Client
	hdr     *http1.RequestHeader
	chunked bool
	enc     chunkedEncoder

	inflight   atomic.Bool
	headerSent bool
	done       bool
	failed     bool
}

// SendSome submits the next body fragment. Bytes are written to the
// connection in submission order; return means accepted, not flushed.
func (s *RequestStream) SendSome(ctx context.Context, p []byte) error {
	s.acquire("SendSome")
	defer s.release()
	return s.send(ctx, p, false)
}

// SendEOF flushes buffered output, emits the terminal chunk framing when
// chunked, and marks the stream done. Calling it twice, or SendSome after
// it, panics.
func (s *RequestStream) SendEOF(ctx context.Context) error {
	s.acquire("SendEOF")
	defer s.release()
	if err := s.send(ctx, nil, true); err != nil {
		return err
	}
	s.done = true
	return nil
}

// Done reports whether SendEOF completed.
func (s *RequestStream) Done() bool { return s.done }

func (s *RequestStream) acquire(op string) {
	if !s.inflight.CompareAndSwap(false, true) {
		panic("httpc: concurrent " + op + " on request stream")
	}
	if s.done {
		s.inflight.Store(false)
		panic("httpc: " + op + " after SendEOF")
	}
}

func (s *RequestStream) release() { s.inflight.Store(false) }

func (s *RequestStream) send(ctx context.Context, p []byte, eof bool) error {
	if s.failed {
		return ErrStreamFailed
	}
	if err := ctx.Err(); err != nil {
		return ErrAborted
	}
	if err := s.client.enter(); err != nil {
		return err
	}
	defer s.client.leave()
	if !s.headerSent {
		if err := s.client.write(ctx, s.hdr.Encode()); err != nil {
			return s.fail(err)
		}
		s.headerSent = true
	}
	if len(p) > 0 {
		if s.chunked {
			p = s.enc.Encode(p)
		}
		if len(p) > 0 {
			if err := s.client.write(ctx, p); err != nil {
				return s.fail(err)
			}
		}
	}
	if eof {
		if s.chunked {
			if err := s.client.write(ctx, s.enc.Last()); err != nil {
				return s.fail(err)
			}
		}
		if err := s.client.flush(ctx); err != nil {
			return s.fail(err)
		}
	}
	return nil
}

// fail marks the stream unusable and discards the connection: a
// half-sent body cannot be resumed, so the next exchange must dial
// fresh rather than land mid-message on the wire.
func (s *RequestStream) fail(err error) error {
	if err != ErrAborted {
		s.failed = true
		s.client.closeConn()
	}
	return err
}

// Writer presents the stream as a sequential byte sink: Write is
// SendSome, Close is SendEOF, with identical ordering and error
// semantics.
func (s *RequestStream) Writer(ctx context.Context) io.WriteCloser {
	return &requestBodyWriter{s: s, ctx: ctx}
}

type requestBodyWriter struct {
	s   *RequestStream
	ctx context.Context
}

func (w *requestBodyWriter) Write(p []byte) (int, error) {
	if err := w.s.SendSome(w.ctx, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *requestBodyWriter) Close() error {
	return w.s.SendEOF(w.ctx)
}
