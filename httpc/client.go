package httpc

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/askngan/redpanda/httpc/http1"
	"github.com/askngan/redpanda/internal/obs"
)

// Config carries the connection endpoint and per-client tuning. The zero
// value of every field except Addr is usable.
type Config struct {
	// Addr is the host:port to connect to.
	Addr string
	// TLS enables TLS when non-nil. ServerName defaults to the host part
	// of Addr and ALPN to http/1.1.
	TLS *tls.Config

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxChunkSize bounds a single outgoing chunk payload and the
	// segmentation of base Request body copies. Defaults to 32 KiB.
	MaxChunkSize int
	// MaxHeaderBytes bounds a single response header or chunk-size line.
	MaxHeaderBytes int

	// Abort is an optional shared cancellation signal. Once it is closed,
	// every pending and future operation on the client resolves with
	// ErrAborted.
	Abort <-chan struct{}

	Logger obs.Logger
	Meter  obs.Meter
}

// Client owns a single connection and hands out matched request/response
// stream pairs, strictly one exchange at a time. It is not safe for
// concurrent exchanges; Shutdown may be called from any goroutine.
type Client struct {
	cfg  Config
	stop chan struct{}

	mu     sync.Mutex
	conn   net.Conn
	closed bool
	gate   sync.WaitGroup // in-flight operations, drained by Shutdown

	br *bufio.Reader
	bw *bufio.Writer
}

// NewClient returns a client for cfg.Addr. No connection is made until
// the first MakeRequest.
func NewClient(cfg Config) *Client {
	c := &Client{cfg: cfg, stop: make(chan struct{})}
	if cfg.Abort != nil {
		go c.watchAbort()
	}
	return c
}

// watchAbort tears the connection down once the shared cancellation
// signal fires, so operations suspended on a read or write unblock and
// resolve with ErrAborted instead of hanging.
func (c *Client) watchAbort() {
	select {
	case <-c.cfg.Abort:
		c.closeConn()
	case <-c.stop:
	}
}

// check fails fast once the cancellation signal fired or Shutdown ran.
// Every public operation calls it before touching the connection.
func (c *Client) check() error {
	select {
	case <-c.stop:
		return ErrAborted
	default:
	}
	if c.cfg.Abort != nil {
		select {
		case <-c.cfg.Abort:
			return ErrAborted
		default:
		}
	}
	return nil
}

// enter registers an in-flight operation with the shutdown gate.
func (c *Client) enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrAborted
	}
	if err := c.check(); err != nil {
		return err
	}
	c.gate.Add(1)
	return nil
}

func (c *Client) leave() { c.gate.Done() }

// MakeRequest connects if necessary and returns a matched stream pair for
// one exchange. Nothing is sent or received yet; the header goes out on
// the first SendSome/SendEOF.
func (c *Client) MakeRequest(ctx context.Context, hdr *http1.RequestHeader) (*RequestStream, *ResponseStream, error) {
	if err := c.enter(); err != nil {
		return nil, nil, err
	}
	defer c.leave()
	if err := ctx.Err(); err != nil {
		return nil, nil, ErrAborted
	}
	if err := c.connect(ctx); err != nil {
		return nil, nil, err
	}
	c.metric("httpc_client_requests_total", obs.Label{Key: "method", Value: hdr.Method})
	req := &RequestStream{
		client:  c,
		hdr:     hdr,
		chunked: hdr.Chunked(),
		enc:     newChunkedEncoder(c.cfg.MaxChunkSize),
	}
	resp := &ResponseStream{
		client: c,
		parser: http1.NewResponseParser(c.cfg.MaxHeaderBytes),
	}
	return req, resp, nil
}

// Request drives a full request: the body is read from input in segments
// of at most MaxChunkSize and forwarded through SendSome, then SendEOF.
// It returns once the request body is fully sent; the response is pulled
// from the returned stream by the caller.
func (c *Client) Request(ctx context.Context, hdr *http1.RequestHeader, input io.Reader) (*ResponseStream, error) {
	start := time.Now()
	req, resp, err := c.MakeRequest(ctx, hdr)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, c.maxChunkSize())
	for {
		n, rerr := input.Read(buf)
		if n > 0 {
			if serr := req.SendSome(ctx, buf[:n]); serr != nil {
				return nil, serr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			// The body may be half-sent already; the connection cannot
			// carry another exchange.
			c.closeConn()
			return nil, rerr
		}
	}
	if err := req.SendEOF(ctx); err != nil {
		return nil, err
	}
	c.histogram("httpc_client_request_send_ms", float64(time.Since(start).Milliseconds()),
		obs.Label{Key: "method", Value: hdr.Method})
	return resp, nil
}

// RequestNoBody is Request with an empty body: SendEOF goes out
// immediately after the header.
func (c *Client) RequestNoBody(ctx context.Context, hdr *http1.RequestHeader) (*ResponseStream, error) {
	req, resp, err := c.MakeRequest(ctx, hdr)
	if err != nil {
		return nil, err
	}
	if err := req.SendEOF(ctx); err != nil {
		return nil, err
	}
	return resp, nil
}

// Shutdown tears down the connection. Operations suspended on it unblock
// with ErrAborted, and every later operation fails the same way. Safe to
// call more than once.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.gate.Wait()
	c.logf(obs.Debug, "client for %s shut down", c.cfg.Addr)
	return nil
}

// connect dials cfg.Addr unless a connection is already up: plain TCP,
// or TLS with SNI derived from Addr and http/1.1 ALPN.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	var conn net.Conn
	var err error
	if c.cfg.TLS != nil {
		cfg := c.cfg.TLS
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = hostNoPort(c.cfg.Addr)
		}
		if len(cfg.NextProtos) == 0 {
			cfg = cfg.Clone()
			cfg.NextProtos = []string{"http/1.1"}
		}
		td := tls.Dialer{NetDialer: &d, Config: cfg}
		conn, err = td.DialContext(ctx, "tcp", c.cfg.Addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", c.cfg.Addr)
	}
	if err != nil {
		c.logf(obs.Error, "dial %s failed: %v", c.cfg.Addr, err)
		c.metric("httpc_client_errors_total", obs.Label{Key: "stage", Value: "dial"})
		return err
	}
	c.metric("httpc_client_dial_total")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.check() != nil {
		_ = conn.Close()
		return ErrAborted
	}
	c.conn = conn
	c.br = bufio.NewReader(conn)
	c.bw = bufio.NewWriter(conn)
	return nil
}

// closeConn releases the connection without firing the cancellation
// signal; the client itself stays usable for Shutdown.
func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// write hands buf to the connection. Return means accepted by the
// buffered writer, not flushed to the network.
func (c *Client) write(ctx context.Context, buf []byte) error {
	if err := c.check(); err != nil {
		return err
	}
	conn, bw := c.endpoints()
	if conn == nil {
		return ErrConnectionClosed
	}
	setDeadline(conn.SetWriteDeadline, c.cfg.WriteTimeout, ctx)
	if _, err := bw.Write(buf); err != nil {
		return c.ioError(err, "write")
	}
	return nil
}

// flush pushes buffered request bytes to the network.
func (c *Client) flush(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	conn, bw := c.endpoints()
	if conn == nil {
		return ErrConnectionClosed
	}
	setDeadline(conn.SetWriteDeadline, c.cfg.WriteTimeout, ctx)
	if err := bw.Flush(); err != nil {
		return c.ioError(err, "flush")
	}
	return nil
}

// read pulls the next portion of response bytes. n==0 with a nil error
// signals end of stream.
func (c *Client) read(ctx context.Context, buf []byte) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	conn, br := c.conn, c.br
	c.mu.Unlock()
	if conn == nil {
		return 0, ErrConnectionClosed
	}
	setDeadline(conn.SetReadDeadline, c.cfg.ReadTimeout, ctx)
	n, err := br.Read(buf)
	if err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, c.ioError(err, "read")
	}
	if n == 0 {
		// bufio.Read contract allows 0,nil only for empty buf; treat as EOF.
		return 0, nil
	}
	return n, nil
}

func (c *Client) endpoints() (net.Conn, *bufio.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.bw
}

// ioError maps failures racing with a fired cancellation signal to
// ErrAborted so a deliberate shutdown never surfaces as an I/O error.
func (c *Client) ioError(err error, stage string) error {
	if cerr := c.check(); cerr != nil {
		return cerr
	}
	c.logf(obs.Warn, "%s on %s failed: %v", stage, c.cfg.Addr, err)
	c.metric("httpc_client_errors_total", obs.Label{Key: "stage", Value: stage})
	return err
}

func (c *Client) maxChunkSize() int {
	if c.cfg.MaxChunkSize > 0 {
		return c.cfg.MaxChunkSize
	}
	return DefaultMaxChunkSize
}

func (c *Client) logf(level obs.Level, format string, args ...interface{}) {
	lg := c.cfg.Logger
	if lg == nil {
		lg = obs.NopLogger{}
	}
	lg.Logf(level, format, args...)
}

func (c *Client) metric(name string, labels ...obs.Label) {
	m := c.cfg.Meter
	if m == nil {
		m = obs.NopMeter{}
	}
	m.Counter(name, 1, labels...)
}

func (c *Client) histogram(name string, value float64, labels ...obs.Label) {
	m := c.cfg.Meter
	if m == nil {
		m = obs.NopMeter{}
	}
	m.Histogram(name, value, labels...)
}

// setDeadline merges an explicit timeout with the context deadline,
// whichever comes first.
func setDeadline(set func(time.Time) error, timeout time.Duration, ctx context.Context) {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if dl, ok := ctx.Deadline(); ok {
		if d.IsZero() || dl.Before(d) {
			d = dl
		}
	}
	if !d.IsZero() {
		_ = set(d)
	}
}

func hostNoPort(h string) string {
	if host, _, err := net.SplitHostPort(h); err == nil {
		return host
	}
	return strings.Trim(h, "[]")
}
