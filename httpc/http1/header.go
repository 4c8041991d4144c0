package http1

import (
	"fmt"
	"net/textproto"
	"strconv"
	"strings"
)

// Header holds HTTP field lines keyed by canonical name.
type Header map[string][]string

func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	k := textproto.CanonicalMIMEHeaderKey(key)
	if vv, ok := h[k]; ok && len(vv) > 0 {
		return vv[0]
	}
	return ""
}

func (h Header) Set(key, value string) {
	if h == nil {
		return
	}
	h[textproto.CanonicalMIMEHeaderKey(key)] = []string{value}
}

func (h Header) Add(key, value string) {
	if h == nil {
		return
	}
	k := textproto.CanonicalMIMEHeaderKey(key)
	h[k] = append(h[k], value)
}

func (h Header) Del(key string) {
	if h == nil {
		return
	}
	delete(h, textproto.CanonicalMIMEHeaderKey(key))
}

// RequestHeader describes an outgoing HTTP/1.1 request line plus fields.
// It is immutable once handed to a stream.
type RequestHeader struct {
	Method string
	Target string
	Fields Header
}

// Chunked reports whether the request body uses chunked transfer coding.
func (h *RequestHeader) Chunked() bool {
	for _, v := range h.Fields[textproto.CanonicalMIMEHeaderKey("Transfer-Encoding")] {
		if strings.Contains(strings.ToLower(v), "chunked") {
			return true
		}
	}
	return false
}

// Encode serializes the request line, field lines and the terminating
// blank line. Field values are sanitized against CR/LF injection.
func (h *RequestHeader) Encode() []byte {
	var b strings.Builder
	method := h.Method
	if method == "" {
		method = "GET"
	}
	target := h.Target
	if target == "" {
		target = "/"
	}
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, target)
	for k, vv := range h.Fields {
		for _, v := range vv {
			fmt.Fprintf(&b, "%s: %s\r\n", k, sanitizeValue(v))
		}
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ResponseHeader is the parsed status line plus fields of a response.
// ContentLength is -1 when the body length is not declared (chunked or
// close-delimited).
type ResponseHeader struct {
	Proto         string
	Status        int
	Reason        string
	Fields        Header
	ContentLength int64
}

func (h *ResponseHeader) chunked() bool {
	for _, v := range h.Fields[textproto.CanonicalMIMEHeaderKey("Transfer-Encoding")] {
		if strings.Contains(strings.ToLower(v), "chunked") {
			return true
		}
	}
	return false
}

// noBody reports whether the status code forbids a response body.
func (h *ResponseHeader) noBody() bool {
	if h.Status >= 100 && h.Status < 200 {
		return true
	}
	return h.Status == 204 || h.Status == 304
}

func parseContentLength(v string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad Content-Length %q", ErrParse, v)
	}
	return n, nil
}

func sanitizeValue(v string) string {
	if !strings.ContainsAny(v, "\r\n\x7f") {
		clean := true
		for i := 0; i < len(v); i++ {
			if v[i] < 0x20 && v[i] != '\t' {
				clean = false
				break
			}
		}
		if clean {
			return v
		}
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0x7f {
			continue
		}
		if c < 0x20 && c != '\t' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
