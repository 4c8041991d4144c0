package http1

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParse marks protocol-level failures: malformed status lines, header
// fields or chunk framing. A stream hitting it is unusable afterwards.
var ErrParse = errors.New("http1: parse error")

type parseState uint8

const (
	stateStatusLine parseState = iota + 1
	stateHeaders
	stateBodyFixed
	stateBodyToEOF
	stateChunkSize
	stateChunkData
	stateChunkCR
	stateChunkLF
	stateTrailer
	stateDone
	stateFailed
)

// ResponseParser consumes a response incrementally, in fragments of any
// size and alignment. Feed returns the decoded body payload contained in
// the fragment, with status line, field lines and chunk framing stripped.
type ResponseParser struct {
	state      parseState
	line       []byte // partial line carried across Feed calls
	maxLine    int
	hdr        ResponseHeader
	headerDone bool
	remain     int64 // bytes left in the fixed body or current chunk
}

// NewResponseParser returns a parser ready to consume a response. maxLine
// bounds a single status/field/chunk-size line; <=0 selects 8 KiB.
func NewResponseParser(maxLine int) *ResponseParser {
	if maxLine <= 0 {
		maxLine = 8 << 10
	}
	return &ResponseParser{state: stateStatusLine, maxLine: maxLine}
}

// HeaderDone reports whether the full header has been parsed. It stays
// true even if the body later fails to parse.
func (p *ResponseParser) HeaderDone() bool { return p.headerDone }

// Header returns the parsed response header. Valid once HeaderDone.
func (p *ResponseParser) Header() *ResponseHeader { return &p.hdr }

// Done reports whether the whole message has been consumed.
func (p *ResponseParser) Done() bool { return p.state == stateDone }

// Feed consumes data and returns any decoded body bytes it contained.
// The returned slice is freshly allocated and safe to retain. A non-nil
// error is terminal.
func (p *ResponseParser) Feed(data []byte) ([]byte, error) {
	var body []byte
	for len(data) > 0 {
		switch p.state {
		case stateStatusLine, stateHeaders, stateChunkSize, stateTrailer:
			line, rest, ok, err := p.takeLine(data)
			if err != nil {
				return body, p.fail(err)
			}
			data = rest
			if !ok {
				return body, nil
			}
			if err := p.consumeLine(line); err != nil {
				return body, p.fail(err)
			}
		case stateBodyFixed:
			n := int64(len(data))
			if n > p.remain {
				n = p.remain
			}
			body = append(body, data[:n]...)
			data = data[n:]
			p.remain -= n
			if p.remain == 0 {
				p.state = stateDone
			}
		case stateBodyToEOF:
			body = append(body, data...)
			data = nil
		case stateChunkData:
			n := int64(len(data))
			if n > p.remain {
				n = p.remain
			}
			body = append(body, data[:n]...)
			data = data[n:]
			p.remain -= n
			if p.remain == 0 {
				p.state = stateChunkCR
			}
		case stateChunkCR:
			if data[0] != '\r' {
				return body, p.fail(fmt.Errorf("%w: expected CR after chunk, got %q", ErrParse, data[0]))
			}
			data = data[1:]
			p.state = stateChunkLF
		case stateChunkLF:
			if data[0] != '\n' {
				return body, p.fail(fmt.Errorf("%w: expected LF after chunk, got %q", ErrParse, data[0]))
			}
			data = data[1:]
			p.state = stateChunkSize
		case stateDone:
			return body, p.fail(fmt.Errorf("%w: %d excess bytes after message end", ErrParse, len(data)))
		case stateFailed:
			return body, fmt.Errorf("%w: parser already failed", ErrParse)
		default:
			return body, p.fail(fmt.Errorf("%w: parser not initialized", ErrParse))
		}
	}
	return body, nil
}

// Finish signals end of stream from the network. It is valid only once
// the message is already complete or for close-delimited bodies.
func (p *ResponseParser) Finish() error {
	switch p.state {
	case stateDone:
		return nil
	case stateBodyToEOF:
		p.state = stateDone
		return nil
	default:
		return p.fail(fmt.Errorf("%w: connection closed mid-message", ErrParse))
	}
}

// takeLine accumulates bytes until LF, returning the completed line
// without its CRLF. ok is false when the line is still incomplete.
func (p *ResponseParser) takeLine(data []byte) (line string, rest []byte, ok bool, err error) {
	for i, b := range data {
		if b == '\n' {
			p.line = append(p.line, data[:i]...)
			s := strings.TrimSuffix(string(p.line), "\r")
			p.line = p.line[:0]
			return s, data[i+1:], true, nil
		}
	}
	p.line = append(p.line, data...)
	if len(p.line) > p.maxLine {
		return "", nil, false, fmt.Errorf("%w: line exceeds %d bytes", ErrParse, p.maxLine)
	}
	return "", nil, false, nil
}

func (p *ResponseParser) consumeLine(line string) error {
	switch p.state {
	case stateStatusLine:
		return p.consumeStatusLine(line)
	case stateHeaders:
		if line == "" {
			return p.endOfHeaders()
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return fmt.Errorf("%w: malformed field line %q", ErrParse, line)
		}
		if p.hdr.Fields == nil {
			p.hdr.Fields = Header{}
		}
		p.hdr.Fields.Add(strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]))
		return nil
	case stateChunkSize:
		return p.consumeChunkSize(line)
	case stateTrailer:
		// Trailer fields are discarded.
		if line == "" {
			p.state = stateDone
		}
		return nil
	}
	return fmt.Errorf("%w: unexpected line", ErrParse)
}

func (p *ResponseParser) consumeStatusLine(line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/1.") {
		return fmt.Errorf("%w: malformed status line %q", ErrParse, line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return fmt.Errorf("%w: bad status code in %q", ErrParse, line)
	}
	p.hdr.Proto = parts[0]
	p.hdr.Status = code
	if len(parts) == 3 {
		p.hdr.Reason = parts[2]
	}
	p.state = stateHeaders
	return nil
}

// endOfHeaders picks the body framing: no-body statuses and zero-length
// bodies complete immediately, chunked bodies go through the chunk
// machine, otherwise Content-Length or close-delimited.
func (p *ResponseParser) endOfHeaders() error {
	p.hdr.ContentLength = -1
	cl := p.hdr.Fields.Get("Content-Length")
	switch {
	case p.hdr.chunked():
		if cl != "" {
			return fmt.Errorf("%w: both Content-Length and chunked coding", ErrParse)
		}
		p.state = stateChunkSize
	case p.hdr.noBody():
		p.hdr.ContentLength = 0
		p.state = stateDone
	case cl != "":
		n, err := parseContentLength(cl)
		if err != nil {
			return err
		}
		p.hdr.ContentLength = n
		if n == 0 {
			p.state = stateDone
		} else {
			p.remain = n
			p.state = stateBodyFixed
		}
	default:
		p.state = stateBodyToEOF
	}
	p.headerDone = true
	return nil
}

func (p *ResponseParser) consumeChunkSize(line string) error {
	if i := strings.IndexByte(line, ';'); i >= 0 { // strip chunk extensions
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return fmt.Errorf("%w: empty chunk-size line", ErrParse)
	}
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("%w: bad chunk size %q", ErrParse, line)
	}
	if n == 0 {
		p.state = stateTrailer
		return nil
	}
	p.remain = n
	p.state = stateChunkData
	return nil
}

func (p *ResponseParser) fail(err error) error {
	p.state = stateFailed
	return err
}
