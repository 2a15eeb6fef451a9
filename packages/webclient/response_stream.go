package webclient

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
)

// ResponseHeaderBufferSize bounds the status line plus header block
const ResponseHeaderBufferSize = 7 * 1024

var headerTerminator = []byte("\r\n\r\n")

// SocketStream is implemented by every layer of the response body chain.
// Layers that transform bytes forward the socket queries to the layer they
// wrap.
type SocketStream interface {
	io.Reader
	// Available is BufferAvailable plus SocketAvailable
	Available() int
	// BufferAvailable is the number of body bytes captured with the headers and not yet read
	BufferAvailable() int
	// SocketAvailable is the number of bytes the socket can deliver without blocking
	SocketAvailable() int
	// SocketReceive reads straight from the socket, bypassing buffered bytes
	SocketReceive(p []byte) (int, error)
	// ForceClose stops the socket from being reused
	ForceClose()
	// Position is the number of bytes this layer has returned from Read
	Position() int64
}

// readHeaderBlock receives until the blank line ending a header block. Bytes
// in initial are searched first. It returns the block including its
// terminator and whatever followed it.
func readHeaderBlock(socket Socket, initial []byte) ([]byte, []byte, error) {
	buf := make([]byte, ResponseHeaderBufferSize)
	n := copy(buf, initial)
	searchFrom := 0

	for {
		if i := bytes.Index(buf[searchFrom:n], headerTerminator); i >= 0 {
			end := searchFrom + i + len(headerTerminator)
			return buf[:end], buf[end:n], nil
		}
		// the terminator may straddle the next receive
		searchFrom = max(0, n-len(headerTerminator)+1)

		if n == len(buf) {
			return nil, nil, responseError("the response headers exceed the header buffer", ErrHeaderTooLarge)
		}

		m, err := socket.Receive(buf[n:], false)
		n += m
		if m > 0 {
			continue
		}
		switch {
		case err == nil:
			return nil, nil, responseError("the socket returned 0 bytes while reading the response headers", io.ErrUnexpectedEOF)
		case errors.Is(err, io.EOF):
			return nil, nil, responseError("the connection closed before the response headers were received", io.ErrUnexpectedEOF)
		default:
			return nil, nil, responseError("unable to read the response headers", err)
		}
	}
}

type statusLine struct {
	code        int
	description string
}

// parseStatusAndHeaders parses a header block ending in CRLFCRLF into the
// status line and a HeaderSet.
func parseStatusAndHeaders(block []byte) (statusLine, *HeaderSet, error) {
	lines := strings.Split(string(bytes.TrimSuffix(block, headerTerminator)), "\r\n")

	status, err := parseStatusLine(lines[0])
	if err != nil {
		return statusLine{}, nil, err
	}

	h := NewHeaderSet()
	h.Method = ""
	h.URI = ""
	for _, line := range lines[1:] {
		sep := strings.IndexByte(line, ':')
		if sep < 0 {
			continue
		}
		name := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])
		if name == "" {
			continue
		}

		if strings.EqualFold(name, "Content-Length") {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return statusLine{}, nil, responseError("the response content length is invalid: "+strconv.Quote(value), err)
			}
			h.SetContentLength(n)
			continue
		}
		h.Set(name, value)
	}

	return status, h, nil
}

func parseStatusLine(line string) (statusLine, error) {
	const directive = "HTTP/1."
	if len(line) < len(directive) || !strings.EqualFold(line[:len(directive)], directive) {
		return statusLine{}, responseError("the response is missing the HTTP directive", nil)
	}

	sp := strings.IndexByte(line, ' ')
	if sp < 0 {
		return statusLine{}, responseError("the response status line is malformed: "+strconv.Quote(line), nil)
	}
	rest := strings.TrimLeft(line[sp+1:], " ")

	codeText, description, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeText)
	if err != nil || code < 100 || code > 999 {
		return statusLine{}, responseError("the response status code is invalid: "+strconv.Quote(codeText), err)
	}

	return statusLine{code: code, description: strings.TrimSpace(description)}, nil
}

// bodyStream serves the body bytes that arrived with the headers first and
// then reads from the socket. A known length bounds every read.
type bodyStream struct {
	socket   Socket
	leftover []byte
	position int64
	length   int64 // -1 when unknown
	release  func(Socket)
	eof      bool
	closed   bool
}

func newBodyStream(socket Socket, leftover []byte, length int64, release func(Socket)) *bodyStream {
	return &bodyStream{socket: socket, leftover: leftover, length: length, release: release}
}

func (b *bodyStream) Read(p []byte) (int, error) { return b.read(p, false) }

// Peek returns upcoming bytes without consuming them
func (b *bodyStream) Peek(p []byte) (int, error) { return b.read(p, true) }

func (b *bodyStream) read(p []byte, peek bool) (int, error) {
	if b.closed {
		return 0, ErrResponseClosed
	}
	if b.length >= 0 {
		remaining := b.length - b.position
		if remaining <= 0 {
			return 0, io.EOF
		}
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}
	if len(p) == 0 {
		return 0, nil
	}

	if len(b.leftover) > 0 {
		n := copy(p, b.leftover)
		if !peek {
			b.leftover = b.leftover[n:]
			b.position += int64(n)
			return n, nil
		}
		if n < len(p) && b.socket.Available() > 0 {
			m, _ := b.socket.Receive(p[n:], true)
			n += m
		}
		return n, nil
	}

	if b.eof {
		return 0, b.endOfStream()
	}

	n, err := b.socket.Receive(p, peek)
	if !peek {
		b.position += int64(n)
	}
	if n > 0 {
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		b.eof = true
		return 0, b.endOfStream()
	}
	return 0, responseError("unable to read the response body", err)
}

func (b *bodyStream) endOfStream() error {
	if b.length >= 0 && b.position < b.length {
		return io.ErrUnexpectedEOF
	}
	return io.EOF
}

func (b *bodyStream) Available() int { return b.BufferAvailable() + b.SocketAvailable() }

func (b *bodyStream) BufferAvailable() int { return len(b.leftover) }

func (b *bodyStream) SocketAvailable() int {
	if b.closed {
		return 0
	}
	return b.socket.Available()
}

func (b *bodyStream) SocketReceive(p []byte) (int, error) {
	if b.closed {
		return 0, ErrResponseClosed
	}
	return b.socket.Receive(p, false)
}

func (b *bodyStream) ForceClose() { b.socket.SetForceClose(true) }

func (b *bodyStream) Position() int64 { return b.position }

// Close hands the socket back exactly once
func (b *bodyStream) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.leftover = nil
	if b.release != nil {
		b.release(b.socket)
		return nil
	}
	return b.socket.Close()
}

var _ peekStream = (*bodyStream)(nil)
