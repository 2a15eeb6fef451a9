package webclient

import (
	"errors"
	"fmt"
	"io"
)

const (
	// RequestChunkSize is the largest chunk the request encoder emits
	RequestChunkSize = 2048

	chunkHeaderPeekSize = 16
	maxChunkLineSize    = 256
)

var chunkTerminator = []byte("0\r\n\r\n")

// chunkedWriter frames every write as one or more "{HEX}\r\n{data}\r\n"
// chunks of at most RequestChunkSize bytes.
type chunkedWriter struct {
	w     io.Writer
	frame []byte
}

func newChunkedWriter(w io.Writer) *chunkedWriter {
	return &chunkedWriter{w: w, frame: make([]byte, 0, RequestChunkSize+16)}
}

func (c *chunkedWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := min(len(p), RequestChunkSize)

		c.frame = fmt.Appendf(c.frame[:0], "%X\r\n", n)
		c.frame = append(c.frame, p[:n]...)
		c.frame = append(c.frame, '\r', '\n')

		if _, err := c.w.Write(c.frame); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

// Close writes the terminal zero-size chunk. The underlying writer stays open.
func (c *chunkedWriter) Close() error {
	_, err := c.w.Write(chunkTerminator)
	return err
}

type chunkDescriptor struct {
	remaining int64
}

// peekStream is a SocketStream that can also look ahead without consuming.
type peekStream interface {
	SocketStream
	Peek(p []byte) (int, error)
}

var errIncompleteChunkHeader = errors.New("incomplete chunk header")

// chunkedReader decodes a chunked body. Chunk headers are found by peeking
// at the source so only the header bytes themselves are consumed.
type chunkedReader struct {
	src      peekStream
	chunk    *chunkDescriptor
	done     bool
	position int64
	peek     [chunkHeaderPeekSize]byte
}

func newChunkedReader(src peekStream) *chunkedReader {
	return &chunkedReader{src: src}
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if r.chunk == nil {
		chunk, err := r.nextChunk()
		if err != nil {
			return 0, err
		}
		if chunk.remaining == 0 {
			if err := r.skipTrailers(); err != nil {
				return 0, err
			}
			r.done = true
			return 0, io.EOF
		}
		r.chunk = chunk
	}

	if int64(len(p)) > r.chunk.remaining {
		p = p[:r.chunk.remaining]
	}

	n, err := r.src.Read(p)
	r.chunk.remaining -= int64(n)
	r.position += int64(n)

	if r.chunk.remaining == 0 {
		r.chunk = nil
		if cerr := r.skipLineEnd(); cerr != nil {
			return n, cerr
		}
	}

	if errors.Is(err, io.EOF) {
		if n > 0 {
			return n, nil
		}
		return 0, io.ErrUnexpectedEOF
	}
	return n, err
}

// Done reports whether the terminal chunk has been consumed
func (r *chunkedReader) Done() bool { return r.done }

func (r *chunkedReader) nextChunk() (*chunkDescriptor, error) {
	n, err := r.src.Peek(r.peek[:])
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	size, headerLen, perr := parseChunkHeader(r.peek[:n])
	if errors.Is(perr, errIncompleteChunkHeader) && n < len(r.peek) {
		return r.readChunkLine()
	}
	if perr != nil {
		return nil, responseError("the response chunk data is malformed", ErrMalformedChunk)
	}

	if err := r.discard(headerLen); err != nil {
		return nil, err
	}
	return &chunkDescriptor{remaining: size}, nil
}

// readChunkLine consumes a chunk header that has only partially arrived
// byte by byte up to its line feed.
func (r *chunkedReader) readChunkLine() (*chunkDescriptor, error) {
	line := make([]byte, 0, chunkHeaderPeekSize)
	var b [1]byte
	for len(line) < maxChunkLineSize {
		n, err := r.src.Read(b[:])
		if n == 1 {
			line = append(line, b[0])
			// a bare leading line end belongs to the previous chunk
			if b[0] == '\n' && len(trimLeadingLineEnd(line)) > 0 {
				size, _, perr := parseChunkHeader(line)
				if perr != nil {
					return nil, responseError("the response chunk data is malformed", ErrMalformedChunk)
				}
				return &chunkDescriptor{remaining: size}, nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return nil, responseError("the response chunk data is malformed", ErrMalformedChunk)
}

// parseChunkHeader parses "[CRLF]{hex}[;ext]CRLF" at the start of b and
// returns the chunk size and the number of header bytes.
func parseChunkHeader(b []byte) (int64, int, error) {
	i := len(b) - len(trimLeadingLineEnd(b))

	var size int64
	digits := 0
	for ; i < len(b) && b[i] != '\r' && b[i] != '\n' && b[i] != ';'; i++ {
		v, ok := hexValue(b[i])
		if !ok || digits == 15 {
			return 0, 0, ErrMalformedChunk
		}
		size = size*16 + int64(v)
		digits++
	}
	if i < len(b) && b[i] == ';' {
		for i < len(b) && b[i] != '\r' && b[i] != '\n' {
			i++
		}
	}

	switch {
	case i >= len(b):
		return 0, 0, errIncompleteChunkHeader
	case digits == 0:
		return 0, 0, ErrMalformedChunk
	case b[i] == '\n':
		return size, i + 1, nil
	case i+1 >= len(b):
		return 0, 0, errIncompleteChunkHeader
	case b[i+1] == '\n':
		return size, i + 2, nil
	default:
		return 0, 0, ErrMalformedChunk
	}
}

func trimLeadingLineEnd(b []byte) []byte {
	if len(b) > 0 && b[0] == '\n' {
		return b[1:]
	}
	if len(b) > 1 && b[0] == '\r' && b[1] == '\n' {
		return b[2:]
	}
	return b
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// skipLineEnd eats the CRLF that closes a chunk's data. A lone CR is also
// consumed; the LF that follows it is skipped by the next header parse.
func (r *chunkedReader) skipLineEnd() error {
	var b [2]byte
	n, err := r.src.Peek(b[:])
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	switch {
	case n == 2 && b[0] == '\r' && b[1] == '\n':
		return r.discard(2)
	case b[0] == '\r' || b[0] == '\n':
		return r.discard(1)
	}
	return responseError("the response chunk data is malformed", ErrMalformedChunk)
}

// skipTrailers consumes trailer fields up to and including the empty line
// that ends the body.
func (r *chunkedReader) skipTrailers() error {
	var b [1]byte
	lineLen := 0
	for {
		n, err := r.src.Read(b[:])
		if n == 1 {
			switch b[0] {
			case '\n':
				if lineLen == 0 {
					return nil
				}
				lineLen = 0
			case '\r':
			default:
				lineLen++
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (r *chunkedReader) discard(n int) error {
	var buf [chunkHeaderPeekSize]byte
	for n > 0 {
		m, err := r.src.Read(buf[:min(n, len(buf))])
		n -= m
		if err != nil && n > 0 {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if m == 0 && err == nil {
			return io.ErrUnexpectedEOF
		}
	}
	return nil
}

func (r *chunkedReader) Available() int       { return r.src.Available() }
func (r *chunkedReader) BufferAvailable() int { return r.src.BufferAvailable() }
func (r *chunkedReader) SocketAvailable() int { return r.src.SocketAvailable() }
func (r *chunkedReader) SocketReceive(p []byte) (int, error) {
	return r.src.SocketReceive(p)
}
func (r *chunkedReader) ForceClose()     { r.src.ForceClose() }
func (r *chunkedReader) Position() int64 { return r.position }
