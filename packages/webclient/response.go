package webclient

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
)

// DefaultKeepAliveTimeout applies when the server keeps the connection open
// without announcing a timeout.
const DefaultKeepAliveTimeout = 5 * time.Second

// Response is a parsed status line and header block with a streaming body.
// Close must be called to settle the connection.
type Response struct {
	StatusCode        int
	StatusDescription string
	Headers           *HeaderSet

	body    *bodyStream
	chunked *chunkedReader
	decoder *decompressReader
	stream  SocketStream

	policy DrainPolicy
	logger *zap.Logger
	closed bool
}

type responseOptions struct {
	method       string
	throwOnError bool
	policy       DrainPolicy
	release      func(Socket)
	logger       *zap.Logger
}

// readResponse parses the response waiting on socket. When it fails the
// socket is force-closed and handed to release.
func readResponse(socket Socket, opts responseOptions) (*Response, error) {
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}
	abort := func(err error) (*Response, error) {
		socket.SetForceClose(true)
		if opts.release != nil {
			opts.release(socket)
		} else {
			_ = socket.Close()
		}
		return nil, err
	}

	block, leftover, err := readHeaderBlock(socket, nil)
	if err != nil {
		return abort(err)
	}
	status, headers, err := parseStatusAndHeaders(block)
	for err == nil && status.code == StatusContinue {
		if block, leftover, err = readHeaderBlock(socket, leftover); err == nil {
			status, headers, err = parseStatusAndHeaders(block)
		}
	}
	if err != nil {
		return abort(err)
	}
	headers.Hostname = socket.Hostname()
	headers.Port = socket.Port()

	r := &Response{
		StatusCode:        status.code,
		StatusDescription: status.description,
		Headers:           headers,
		policy:            opts.policy,
		logger:            opts.logger,
	}

	if !r.ConnectionClose() {
		timeout := DefaultKeepAliveTimeout
		if strings.EqualFold(r.Connection(), "keep-alive") {
			if t, ok := r.KeepAliveTimeout(); ok && t > 0 {
				timeout = t
			}
		}
		socket.MarkKeepAlive(timeout)
	}

	// a HEAD response describes a body it never sends
	head := strings.EqualFold(opts.method, "HEAD")

	length := int64(-1)
	switch {
	case head:
		length = 0
	case r.Chunked():
	case headers.ContentLength != nil:
		length = *headers.ContentLength
	case r.StatusCode == StatusNoContent || r.StatusCode == StatusNotModified || r.StatusCode < StatusOK:
		length = 0
	}

	r.body = newBodyStream(socket, leftover, length, opts.release)
	r.stream = r.body
	if r.Chunked() && !head {
		r.chunked = newChunkedReader(r.body)
		r.stream = r.chunked
	}
	if enc, ok := supportedEncoding(r.ContentEncoding()); ok && !head {
		r.decoder = newDecompressReader(r.stream, enc)
		r.stream = r.decoder
	}

	if opts.throwOnError && r.StatusCode >= 400 {
		body, readErr := r.ReadAll()
		_ = r.Close()
		if readErr != nil {
			return nil, readErr
		}
		return nil, &StatusError{
			Code:        r.StatusCode,
			Description: r.StatusDescription,
			Headers:     r.Headers,
			Body:        body,
		}
	}

	return r, nil
}

// Read reads the decoded body
func (r *Response) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrResponseClosed
	}
	return r.stream.Read(p)
}

// Body returns the outermost stream of the body chain
func (r *Response) Body() SocketStream {
	return r.stream
}

// ReadAll reads the rest of the decoded body into memory
func (r *Response) ReadAll() ([]byte, error) {
	if r.closed {
		return nil, ErrResponseClosed
	}
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	if _, err := bb.ReadFrom(r.stream); err != nil {
		return nil, err
	}
	return append([]byte(nil), bb.B...), nil
}

// Close settles the connection: the unread body is drained when that is
// cheap, otherwise the socket is marked to be closed. The socket is then
// handed back to the client.
func (r *Response) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	r.settle()
	if r.decoder != nil {
		_ = r.decoder.Close()
	}
	return r.body.Close()
}

// Connection returns the Connection header
func (r *Response) Connection() string { return r.Headers.Get("Connection") }

// ConnectionClose reports whether the server asked to close the connection
func (r *Response) ConnectionClose() bool {
	return strings.EqualFold(strings.TrimSpace(r.Connection()), "close")
}

// KeepAlive returns the Keep-Alive header
func (r *Response) KeepAlive() string { return r.Headers.Get("Keep-Alive") }

// KeepAliveTimeout returns the timeout=N value of the Keep-Alive header
func (r *Response) KeepAliveTimeout() (time.Duration, bool) {
	ka := r.KeepAlive()
	i := strings.Index(ka, "timeout=")
	if i < 0 {
		return 0, false
	}
	v := ka[i+len("timeout="):]
	if end := strings.IndexAny(v, " ,"); end >= 0 {
		v = v[:end]
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func (r *Response) ContentType() string { return r.Headers.Get("Content-Type") }

func (r *Response) ContentEncoding() string { return r.Headers.Get("Content-Encoding") }

func (r *Response) TransferEncoding() string { return r.Headers.Get("Transfer-Encoding") }

// Chunked reports whether the body uses chunked transfer encoding
func (r *Response) Chunked() bool {
	return strings.EqualFold(strings.TrimSpace(r.TransferEncoding()), "chunked")
}

// ContentLength returns the announced body length, or -1 when none was sent
func (r *Response) ContentLength() int64 {
	if r.Headers.ContentLength == nil {
		return -1
	}
	return *r.Headers.ContentLength
}

var _ io.ReadCloser = (*Response)(nil)
