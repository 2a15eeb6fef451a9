package webclient

import (
	"errors"
	"io"
	"strings"
)

// RequestBufferSize is the size of the outgoing write buffer
const RequestBufferSize = 7 * 1024

// bufferedWriter collects small writes and sends them to the socket once the
// buffer would overflow or on Close.
type bufferedWriter struct {
	socket Socket
	buf    []byte
	n      int
	sent   int64
}

func newBufferedWriter(socket Socket) *bufferedWriter {
	return &bufferedWriter{socket: socket, buf: make([]byte, RequestBufferSize)}
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	if w.n+len(p) >= len(w.buf) {
		if err := w.send(w.buf[:w.n]); err != nil {
			return 0, err
		}
		w.n = 0
		if err := w.send(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}

// Flush sends whatever is buffered and asks the socket to push it out
func (w *bufferedWriter) Flush() error {
	if w.n > 0 {
		if err := w.send(w.buf[:w.n]); err != nil {
			return err
		}
		w.n = 0
	}
	if err := w.socket.Flush(); err != nil {
		return w.fail("error flushing request", err)
	}
	return nil
}

func (w *bufferedWriter) Close() error {
	return w.Flush()
}

func (w *bufferedWriter) send(p []byte) error {
	for len(p) > 0 {
		n, err := w.socket.Send(p)
		w.sent += int64(n)
		if err != nil {
			return w.fail("error sending request", err)
		}
		if n == 0 {
			return w.fail("failed to send buffer to remote", ErrZeroSend)
		}
		p = p[n:]
	}
	return nil
}

func (w *bufferedWriter) fail(msg string, err error) error {
	return requestError("send", w.socket.Hostname(), w.socket.Port(), msg, err)
}

// RequestBody is the writable body of a request. The first write decides the
// framing: a preset content length is sent as-is, otherwise the body is
// chunk-encoded. Headers go out immediately before the first body byte.
type RequestBody struct {
	headers *HeaderSet
	out     *bufferedWriter
	chunked *chunkedWriter
	started bool
	closed  bool
	written int64
	err     error
}

func newRequestBody(socket Socket, headers *HeaderSet) *RequestBody {
	return &RequestBody{headers: headers, out: newBufferedWriter(socket)}
}

func (b *RequestBody) Write(p []byte) (int, error) {
	if b.closed {
		return 0, ErrBodyClosed
	}
	if b.err != nil {
		return 0, b.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	if !b.started {
		b.started = true
		if b.headers.ContentLength == nil {
			b.headers.Set("Transfer-Encoding", "chunked")
			b.chunked = newChunkedWriter(b.out)
		}
		if err := b.sendHeaders(); err != nil {
			b.err = err
			return 0, err
		}
	}

	var err error
	if b.chunked != nil {
		_, err = b.chunked.Write(p)
	} else {
		_, err = b.out.Write(p)
	}
	if err != nil {
		b.err = err
		return 0, err
	}

	b.written += int64(len(p))
	return len(p), nil
}

// WriteString writes s to the body
func (b *RequestBody) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// Flush pushes buffered body bytes to the socket. Headers are not sent by a
// Flush before the first write.
func (b *RequestBody) Flush() error {
	if b.closed || !b.started {
		return nil
	}
	if err := b.out.Flush(); err != nil {
		b.err = err
		return err
	}
	return nil
}

// Close finishes the body. When nothing was written the headers are sent now,
// with Content-Length: 0 forced for PUT and POST.
func (b *RequestBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	var headerErr error
	if !b.started {
		b.started = true
		b.headers.Del("Transfer-Encoding")
		if m := strings.ToUpper(b.headers.Method); m == "PUT" || m == "POST" {
			b.headers.SetContentLength(0)
		}
		headerErr = b.sendHeaders()
	}

	var closeErr error
	if b.chunked != nil {
		closeErr = b.chunked.Close()
	}
	if err := b.out.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if closeErr != nil {
		closeErr = requestError("close", b.headers.Hostname, b.headers.Port,
			"failed to close socket to remote host", closeErr)
	}

	if err := errors.Join(headerErr, closeErr); err != nil {
		if b.err == nil {
			b.err = err
		}
		return err
	}
	return nil
}

// Written returns the number of body bytes accepted so far
func (b *RequestBody) Written() int64 { return b.written }

// Chunked reports whether the body is being chunk-encoded
func (b *RequestBody) Chunked() bool { return b.chunked != nil }

func (b *RequestBody) Read([]byte) (int, error) { return 0, ErrUnsupported }

func (b *RequestBody) Seek(int64, int) (int64, error) { return 0, ErrUnsupported }

func (b *RequestBody) Truncate(int64) error { return ErrUnsupported }

func (b *RequestBody) sendHeaders() error {
	if _, err := b.out.Write(b.headers.Serialize()); err != nil {
		return requestError("headers", b.headers.Hostname, b.headers.Port,
			"unable to send headers to the remote host", err)
	}
	return nil
}

var _ io.WriteCloser = (*RequestBody)(nil)
