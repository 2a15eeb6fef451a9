package webclient

import (
	"io"
	"time"

	"go.uber.org/zap"
)

// Request is a single exchange with one host. Build it with Client.NewRequest,
// adjust Headers, optionally write a body via Body, then call Response.
type Request struct {
	Headers *HeaderSet
	// Timeout is applied to the connect and to every send and receive
	Timeout time.Duration
	// ThrowOnError turns a status >= 400 into a *StatusError
	ThrowOnError bool

	client   *Client
	socket   Socket
	reused   bool
	body     *RequestBody
	response *Response
	err      error
}

// Method returns the request method
func (r *Request) Method() string { return r.Headers.Method }

// SetMethod sets the request method
func (r *Request) SetMethod(method string) { r.Headers.Method = method }

func (r *Request) UserAgent() string            { return r.Headers.Get("User-Agent") }
func (r *Request) SetUserAgent(v string)        { r.Headers.Set("User-Agent", v) }
func (r *Request) Accept() string               { return r.Headers.Get("Accept") }
func (r *Request) SetAccept(v string)           { r.Headers.Set("Accept", v) }
func (r *Request) AcceptEncoding() string       { return r.Headers.Get("Accept-Encoding") }
func (r *Request) SetAcceptEncoding(v string)   { r.Headers.Set("Accept-Encoding", v) }
func (r *Request) ContentType() string          { return r.Headers.Get("Content-Type") }
func (r *Request) SetContentType(v string)      { r.Headers.Set("Content-Type", v) }
func (r *Request) ContentEncoding() string      { return r.Headers.Get("Content-Encoding") }
func (r *Request) SetContentEncoding(v string)  { r.Headers.Set("Content-Encoding", v) }
func (r *Request) TransferEncoding() string     { return r.Headers.Get("Transfer-Encoding") }
func (r *Request) SetTransferEncoding(v string) { r.Headers.Set("Transfer-Encoding", v) }

// SetContentLength announces the body length, which disables chunked framing
func (r *Request) SetContentLength(n int64) { r.Headers.SetContentLength(n) }

// Reused reports whether the request went out on a cached connection
func (r *Request) Reused() bool { return r.reused }

// Body connects and returns the body stream. Headers are sent with the first
// write or on Close. It can only be called once.
func (r *Request) Body() (*RequestBody, error) {
	if r.socket != nil {
		return nil, requestError("body", r.Headers.Hostname, r.Headers.Port,
			"Body() cannot be called more than once", ErrBodyStarted)
	}

	socket, reused, err := r.client.connect(r.Headers.Hostname, r.Headers.Port, r.Headers.Secure, r.Timeout)
	if err != nil {
		return nil, requestError("connect", r.Headers.Hostname, r.Headers.Port,
			"unable to connect to the remote host", err)
	}
	r.socket = socket
	r.reused = reused

	r.body = newRequestBody(socket, r.Headers)
	return r.body, nil
}

// Send writes body as the complete request body with a fixed length
func (r *Request) Send(body []byte) error {
	if len(body) > 0 {
		r.SetContentLength(int64(len(body)))
	}
	w, err := r.Body()
	if err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

// SendStream copies src into a chunked request body
func (r *Request) SendStream(src io.Reader) error {
	w, err := r.Body()
	if err != nil {
		return err
	}
	buf := make([]byte, RequestChunkSize)
	if _, err := io.CopyBuffer(w, src, buf); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Response finishes the request and reads the response headers. An empty
// body is sent when Body was never called. Later calls return the same
// response or error.
func (r *Request) Response() (*Response, error) {
	if r.response != nil || r.err != nil {
		return r.response, r.err
	}

	if r.body == nil {
		if _, err := r.Body(); err != nil {
			r.err = err
			return nil, err
		}
	}
	if !r.body.closed {
		if err := r.body.Close(); err != nil {
			r.abort(err)
			return nil, r.err
		}
	}
	if r.body.err != nil {
		r.abort(r.body.err)
		return nil, r.err
	}

	r.response, r.err = readResponse(r.socket, responseOptions{
		method:       r.Headers.Method,
		throwOnError: r.ThrowOnError,
		policy:       r.client.drain,
		release:      r.client.Release,
		logger:       r.client.logger,
	})
	return r.response, r.err
}

func (r *Request) abort(err error) {
	r.err = err
	r.client.logger.Debug("request failed, closing connection",
		zap.String("host", r.Headers.Hostname), zap.Int("port", r.Headers.Port), zap.Error(err))
	r.socket.SetForceClose(true)
	r.client.Release(r.socket)
}
