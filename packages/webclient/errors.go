package webclient

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupported is returned by stream operations the pipeline does not offer (seek, truncate, reading a request body)
	ErrUnsupported = errors.New("webclient: operation not supported")
	// ErrBodyStarted is returned when Request.Body is called more than once
	ErrBodyStarted = errors.New("webclient: Body() cannot be called more than once")
	// ErrBodyClosed is returned when writing to a request body after Close
	ErrBodyClosed = errors.New("webclient: write to closed request body")
	// ErrResponseClosed is returned when reading a response after Close
	ErrResponseClosed = errors.New("webclient: read from closed response")
	// ErrZeroSend is returned when the socket accepts no bytes of a pending send
	ErrZeroSend = errors.New("webclient: the socket returned 0 bytes sent")
	// ErrHeaderTooLarge is returned when the response header block does not fit the header buffer
	ErrHeaderTooLarge = errors.New("webclient: response header too large")
	// ErrMalformedChunk is returned for an unparsable chunk-size line
	ErrMalformedChunk = errors.New("webclient: the response chunk data is malformed")
)

// RequestError reports a failure while connecting or sending a request.
type RequestError struct {
	Op   string // connect, send, headers, close, url, body
	Host string
	Port int
	Msg  string
	Err  error
}

func (e *RequestError) Error() string {
	var sb strings.Builder
	sb.WriteString("request ")
	sb.WriteString(e.Op)
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Host != "" {
		fmt.Fprintf(&sb, " (%s)", hostPort(e.Host, e.Port))
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *RequestError) Unwrap() error { return e.Err }

// ResponseError reports a malformed response or a transport failure while reading one.
type ResponseError struct {
	Msg string
	Err error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return "response: " + e.Msg + ": " + e.Err.Error()
	}
	return "response: " + e.Msg
}

func (e *ResponseError) Unwrap() error { return e.Err }

// StatusError is returned instead of a response when the server answered with
// a status >= 400 and the caller asked for errors to be raised. The body has
// already been read into memory and the connection settled.
type StatusError struct {
	Code        int
	Description string
	Headers     *HeaderSet
	Body        []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Description)
}

func requestError(op, host string, port int, msg string, err error) error {
	var re *RequestError
	if errors.As(err, &re) {
		return err
	}
	return &RequestError{Op: op, Host: host, Port: port, Msg: msg, Err: err}
}

func responseError(msg string, err error) error {
	var re *ResponseError
	if errors.As(err, &re) {
		return err
	}
	return &ResponseError{Msg: msg, Err: err}
}
