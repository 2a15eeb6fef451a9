package webclient

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHeaderBlock_SplitAcrossReceives(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"

	for _, maxRead := range []int{1, 2, 3, 4, 7, 0} {
		s := newMemorySocket("localhost", 80)
		s.in = []byte(raw)
		s.maxRead = maxRead

		block, leftover, err := readHeaderBlock(s, nil)
		require.NoError(t, err, "maxRead=%d", maxRead)
		assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n", string(block))
		assert.Equal(t, "hello", string(leftover)+string(s.in), "maxRead=%d", maxRead)
	}
}

func TestReadHeaderBlock_TooLarge(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	s.in = []byte("HTTP/1.1 200 OK\r\nX-Big: " + strings.Repeat("a", ResponseHeaderBufferSize) + "\r\n\r\n")

	_, _, err := readHeaderBlock(s, nil)

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestReadHeaderBlock_ConnectionClosed(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	s.in = []byte("HTTP/1.1 200 OK\r\n")

	_, _, err := readHeaderBlock(s, nil)

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestParseStatusLine(t *testing.T) {
	tests := []struct {
		line        string
		code        int
		description string
		wantErr     bool
	}{
		{"HTTP/1.1 200 OK", 200, "OK", false},
		{"HTTP/1.0 404 Not Found", 404, "Not Found", false},
		{"http/1.1 503 Service Unavailable", 503, "Service Unavailable", false},
		{"HTTP/1.1 204", 204, "", false},
		{"HTTP/2 200 OK", 0, "", true},
		{"ICY 200 OK", 0, "", true},
		{"HTTP/1.1 abc OK", 0, "", true},
		{"HTTP/1.1", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			status, err := parseStatusLine(tt.line)
			if tt.wantErr {
				var respErr *ResponseError
				assert.ErrorAs(t, err, &respErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.code, status.code)
			assert.Equal(t, tt.description, status.description)
		})
	}
}

func TestParseStatusAndHeaders(t *testing.T) {
	block := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"X-Time:  12:30:00 \r\n" +
		"Content-Length: 12\r\n\r\n"

	status, h, err := parseStatusAndHeaders([]byte(block))
	require.NoError(t, err)

	assert.Equal(t, 200, status.code)
	assert.Equal(t, "text/plain; charset=utf-8", h.Get("content-type"))
	assert.Equal(t, "12:30:00", h.Get("X-Time"))
	require.NotNil(t, h.ContentLength)
	assert.Equal(t, int64(12), *h.ContentLength)
}

func TestParseStatusAndHeaders_BadContentLength(t *testing.T) {
	_, _, err := parseStatusAndHeaders([]byte("HTTP/1.1 200 OK\r\nContent-Length: twelve\r\n\r\n"))

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Contains(t, err.Error(), "content length")
}

func TestBodyStream_LeftoverThenSocket(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	s.in = []byte(" world")

	b := newBodyStream(s, []byte("hello"), 11, nil)
	assert.Equal(t, 5, b.BufferAvailable())
	assert.Equal(t, 6, b.SocketAvailable())
	assert.Equal(t, 11, b.Available())

	data, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, int64(11), b.Position())
}

func TestBodyStream_BoundedByLength(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	s.in = []byte("defNEXT")

	b := newBodyStream(s, []byte("abc"), 6, nil)
	data, err := io.ReadAll(b)
	require.NoError(t, err)

	assert.Equal(t, "abcdef", string(data))
	assert.Equal(t, "NEXT", string(s.in))
}

func TestBodyStream_ShortBody(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	b := newBodyStream(s, []byte("abc"), 10, nil)

	_, err := io.ReadAll(b)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestBodyStream_PeekDoesNotAdvance(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	s.in = []byte("cdef")
	b := newBodyStream(s, []byte("ab"), -1, nil)

	p := make([]byte, 4)
	n, err := b.Peek(p)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(p[:n]))
	assert.Equal(t, int64(0), b.Position())

	n, err = b.Peek(p)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(p[:n]))

	data, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestBodyStream_CloseReleasesOnce(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	released := 0
	b := newBodyStream(s, nil, 0, func(Socket) { released++ })

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, released)

	_, err := b.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrResponseClosed)
}
