package webclient

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeaders(method string) *HeaderSet {
	h := NewHeaderSet()
	h.Method = method
	h.Hostname = "www.test.com"
	return h
}

func TestBufferedWriter_BuffersUntilClose(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	w := newBufferedWriter(s)

	_, err := w.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = w.Write([]byte("world"))
	require.NoError(t, err)
	assert.Empty(t, s.Sent())

	require.NoError(t, w.Close())
	assert.Equal(t, "hello world", s.Sent())
	assert.Equal(t, 1, s.flushes)
}

func TestBufferedWriter_LargeWriteGoesDirect(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	w := newBufferedWriter(s)

	_, err := w.Write([]byte("head"))
	require.NoError(t, err)

	big := bytes.Repeat([]byte("z"), RequestBufferSize)
	n, err := w.Write(big)
	require.NoError(t, err)
	assert.Equal(t, len(big), n)

	assert.Equal(t, "head"+string(big), s.Sent())
	assert.Equal(t, int64(len(big)+4), w.sent)
}

func TestBufferedWriter_ZeroSendIsFatal(t *testing.T) {
	s := newMemorySocket("www.test.com", 8080)
	s.zeroSend = true
	w := newBufferedWriter(s)

	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)

	err = w.Close()
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.ErrorIs(t, err, ErrZeroSend)
	assert.Equal(t, "www.test.com", reqErr.Host)
	assert.Equal(t, 8080, reqErr.Port)
	assert.Contains(t, err.Error(), "www.test.com:8080")
}

func TestRequestBody_ChunkedWhenNoLength(t *testing.T) {
	for _, size := range []int{1, RequestChunkSize, 2*RequestChunkSize + 100} {
		s := newMemorySocket("www.test.com", 80)
		h := testHeaders("POST")
		body := newRequestBody(s, h)

		input := bytes.Repeat([]byte("q"), size)
		_, err := body.Write(input)
		require.NoError(t, err)
		require.NoError(t, body.Close())

		wire := s.Sent()
		head, rest, found := strings.Cut(wire, "\r\n\r\n")
		require.True(t, found)
		assert.Contains(t, head, "Transfer-Encoding: chunked")
		assert.NotContains(t, head, "Content-Length")
		assert.True(t, body.Chunked())
		assert.Equal(t, int64(size), body.Written())

		decoded, _ := decodeChunked(t, "", rest, 0)
		assert.Equal(t, input, decoded)
	}
}

func TestRequestBody_PresetLength(t *testing.T) {
	s := newMemorySocket("www.test.com", 80)
	h := testHeaders("PUT")
	h.SetContentLength(11)
	body := newRequestBody(s, h)

	_, err := body.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = body.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, body.Close())

	wire := s.Sent()
	assert.NotContains(t, wire, "Transfer-Encoding")
	assert.True(t, strings.HasSuffix(wire, "Content-Length: 11\r\n\r\nhello world"))
	assert.Len(t, wire, len(h.Serialize())+11)
	assert.False(t, body.Chunked())
}

func TestRequestBody_CloseWithoutWrites(t *testing.T) {
	tests := []struct {
		method     string
		wantLength bool
	}{
		{"PUT", true},
		{"POST", true},
		{"post", true},
		{"GET", false},
		{"DELETE", false},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			s := newMemorySocket("www.test.com", 80)
			h := testHeaders(tt.method)
			h.Set("Transfer-Encoding", "chunked")
			body := newRequestBody(s, h)

			require.NoError(t, body.Close())

			wire := s.Sent()
			assert.True(t, strings.HasSuffix(wire, "\r\n\r\n"))
			assert.NotContains(t, wire, "Transfer-Encoding")
			if tt.wantLength {
				assert.Contains(t, wire, "Content-Length: 0\r\n")
			} else {
				assert.NotContains(t, wire, "Content-Length")
			}
		})
	}
}

func TestRequestBody_BufferedWritesFormChunks(t *testing.T) {
	s := newMemorySocket("www.test.com", 80)
	body := newRequestBody(s, testHeaders("PUT"))

	w := bufio.NewWriter(body)
	_, _ = w.WriteString("hello world")
	_, _ = w.WriteString("hello world")
	require.NoError(t, w.Flush())
	_, _ = w.WriteString("hello world")
	require.NoError(t, w.Flush())
	require.NoError(t, body.Close())

	_, rest, _ := strings.Cut(s.Sent(), "\r\n\r\n")
	assert.Equal(t, "16\r\nhello worldhello world\r\nB\r\nhello world\r\n0\r\n\r\n", rest)
}

func TestRequestBody_Unsupported(t *testing.T) {
	body := newRequestBody(newMemorySocket("localhost", 80), NewHeaderSet())

	_, err := body.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = body.Seek(0, 0)
	assert.ErrorIs(t, err, ErrUnsupported)

	assert.ErrorIs(t, body.Truncate(0), ErrUnsupported)
}

func TestRequestBody_WriteAfterClose(t *testing.T) {
	body := newRequestBody(newMemorySocket("localhost", 80), NewHeaderSet())
	require.NoError(t, body.Close())

	_, err := body.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrBodyClosed)
	assert.NoError(t, body.Close())
}

func TestRequestBody_HeaderSendFailure(t *testing.T) {
	s := newMemorySocket("www.test.com", 80)
	s.zeroSend = true
	body := newRequestBody(s, testHeaders("POST"))

	// the header block alone stays buffered, so the failure surfaces on close
	_, err := body.Write([]byte("data"))
	require.NoError(t, err)

	err = body.Close()
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.ErrorIs(t, err, ErrZeroSend)
}

func TestRequestBody_EmptyWriteIsNoop(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	body := newRequestBody(s, testHeaders("POST"))

	n, err := body.Write(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, s.Sent())
	assert.False(t, body.Chunked())
}
