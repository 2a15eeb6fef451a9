package webclient

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeChunked(t *testing.T, leftover, socketBytes string, maxRead int) ([]byte, *chunkedReader) {
	t.Helper()
	s := newMemorySocket("localhost", 80)
	s.in = []byte(socketBytes)
	s.maxRead = maxRead

	r := newChunkedReader(newBodyStream(s, []byte(leftover), -1, nil))
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data, r
}

func TestChunkedWriter_Framing(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		chunks int
	}{
		{"empty", 0, 0},
		{"one byte", 1, 1},
		{"exact chunk", RequestChunkSize, 1},
		{"several chunks plus remainder", 3*RequestChunkSize + 17, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := bytes.Repeat([]byte("x"), tt.size)

			var wire bytes.Buffer
			w := newChunkedWriter(&wire)
			n, err := w.Write(input)
			require.NoError(t, err)
			assert.Equal(t, tt.size, n)
			require.NoError(t, w.Close())

			assert.True(t, strings.HasSuffix(wire.String(), "0\r\n\r\n"))
			if tt.size > 0 {
				assert.Equal(t, tt.chunks, strings.Count(wire.String(), "800\r\n")+boolToInt(tt.size%RequestChunkSize != 0))
			}

			decoded, r := decodeChunked(t, "", wire.String(), 0)
			assert.Equal(t, input, append([]byte{}, decoded...))
			assert.True(t, r.Done())
		})
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestChunkedWriter_UppercaseHex(t *testing.T) {
	var wire bytes.Buffer
	w := newChunkedWriter(&wire)

	_, err := w.Write([]byte("hello world"))
	require.NoError(t, err)

	assert.Equal(t, "B\r\nhello world\r\n", wire.String())
}

func TestParseChunkHeader(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		size      int64
		headerLen int
		err       error
	}{
		{"simple", "1A\r\n", 26, 4, nil},
		{"lowercase", "ff\r\nxx", 255, 4, nil},
		{"leading crlf", "\r\n5\r\nhello", 5, 5, nil},
		{"leading lf", "\n5\r\n", 5, 4, nil},
		{"bare lf", "5\nhello", 5, 2, nil},
		{"extension", "5;name=value\r\n", 5, 14, nil},
		{"terminal", "0\r\n\r\n", 0, 3, nil},
		{"incomplete", "12", 0, 0, errIncompleteChunkHeader},
		{"incomplete cr", "12\r", 0, 0, errIncompleteChunkHeader},
		{"not hex", "zz\r\n", 0, 0, ErrMalformedChunk},
		{"no digits", "\r\n\r\n", 0, 0, ErrMalformedChunk},
		{"cr without lf", "5\rx", 0, 0, ErrMalformedChunk},
		{"too many digits", "1234567890ABCDEF\r\n", 0, 0, ErrMalformedChunk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, headerLen, err := parseChunkHeader([]byte(tt.in))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, size)
			assert.Equal(t, tt.headerLen, headerLen)
		})
	}
}

func TestChunkedReader_BufferAndSocketInterleaved(t *testing.T) {
	body := "5\r\nhello\r\n1\r\n \r\n10\r\nworld, chunked!!\r\n0\r\n\r\n"
	expected := "hello world, chunked!!"

	for split := 0; split <= len(body); split++ {
		for _, maxRead := range []int{0, 1, 3} {
			decoded, r := decodeChunked(t, body[:split], body[split:], maxRead)
			require.Equal(t, expected, string(decoded), "split=%d maxRead=%d", split, maxRead)
			assert.True(t, r.Done())
		}
	}
}

func TestChunkedReader_Trailers(t *testing.T) {
	decoded, r := decodeChunked(t, "", "3\r\nabc\r\n0\r\nX-Checksum: 1\r\nX-Other: 2\r\n\r\n", 0)

	assert.Equal(t, "abc", string(decoded))
	assert.True(t, r.Done())
}

func TestChunkedReader_LeavesFollowingBytes(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	s.in = []byte("3\r\nabc\r\n0\r\n\r\nHTTP/1.1 200 OK")

	r := newChunkedReader(newBodyStream(s, nil, -1, nil))
	data, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, "abc", string(data))
	assert.Equal(t, "HTTP/1.1 200 OK", string(s.in))
}

func TestChunkedReader_Malformed(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	s.in = []byte("xyz\r\nabc\r\n0\r\n\r\n")

	r := newChunkedReader(newBodyStream(s, nil, -1, nil))
	_, err := io.ReadAll(r)

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestChunkedReader_Truncated(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	s.in = []byte("A\r\nabc")

	r := newChunkedReader(newBodyStream(s, nil, -1, nil))
	_, err := io.ReadAll(r)

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestChunkedReader_ForwardsSocketQueries(t *testing.T) {
	s := newMemorySocket("localhost", 80)
	s.in = []byte("0\r\n\r\n")

	r := newChunkedReader(newBodyStream(s, []byte("ab"), -1, nil))

	assert.Equal(t, 2, r.BufferAvailable())
	assert.Equal(t, 5, r.SocketAvailable())
	assert.Equal(t, 7, r.Available())

	r.ForceClose()
	assert.True(t, s.ForceClosed())
}
