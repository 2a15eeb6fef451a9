package webclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHeaderSet_Defaults(t *testing.T) {
	h := NewHeaderSet()

	assert.Equal(t, "GET", h.Method)
	assert.Equal(t, "/", h.URI)
	assert.Equal(t, "localhost", h.Hostname)
	assert.Equal(t, 80, h.Port)
	assert.False(t, h.Secure)
	assert.Nil(t, h.ContentLength)
	assert.Equal(t, 0, h.Len())
}

func TestHeaderSet_CaseInsensitive(t *testing.T) {
	h := NewHeaderSet()
	h.Set("Content-Type", "text/plain")

	assert.Equal(t, "text/plain", h.Get("content-type"))
	assert.Equal(t, "text/plain", h.Get("CONTENT-TYPE"))
	assert.True(t, h.Has("Content-type"))

	_, ok := h.Lookup("X-Missing")
	assert.False(t, ok)
	assert.Equal(t, "", h.Get("X-Missing"))
}

func TestHeaderSet_ReplaceKeepsPosition(t *testing.T) {
	h := NewHeaderSet()
	h.Set("A", "1")
	h.Set("B", "2")
	h.Set("C", "3")
	h.Set("b", "two")

	assert.Equal(t, []string{"A", "B", "C"}, h.Keys())
	assert.Equal(t, "two", h.Get("B"))
}

func TestHeaderSet_EmptyValueRemoves(t *testing.T) {
	h := NewHeaderSet()
	h.Set("A", "1")
	h.Set("B", "2")
	h.Set("C", "3")

	h.Set("B", "")

	assert.False(t, h.Has("B"))
	assert.Equal(t, []string{"A", "C"}, h.Keys())
	assert.Equal(t, "3", h.Get("C"))

	h.Del("A")
	assert.Equal(t, []string{"C"}, h.Keys())
	assert.Equal(t, "3", h.Get("c"))
}

func TestHeaderSet_Serialize(t *testing.T) {
	h := NewHeaderSet()
	h.Method = "POST"
	h.URI = "/items?id=1"
	h.Hostname = "api.example.com"
	h.Port = 8080
	h.Set("Accept", "*/*")
	h.Set("Content-Type", "application/json")
	h.SetContentLength(42)

	expected := "POST /items?id=1 HTTP/1.1\r\n" +
		"Host: api.example.com:8080\r\n" +
		"Accept: */*\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: 42\r\n" +
		"\r\n"

	assert.Equal(t, expected, string(h.Serialize()))
	assert.Equal(t, expected, h.String())
}

func TestHeaderSet_SerializeIPv6Host(t *testing.T) {
	h := NewHeaderSet()
	h.Hostname = "::1"
	h.Port = 8443

	assert.Contains(t, h.String(), "Host: [::1]:8443\r\n")
}

func TestHeaderSet_Clone(t *testing.T) {
	h := NewHeaderSet()
	h.Set("A", "1")
	h.SetContentLength(5)

	c := h.Clone()
	c.Set("A", "changed")
	c.Set("B", "2")
	*c.ContentLength = 9

	assert.Equal(t, "1", h.Get("A"))
	assert.False(t, h.Has("B"))
	assert.Equal(t, int64(5), *h.ContentLength)
}

func TestParseHeaderBlock_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		build  func() *HeaderSet
		length *int64
	}{
		{
			name:  "defaults",
			build: NewHeaderSet,
		},
		{
			name: "custom headers and length",
			build: func() *HeaderSet {
				h := NewHeaderSet()
				h.Method = "PUT"
				h.URI = "/a/b/c"
				h.Hostname = "www.test.com"
				h.Port = 8080
				h.Set("User-Agent", DefaultUserAgent)
				h.Set("X-Trace", "abc:def")
				h.SetContentLength(1234)
				return h
			},
		},
		{
			name: "ipv6 host",
			build: func() *HeaderSet {
				h := NewHeaderSet()
				h.Method = "DELETE"
				h.Hostname = "fe80::1"
				h.Port = 9000
				return h
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.build()

			parsed, err := ParseHeaderBlock(h.Serialize())
			require.NoError(t, err)

			assert.Equal(t, h.Method, parsed.Method)
			assert.Equal(t, h.URI, parsed.URI)
			assert.Equal(t, h.Hostname, parsed.Hostname)
			assert.Equal(t, h.Port, parsed.Port)
			assert.Equal(t, h.Map(), parsed.Map())
			assert.Equal(t, h.Keys(), parsed.Keys())
			assert.Equal(t, h.ContentLength, parsed.ContentLength)
		})
	}
}

func TestParseHeaderBlock_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unterminated", "GET / HTTP/1.1\r\nHost: a:80\r\n"},
		{"bad request line", "GET /\r\n\r\n"},
		{"bad header", "GET / HTTP/1.1\r\nnocolon\r\n\r\n"},
		{"bad port", "GET / HTTP/1.1\r\nHost: a:xx\r\n\r\n"},
		{"bad length", "GET / HTTP/1.1\r\nContent-Length: ten\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeaderBlock([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}
