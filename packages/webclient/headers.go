package webclient

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"
)

type headerField struct {
	name  string
	value string
}

// HeaderSet holds the request line fields and the header fields of one
// message. Header names are case-insensitive; fields serialize in the order
// they were first set.
type HeaderSet struct {
	Method        string
	URI           string
	Hostname      string
	Port          int
	Secure        bool
	ContentLength *int64

	fields []headerField
	index  map[string]int
}

// NewHeaderSet returns a header set for "GET /" on localhost:80
func NewHeaderSet() *HeaderSet {
	return &HeaderSet{
		Method:   "GET",
		URI:      "/",
		Hostname: "localhost",
		Port:     80,
		index:    make(map[string]int),
	}
}

// Get returns the value of the named header, or "" when it is not set
func (h *HeaderSet) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

// Lookup returns the value of the named header and whether it is set
func (h *HeaderSet) Lookup(name string) (string, bool) {
	i, ok := h.index[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return h.fields[i].value, true
}

// Has reports whether the named header is set
func (h *HeaderSet) Has(name string) bool {
	_, ok := h.index[strings.ToLower(name)]
	return ok
}

// Set sets the named header. An empty value removes it. Replacing a value
// keeps the field at its original position and spelling.
func (h *HeaderSet) Set(name, value string) {
	if value == "" {
		h.Del(name)
		return
	}
	if h.index == nil {
		h.index = make(map[string]int)
	}
	key := strings.ToLower(name)
	if i, ok := h.index[key]; ok {
		h.fields[i].value = value
		return
	}
	h.index[key] = len(h.fields)
	h.fields = append(h.fields, headerField{name: name, value: value})
}

// Del removes the named header
func (h *HeaderSet) Del(name string) {
	key := strings.ToLower(name)
	i, ok := h.index[key]
	if !ok {
		return
	}
	h.fields = append(h.fields[:i], h.fields[i+1:]...)
	delete(h.index, key)
	for j := i; j < len(h.fields); j++ {
		h.index[strings.ToLower(h.fields[j].name)] = j
	}
}

// Keys returns the header names in serialization order
func (h *HeaderSet) Keys() []string {
	keys := make([]string, len(h.fields))
	for i, f := range h.fields {
		keys[i] = f.name
	}
	return keys
}

// Len returns the number of header fields, not counting Host and Content-Length
func (h *HeaderSet) Len() int {
	return len(h.fields)
}

// SetContentLength sets the Content-Length emitted after the other headers
func (h *HeaderSet) SetContentLength(n int64) {
	h.ContentLength = &n
}

// ClearContentLength removes a previously set Content-Length
func (h *HeaderSet) ClearContentLength() {
	h.ContentLength = nil
}

// Map returns a copy of the header fields keyed by their original spelling
func (h *HeaderSet) Map() map[string]string {
	m := make(map[string]string, len(h.fields))
	for _, f := range h.fields {
		m[f.name] = f.value
	}
	return m
}

// Clone returns a deep copy
func (h *HeaderSet) Clone() *HeaderSet {
	c := *h
	c.fields = append([]headerField(nil), h.fields...)
	c.index = make(map[string]int, len(h.index))
	for k, v := range h.index {
		c.index[k] = v
	}
	if h.ContentLength != nil {
		n := *h.ContentLength
		c.ContentLength = &n
	}
	return &c
}

// Serialize renders the request line and headers in wire format:
// request line, Host, the header fields, optional Content-Length, blank line.
func (h *HeaderSet) Serialize() []byte {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	h.writeTo(bb)
	return append([]byte(nil), bb.B...)
}

func (h *HeaderSet) String() string {
	return string(h.Serialize())
}

func (h *HeaderSet) writeTo(bb *bytebufferpool.ByteBuffer) {
	bb.B = fmt.Appendf(bb.B, "%s %s HTTP/1.1\r\n", h.Method, h.URI)
	bb.B = fmt.Appendf(bb.B, "Host: %s\r\n", hostPort(h.Hostname, h.Port))
	for _, f := range h.fields {
		bb.B = fmt.Appendf(bb.B, "%s: %s\r\n", f.name, f.value)
	}
	if h.ContentLength != nil {
		bb.B = fmt.Appendf(bb.B, "Content-Length: %d\r\n", *h.ContentLength)
	}
	bb.B = append(bb.B, '\r', '\n')
}

// ParseHeaderBlock parses a serialized request header block back into a
// HeaderSet. It accepts exactly what Serialize produces plus an optional body
// after the blank line, which is ignored.
func ParseHeaderBlock(raw []byte) (*HeaderSet, error) {
	end := bytes.Index(raw, []byte("\r\n\r\n"))
	if end < 0 {
		return nil, fmt.Errorf("header block is not terminated")
	}
	lines := strings.Split(string(raw[:end]), "\r\n")

	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/1.") {
		return nil, fmt.Errorf("malformed request line %q", lines[0])
	}

	h := NewHeaderSet()
	h.Method = parts[0]
	h.URI = parts[1]

	for _, line := range lines[1:] {
		sep := strings.IndexByte(line, ':')
		if sep <= 0 {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		name := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])

		switch strings.ToLower(name) {
		case "host":
			host, port, err := splitHostPort(value)
			if err != nil {
				return nil, err
			}
			h.Hostname = host
			h.Port = port
		case "content-length":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid content length %q", value)
			}
			h.SetContentLength(n)
		default:
			h.Set(name, value)
		}
	}

	return h, nil
}

func hostPort(host string, port int) string {
	if strings.IndexByte(host, ':') >= 0 {
		return "[" + host + "]:" + strconv.Itoa(port)
	}
	return host + ":" + strconv.Itoa(port)
}

func splitHostPort(s string) (string, int, error) {
	host := s
	portText := ""
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "", 0, fmt.Errorf("malformed host %q", s)
		}
		host = s[1:end]
		if rest := s[end+1:]; strings.HasPrefix(rest, ":") {
			portText = rest[1:]
		}
	} else if i := strings.LastIndexByte(s, ':'); i >= 0 {
		host = s[:i]
		portText = s[i+1:]
	}
	if portText == "" {
		return host, 80, nil
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return "", 0, fmt.Errorf("malformed port %q", portText)
	}
	return host, port, nil
}
