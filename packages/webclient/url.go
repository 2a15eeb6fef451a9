package webclient

import (
	"strconv"
	"strings"
)

// Target is the parsed form of an http or https URL
type Target struct {
	Hostname string
	Port     int
	URI      string
	Secure   bool
}

// ParseURL splits an absolute http:// or https:// URL. The port defaults to
// 80 or 443 and the URI to "/".
func ParseURL(raw string) (Target, error) {
	var t Target
	var rest string
	switch {
	case hasPrefixFold(raw, "http://"):
		t.Port = 80
		rest = raw[len("http://"):]
	case hasPrefixFold(raw, "https://"):
		t.Port = 443
		t.Secure = true
		rest = raw[len("https://"):]
	default:
		return Target{}, malformedURL(raw)
	}

	authority := rest
	t.URI = "/"
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		authority = rest[:i]
		switch rest[i] {
		case '/':
			t.URI = rest[i:]
		case '?':
			t.URI = "/" + rest[i:]
		}
	}
	if i := strings.IndexByte(t.URI, '#'); i >= 0 {
		t.URI = t.URI[:i]
	}

	if strings.IndexByte(authority, '@') >= 0 {
		return Target{}, malformedURL(raw)
	}

	host, portText, hasPort := authority, "", false
	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return Target{}, malformedURL(raw)
		}
		host = authority[1:end]
		switch after := authority[end+1:]; {
		case after == "":
		case strings.HasPrefix(after, ":"):
			portText, hasPort = after[1:], true
		default:
			return Target{}, malformedURL(raw)
		}
	} else if i := strings.IndexByte(authority, ':'); i >= 0 {
		host, portText, hasPort = authority[:i], authority[i+1:], true
	}

	if host == "" {
		return Target{}, malformedURL(raw)
	}
	if hasPort {
		port, err := strconv.Atoi(portText)
		if err != nil || port <= 0 || port > 65535 {
			return Target{}, malformedURL(raw)
		}
		t.Port = port
	}
	t.Hostname = host

	return t, nil
}

// String renders the target back into URL form
func (t Target) String() string {
	scheme, port := "http://", 80
	if t.Secure {
		scheme, port = "https://", 443
	}
	if t.Port == port {
		h := t.Hostname
		if strings.IndexByte(h, ':') >= 0 {
			h = "[" + h + "]"
		}
		return scheme + h + t.URI
	}
	return scheme + hostPort(t.Hostname, t.Port) + t.URI
}

func normalizeURI(uri string) string {
	switch {
	case uri == "":
		return "/"
	case uri[0] != '/':
		return "/" + uri
	}
	return uri
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func malformedURL(raw string) error {
	return &RequestError{Op: "url", Msg: "malformed URL " + strconv.Quote(raw)}
}
