package webclient

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Result is a completed exchange with its body in memory
type Result struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
	// Reused is set when the request went out on a cached connection
	Reused bool
	// RequestHead is the serialized request line and headers
	RequestHead string
}

func (r *Result) BodyString() string {
	return string(r.Body)
}

func (r *Result) BodyJSON() (any, error) {
	var result any
	if err := json.Unmarshal(r.Body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Result) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Result) ContentType() string {
	return r.Header("Content-Type")
}

func (r *Result) IsJSON() bool {
	return strings.Contains(r.ContentType(), "json")
}

func (r *Result) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Result) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *Result) IsServerError() bool {
	return r.StatusCode >= 500
}

func (r *Result) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
