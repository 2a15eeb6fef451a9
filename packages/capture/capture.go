package capture

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitwire/packages/webclient"
	"github.com/tidwall/gjson"
)

type Source int

const (
	SourceBody Source = iota
	SourceHeader
	SourceStatus
	SourceDuration
	SourceReused
)

// Capture names a value to pull out of a response
type Capture struct {
	Name   string
	Source Source
	Path   string
}

// Parse reads a capture written as "[name=]source[.path]", for example
// "id=body.data.id", "header.Location" or "status". Without an explicit
// name the expression itself is used.
func Parse(s string) (*Capture, error) {
	s = strings.TrimSpace(s)
	name, expr, named := strings.Cut(s, "=")
	// "=" inside a gjson query such as body.items.#(id==7) is not a name
	if !named || strings.ContainsAny(name, ".#(") {
		name, expr, named = "", s, false
	}
	name = strings.TrimSpace(name)
	expr = strings.TrimSpace(expr)
	if expr == "" || (named && name == "") {
		return nil, fmt.Errorf("invalid capture %q", s)
	}
	if !named {
		name = expr
	}

	source, path, _ := strings.Cut(expr, ".")
	c := &Capture{Name: name, Path: path}
	switch source {
	case "body":
		c.Source = SourceBody
	case "header":
		if path == "" {
			return nil, fmt.Errorf("invalid capture %q: missing header name", s)
		}
		c.Source = SourceHeader
	case "status":
		c.Source = SourceStatus
	case "duration":
		c.Source = SourceDuration
	case "reused":
		c.Source = SourceReused
	default:
		return nil, fmt.Errorf("invalid capture %q: unknown source %q", s, source)
	}
	return c, nil
}

type Extractor struct {
	response *webclient.Result
	bodyJSON gjson.Result
}

func NewExtractor(resp *webclient.Result) *Extractor {
	e := &Extractor{
		response: resp,
	}
	if resp.IsJSON() || gjson.ValidBytes(resp.Body) {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
	}
	return e
}

func (e *Extractor) Extract(c *Capture) (any, bool) {
	switch c.Source {
	case SourceBody:
		return e.extractFromBody(c.Path)
	case SourceHeader:
		return e.extractFromHeader(c.Path)
	case SourceStatus:
		return e.response.StatusCode, true
	case SourceDuration:
		return e.response.DurationMs(), true
	case SourceReused:
		return e.response.Reused, true
	default:
		return nil, false
	}
}

func (e *Extractor) extractFromBody(path string) (any, bool) {
	if !e.bodyJSON.Exists() {
		if path == "" {
			return e.response.BodyString(), true
		}
		return nil, false
	}

	if path == "" {
		return e.bodyJSON.Value(), true
	}

	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func (e *Extractor) extractFromHeader(name string) (any, bool) {
	value := e.response.Header(name)
	if value == "" {
		return nil, false
	}
	return value, true
}

func ExtractAll(resp *webclient.Result, captures []*Capture) map[string]any {
	extractor := NewExtractor(resp)
	results := make(map[string]any)

	for _, c := range captures {
		if value, ok := extractor.Extract(c); ok {
			results[c.Name] = value
		}
	}

	return results
}
