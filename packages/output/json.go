package output

import (
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/assertions"
	"github.com/goccy/go-json"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary   JSONSummary    `json:"summary"`
	Exchanges []JSONExchange `json:"exchanges"`
	Time      string         `json:"time"`
}

type JSONSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// JSONExchange represents a single request and its response
type JSONExchange struct {
	Method   string               `json:"method"`
	URL      string               `json:"url"`
	Passed   bool                 `json:"passed"`
	Error    string               `json:"error,omitempty"`
	Response *JSONResponse        `json:"response,omitempty"`
	Checks   []*assertions.Result `json:"checks,omitempty"`
	Captures map[string]any       `json:"captures,omitempty"`
}

type JSONResponse struct {
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       json.RawMessage   `json:"body,omitempty"`
	Text       string            `json:"text,omitempty"`
	Duration   float64           `json:"duration"`
	Reused     bool              `json:"reused"`
}

// JSONFormatter formats exchanges as a single JSON document
type JSONFormatter struct {
	writer    io.Writer
	exchanges []JSONExchange
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:    os.Stdout,
		exchanges: make([]JSONExchange, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatExchange(ex *Exchange) {
	out := JSONExchange{
		Method:   ex.Method,
		URL:      ex.URL,
		Passed:   ex.Passed(),
		Checks:   ex.Checks,
		Captures: ex.Captures,
	}

	if ex.Err != nil {
		out.Error = ex.Err.Error()
	}

	if res := ex.Result; res != nil {
		out.Response = &JSONResponse{
			StatusCode: res.StatusCode,
			Status:     res.Status,
			Headers:    res.Headers,
			Duration:   float64(res.Duration.Microseconds()) / 1000,
			Reused:     res.Reused,
		}
		if res.IsJSON() && json.Valid(res.Body) {
			out.Response.Body = json.RawMessage(res.Body)
		} else if len(res.Body) > 0 {
			out.Response.Text = res.BodyString()
		}
	}

	f.exchanges = append(f.exchanges, out)
}

func (f *JSONFormatter) FormatError(err error) {
	f.exchanges = append(f.exchanges, JSONExchange{Error: err.Error()})
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush() error {
	var passed, failed int
	for _, ex := range f.exchanges {
		if ex.Passed {
			passed++
		} else {
			failed++
		}
	}

	output := JSONOutput{
		Summary: JSONSummary{
			Total:  len(f.exchanges),
			Passed: passed,
			Failed: failed,
		},
		Exchanges: f.exchanges,
		Time:      time.Now().Format(time.RFC3339),
	}
	f.exchanges = f.exchanges[:0]

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
