package output

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case map[string]string:
		return fmt.Sprintf("{headers with %d entries}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool

	green, red, yellow, cyan, bold, dim func(a ...any) string
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}

	sprint := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if f.noColor {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	f.green = sprint(color.FgGreen)
	f.red = sprint(color.FgRed)
	f.yellow = sprint(color.FgYellow)
	f.cyan = sprint(color.FgCyan)
	f.bold = sprint(color.Bold)
	f.dim = sprint(color.Faint)
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) statusColor(code int) func(a ...any) string {
	switch {
	case code >= 500:
		return f.red
	case code >= 400:
		return f.yellow
	case code >= 300:
		return f.cyan
	}
	return f.green
}

func (f *ConsoleFormatter) FormatExchange(ex *Exchange) {
	fmt.Fprintf(f.writer, "%s %s\n", f.bold(ex.Method), ex.URL)

	if ex.Err != nil {
		fmt.Fprintf(f.writer, "  %s %s\n", f.red("x"), f.red(ex.Err.Error()))
		// a raised status still carries the response
		if ex.Result == nil {
			return
		}
	}

	res := ex.Result
	conn := "new connection"
	if res.Reused {
		conn = "reused connection"
	}
	fmt.Fprintf(f.writer, "  %s %s\n",
		f.statusColor(res.StatusCode)(res.Status),
		f.cyan(fmt.Sprintf("(%dms, %d bytes, %s)", res.DurationMs(), len(res.Body), conn)))

	if f.verbose {
		fmt.Fprintln(f.writer)
		for _, line := range strings.Split(strings.TrimRight(res.RequestHead, "\r\n"), "\r\n") {
			fmt.Fprintf(f.writer, "  %s %s\n", f.dim(">"), line)
		}
		keys := make([]string, 0, len(res.Headers))
		for k := range res.Headers {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(f.writer, "  %s %s: %s\n", f.dim("<"), k, res.Headers[k])
		}
	}

	if len(res.Body) > 0 {
		fmt.Fprintln(f.writer)
		fmt.Fprintln(f.writer, prettyBody(res.Body, res.IsJSON()))
	}

	if len(ex.Captures) > 0 {
		fmt.Fprintln(f.writer)
		fmt.Fprintln(f.writer, f.bold("Captures:"))
		names := make([]string, 0, len(ex.Captures))
		for name := range ex.Captures {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(f.writer, "  %s = %s\n", name, formatValue(ex.Captures[name], 100))
		}
	}

	if len(ex.Checks) > 0 {
		fmt.Fprintln(f.writer)
		for _, c := range ex.Checks {
			if c.Passed {
				fmt.Fprintf(f.writer, "  %s %s %s\n", f.green("✓"), c.Subject, c.Operator)
				continue
			}
			fmt.Fprintf(f.writer, "  %s %s %s\n", f.red("✗"), c.Subject, c.Operator)
			if c.Expected != nil {
				fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(c.Expected, 100))
			}
			fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(c.Actual, 100))
			if c.Message != "" {
				fmt.Fprintf(f.writer, "      %s\n", c.Message)
			}
		}
	}
	fmt.Fprintln(f.writer)
}

// prettyBody indents JSON bodies and returns anything else unchanged
func prettyBody(body []byte, isJSON bool) string {
	if isJSON {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err == nil {
			return buf.String()
		}
	}
	return string(body)
}

func (f *ConsoleFormatter) FormatError(err error) {
	fmt.Fprintf(f.writer, "%s %v\n", f.red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	fmt.Fprintf(f.writer, "%s %s\n", f.bold("hitwire"), version)
}
