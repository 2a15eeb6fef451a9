package output

import (
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/assertions"
	"github.com/abdul-hamid-achik/hitwire/packages/webclient"
)

// Exchange is one request and what came back for it
type Exchange struct {
	Method   string
	URL      string
	Started  time.Time
	Result   *webclient.Result
	Err      error
	Captures map[string]any
	Checks   []*assertions.Result
}

// Passed reports whether the exchange completed and every check passed
func (e *Exchange) Passed() bool {
	return e.Err == nil && assertions.AllPassed(e.Checks)
}

type Formatter interface {
	FormatExchange(ex *Exchange)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable is implemented by formatters that buffer until the end of a run
type Flushable interface {
	Flush() error
}

// New returns the formatter registered under name
func New(name string, w io.Writer, verbose, noColor bool) (Formatter, error) {
	switch name {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose), WithNoColor(noColor)), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(w)), nil
	}
	return nil, fmt.Errorf("unknown output format %q (expected console or json)", name)
}
