// Package output renders hitwire exchanges.
//
// Supported output formats:
//   - Console: human-readable colored terminal output
//   - JSON: machine-readable JSON output
//
// Each formatter implements the Formatter interface and can optionally
// implement Flushable for formats that accumulate results before output.
package output
