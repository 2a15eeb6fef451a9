// Package capture extracts values from hitwire responses.
//
// It supports capturing values from:
//   - Response body (gjson paths)
//   - Response headers
//   - Response status code, duration and connection reuse
//
// The fetch command prints captured values, and the bench and history
// commands reuse them for labelling.
package capture
