// Package cmd implements the hitwire CLI commands using Cobra.
//
// Available commands:
//   - fetch: Send one request through the raw-socket client and show the response
//   - bench: Drive keep-alive load against a URL and report latency and reuse
//   - history: List exchanges recorded with fetch --record
//   - version: Show hitwire version information
//
// Settings come from .hitwire.yaml (see packages/core/config) and can be
// overridden with flags.
package cmd
