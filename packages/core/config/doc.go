// Package config handles configuration loading and management for hitwire.
//
// It provides functionality for:
//   - Loading configuration from .hitwire.yaml, hitwire.yaml or .hitwire.yml
//   - Default configuration values
//   - Converting the configuration into webclient options
package config
