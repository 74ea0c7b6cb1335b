// Package logging provides structured logging for the Glue Home bridge.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same default fields (service, version).
//
// # Formats
//
//   - json: machine-parsable output for production
//   - text: coloured human-readable output via github.com/lmittmann/tint
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// Never log the Glue Home API key or account password. Log
// config.GlueHomeConfig via its String method, which masks them.
package logging
