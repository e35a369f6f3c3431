// Package logging provides structured logging for the bridge.
//
// It wraps log/slog so every entry carries the service name and build
// version, with JSON output for production and text for development.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log controller or broker passwords.
package logging
