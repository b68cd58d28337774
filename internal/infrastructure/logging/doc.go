// Package logging provides structured logging for valvectl.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the CLI and the HTTP service.
//
// # Features
//
//   - Text output by default (the run command is read by operators)
//   - JSON output for log shippers
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("channel activated", "channel", 17)
//	logger.Error("revert failed", "channel", 17, "error", err)
package logging
