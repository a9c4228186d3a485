// Package logging provides structured logging for fieldsim.
//
// It wraps log/slog with JSON or text output, level filtering and default
// service/version fields. A *Logger can be passed to any domain package's
// SetLogger.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	registry.SetLogger(logger.Component("device"))
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
