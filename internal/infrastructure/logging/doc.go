// Package logging sets up the process-wide slog logger.
//
// Entries carry service and version attributes. Output is JSON by default
// and slog's text format when logging.format is "text":
//
//	logging:
//	  level: info      # debug, info, warn, error
//	  format: json     # json, text
//	  output: stdout   # stdout, stderr
//
// Child loggers are handed to packages that declare their own Logger
// interface:
//
//	log := logging.New(cfg.Logging, version)
//	runner := macro.NewRunner(lib, types, repo, delegates, hub, log.Component("runner"))
//
// Variable values and command output stay at debug level. Macros often
// type credentials.
package logging
