// Package logging provides structured logging configuration for mockserver.
//
// This package wraps log/slog. The server never changes a global log level;
// the level is configuration handed to whoever builds the logger.
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.ParseLevel("warn"),
//	    Format: logging.FormatText,
//	})
//
//	logger.Warn("upstream failed", "error", err)
//
// Components accept a *slog.Logger through an option or setter and fall back
// to logging.Nop() when none is given.
package logging
