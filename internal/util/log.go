package util

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

var logger *slog.Logger

// InitLogger initializes the global slog logger. Terminals get the text
// handler, anything else (pipes, files, supervisors) gets JSON lines.
func InitLogger(verbose bool) {
	setLogger(os.Stderr, verbose, term.IsTerminal(int(os.Stderr.Fd())))
}

func setLogger(w io.Writer, verbose, text bool) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if text {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// GetLogger returns the configured logger instance
func GetLogger() *slog.Logger {
	if logger == nil {
		// Fallback initialization with INFO level
		InitLogger(IsVerbose())
	}
	return logger
}

// IsVerbose checks if verbose mode is enabled by looking at command line arguments
func IsVerbose() bool {
	for _, arg := range os.Args {
		if arg == "--verbose" {
			return true
		}
	}
	return false
}
