// Package logging wraps the standard library's slog for sniterm's own
// two kinds of output: the operational log every component writes to
// (Setup/Debug/Info/Warn/Error), and an optional per-connection access
// log (Access) gated by internal/config's logging.access_log, recording
// which hostname each terminated connection addressed.
package logging

import (
	"io"
	"log/slog"
	"net"
	"os"
)

// Level is an alias for slog.Level for convenience.
type Level = slog.Level

// Level constants matching slog levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel parses a string into a Level.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Setup configures the default slog logger with the specified level and output.
func Setup(level Level, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewTextHandler(w, opts)
	slog.SetDefault(slog.New(handler))
}

// SetupFile configures the default logger to write to a file.
func SetupFile(level Level, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	Setup(level, f)
	return nil
}

// Convenience functions that wrap slog package functions.

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// Default returns the default slog logger.
func Default() *slog.Logger {
	return slog.Default()
}

// AccessRecord describes one terminated connection for the access log.
// It is deliberately narrow: just enough to answer "who connected to
// which of my domains, and how" without logging anything from the
// plaintext stream sniterm itself never inspects.
type AccessRecord struct {
	Hostname       string
	RemoteAddr     net.Addr
	NegotiatedALPN string
}

// AccessLogger writes one structured line per terminated connection. A
// nil *AccessLogger is valid and logs nothing, so callers can construct
// one unconditionally and only gate it on internal/config's
// logging.access_log when deciding whether to pass a real logger in.
type AccessLogger struct {
	logger *slog.Logger
}

// NewAccessLogger returns an AccessLogger writing through logger, or
// through the default logger if logger is nil. Callers only construct
// one at all when access logging is enabled.
func NewAccessLogger(logger *slog.Logger) *AccessLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessLogger{logger: logger}
}

// Log records one completed connection.
func (a *AccessLogger) Log(rec AccessRecord) {
	if a == nil {
		return
	}
	hostname := rec.Hostname
	if hostname == "" {
		hostname = "-"
	}
	a.logger.Info("connection terminated",
		"hostname", hostname,
		"remote", rec.RemoteAddr,
		"alpn", rec.NegotiatedALPN,
	)
}
