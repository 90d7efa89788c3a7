package kernel

import "io"
import "log/slog"

func Loglevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// installs a text logger on w as the default logger
func Loginit(w io.Writer, level string, module string) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: Loglevel(level),
	})
	logger := slog.New(handler).With("module", module)
	slog.SetDefault(logger)
	return logger
}
