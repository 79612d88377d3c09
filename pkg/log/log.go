// Package log configures the process-wide slog logger.
package log

import (
	"fmt"
	"log/slog"
	"os"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a level name to its slog level. An empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	if name == "" {
		return slog.LevelInfo, nil
	}

	level, ok := levels[name]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}

	return level, nil
}

// Setup installs a text handler on stderr as the default logger. Unknown
// level names fall back to info.
func Setup(logLevel string) {
	level, _ := ParseLevel(logLevel)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
