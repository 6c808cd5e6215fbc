package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. Structured so audit pipeline internals can
// be correlated with host request logs.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
