// Package logger provides the process-wide zerolog logger plus a helper
// that stamps task identity onto every log line emitted while a task runs.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// Log is the global logger instance
var Log zerolog.Logger

func init() {
	// Default to JSON output for production
	Log = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()

	// Pretty print for development if requested
	if os.Getenv("APP_ENV") != "production" {
		Log = Log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// GetLogger returns the global logger instance
func GetLogger() zerolog.Logger {
	return Log
}

// ForTask returns a logger with task_id/task_name/handler fields bound, so
// every line emitted while processing a task carries its identity.
func ForTask(task model.Task) zerolog.Logger {
	return Log.With().
		Int64("task_id", task.ID).
		Str("task_name", task.Name).
		Str("handler", task.Handler).
		Logger()
}
