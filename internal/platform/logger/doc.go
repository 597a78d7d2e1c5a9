// Package logger configures the application's structured logging on top
// of log/slog and provides helpers for carrying request- or task-scoped
// loggers through a context.Context.
package logger
