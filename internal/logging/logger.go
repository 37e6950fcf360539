// Package logging defines a minimal structured-logging interface used across
// the project. Implementations can wrap slog, zap, zerolog, etc.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key-value pairs, e.g.:
//
//	log.Info(ctx, "upload promoted", "upload_id", id, "kind", kind)
type Logger interface {
	// Debug logs a diagnostic message.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// Critical logs a failure that needs operator attention: data left in
	// quarantine after a bad copy, an unusable ledger, a system fault
	// converted into a rejected upload.
	Critical(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}

// Nop is a Logger that discards everything.
type Nop struct{}

func (Nop) Debug(context.Context, string, ...any)    {}
func (Nop) Info(context.Context, string, ...any)     {}
func (Nop) Warn(context.Context, string, ...any)     {}
func (Nop) Error(context.Context, string, ...any)    {}
func (Nop) Critical(context.Context, string, ...any) {}
func (n Nop) With(...any) Logger                     { return n }
