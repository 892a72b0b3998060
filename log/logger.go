package log

import "context"

// Logger is the structured logger shared by the session core and the CLI.
// Fields are attached per call; trace and span ids come from ctx.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	// Fatal logs and exits the process. The session core never calls it;
	// operations return errors and the CLI maps them to its exit code.
	Fatal(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	// With returns a child logger carrying fields on every entry, e.g. the
	// profile or component name.
	With(fields map[string]interface{}) Logger
}
