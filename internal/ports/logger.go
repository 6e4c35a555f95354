package ports

import "context"

// Logger is the structured logging contract for the engines and adapters.
// Fields are a single optional map of settlement context (position IDs,
// account IDs, amounts); implementations decide the output format.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs err alongside the message at Error level.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
