package logging

import "context"

type contextKey string

const (
	operationKey contextKey = "operation"
	trackedKey   contextKey = "tracked"
)

// WithOperation labels the context with the name of the operation running
// under it.
func WithOperation(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operationKey, name)
}

// GetOperation retrieves the operation label from the context.
// Returns empty string if not present.
func GetOperation(ctx context.Context) string {
	if name, ok := ctx.Value(operationKey).(string); ok {
		return name
	}
	return ""
}

// WithTracked marks the context as running inside a tracked operation.
func WithTracked(ctx context.Context) context.Context {
	return context.WithValue(ctx, trackedKey, true)
}

// IsTracked reports whether the context was marked by WithTracked.
func IsTracked(ctx context.Context) bool {
	tracked, _ := ctx.Value(trackedKey).(bool)
	return tracked
}
