package interfaces

import "context"

// ContextKey тип ключей контекста, которые читает логгер
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	TraceIDKey   ContextKey = "trace_id"
	UserIDKey    ContextKey = "user_id"
)

// ContextString достает строковое значение по ключу
func ContextString(ctx context.Context, key ContextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}
