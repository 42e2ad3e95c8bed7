package types

import "context"

// ContextKey namespaces values stored on a context.Context.
type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
)

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}
