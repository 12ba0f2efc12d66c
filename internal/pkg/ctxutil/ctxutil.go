package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type traceDataKey struct{}
type requestDataKey struct{}

// TraceData carries the request's trace/request identifiers across layers
// that don't otherwise have access to the gin context.
type TraceData struct {
	TraceID   string
	RequestID string
}

// RequestData carries the authenticated caller's identity.
type RequestData struct {
	UserID uuid.UUID
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	td, _ := ctx.Value(traceDataKey{}).(*TraceData)
	return td
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	rd, _ := ctx.Value(requestDataKey{}).(*RequestData)
	return rd
}

// Default returns ctx unless it is nil, in which case it returns
// context.Background(). Useful for call sites that accept an optional ctx.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
