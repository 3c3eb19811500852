package interceptors

import (
	"context"
	"net/http"

	"google.golang.org/grpc/metadata"
)

// Header names double as gRPC metadata keys, which must be lower case.
const (
	HeaderRequestID      = "x-request-id"
	HeaderIdempotencyKey = "x-idempotency-key"
)

type ctxKey string

const (
	requestIDKey      ctxKey = HeaderRequestID
	idempotencyKeyKey ctxKey = HeaderIdempotencyKey
)

// WithRequestMetadata stores the request id and idempotency key in ctx so
// they can be logged and forwarded to collaborators.
func WithRequestMetadata(ctx context.Context, requestID, idempotencyKey string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return context.WithValue(ctx, idempotencyKeyKey, idempotencyKey)
}

func RequestID(ctx context.Context) string {
	return GetMetadataValue(ctx, HeaderRequestID)
}

func IdempotencyKey(ctx context.Context) string {
	return GetMetadataValue(ctx, HeaderIdempotencyKey)
}

// GetMetadataValue looks key up in the context values first, then in the
// incoming and outgoing gRPC metadata.
func GetMetadataValue(ctx context.Context, key string) string {
	switch key {
	case HeaderRequestID:
		if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
			return v
		}
	case HeaderIdempotencyKey:
		if v, ok := ctx.Value(idempotencyKeyKey).(string); ok && v != "" {
			return v
		}
	}

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(key); len(ids) > 0 {
			return ids[0]
		}
	}

	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if ids := md.Get(key); len(ids) > 0 {
			return ids[0]
		}
	}
	return ""
}

// InjectHeaders copies the request metadata found in ctx onto an outgoing
// HTTP request.
func InjectHeaders(ctx context.Context, h http.Header) {
	if id := RequestID(ctx); id != "" {
		h.Set(HeaderRequestID, id)
	}
	if key := IdempotencyKey(ctx); key != "" {
		h.Set(HeaderIdempotencyKey, key)
	}
}
