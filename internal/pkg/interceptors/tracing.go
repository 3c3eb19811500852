package interceptors

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// TraceServerInterceptor lifts x-request-id and x-idempotency-key from the
// incoming gRPC metadata into the request context and logs the call.
func TraceServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, exist := metadata.FromIncomingContext(ctx)
		requestID := ""
		idempotencyID := ""
		if exist {
			if ids := md.Get(HeaderRequestID); len(ids) > 0 {
				requestID = ids[0]
			}

			if ids := md.Get(HeaderIdempotencyKey); len(ids) > 0 {
				idempotencyID = ids[0]
			}
		}
		newCtx := WithRequestMetadata(ctx, requestID, idempotencyID)

		slog.DebugContext(newCtx, "grpc call",
			"method", info.FullMethod, "request_id", requestID, "idempotency_key", idempotencyID)

		return handler(newCtx, req)
	}
}
