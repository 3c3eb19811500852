package interceptors

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestTraceServerInterceptorLiftsMetadata(t *testing.T) {
	md := metadata.Pairs(
		HeaderRequestID, "req-1",
		HeaderIdempotencyKey, "idem-1",
	)
	ctx := metadata.NewIncomingContext(context.Background(), md)

	var seen context.Context
	_, err := TraceServerInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(ctx context.Context, _ interface{}) (interface{}, error) {
			seen = ctx
			return nil, nil
		})

	require.NoError(t, err)
	assert.Equal(t, "req-1", seen.Value(requestIDKey))
	assert.Equal(t, "idem-1", IdempotencyKey(seen))
}

func TestInjectHeaders(t *testing.T) {
	ctx := WithRequestMetadata(context.Background(), "req-9", "")
	h := http.Header{}

	InjectHeaders(ctx, h)

	assert.Equal(t, "req-9", h.Get(HeaderRequestID))
	assert.Empty(t, h.Get(HeaderIdempotencyKey))
}

func TestGetMetadataValueFallsBackToOutgoingMetadata(t *testing.T) {
	ctx := metadata.AppendToOutgoingContext(context.Background(), HeaderIdempotencyKey, "out-1")

	assert.Equal(t, "out-1", IdempotencyKey(ctx))
	assert.Empty(t, RequestID(ctx))
}
