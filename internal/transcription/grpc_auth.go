package transcription

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// withBearer attaches an authorization bearer token to outgoing gRPC
// stream metadata.
func withBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}
