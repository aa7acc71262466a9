package attachment

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Field names within a file hash. The upload service writes these; the
// gateway only reads them.
const (
	fieldData        = "data"
	fieldContentType = "content_type"
	fieldOriginal    = "original_name"
)

// RedisResolver reads uploaded files from Redis, one hash per file id
// keyed "file:<id>".
type RedisResolver struct {
	client *redis.Client
}

// NewRedisResolver creates a resolver backed by the given Redis client.
func NewRedisResolver(client *redis.Client) *RedisResolver {
	return &RedisResolver{client: client}
}

func fileKey(fileID string) string {
	return "file:" + fileID
}

// Resolve fetches the file hash for fileID. Returns ErrNotFound when the
// hash does not exist or is missing its payload.
func (r *RedisResolver) Resolve(ctx context.Context, fileID string) (File, error) {
	vals, err := r.client.HGetAll(ctx, fileKey(fileID)).Result()
	if err != nil {
		return File{}, fmt.Errorf("attachment: redis get %s: %w", fileID, err)
	}

	data, ok := vals[fieldData]
	if !ok {
		// HGetAll returns an empty map for a missing key.
		return File{}, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}

	return File{
		Bytes:        []byte(data),
		MIMEType:     vals[fieldContentType],
		OriginalName: vals[fieldOriginal],
	}, nil
}

// Ping checks the Redis connection.
func (r *RedisResolver) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
